package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func newBufferLogger(level LogLevel) (*SwarmLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = &buf
	cfg.AddSource = false
	return NewLogger(cfg), &buf
}

func TestSwarmLogger_JSONOutputCarriesContext(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	logger.WithComponent("store").WithSession("session-1", "run-1").WithContext("batch", 3).
		Info("merged %d records", 3)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["msg"] != "merged 3 records" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "store" || entry["session_id"] != "session-1" || entry["run_id"] != "run-1" {
		t.Errorf("context attrs missing: %v", entry)
	}
	if entry["batch"] != float64(3) {
		t.Errorf("custom attr missing: %v", entry)
	}
}

func TestSwarmLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.Debug("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("debug entry leaked below configured level: %s", buf.String())
	}

	logger.Warn("kept")
	if len(decodeLines(t, buf)) != 1 {
		t.Fatal("warn entry should pass the level filter")
	}
}

func TestSwarmLogger_LogDelegation(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	logger.LogDelegation("router", "worker", 5*time.Millisecond, true, nil)
	logger.LogDelegation("router", "worker", 5*time.Millisecond, false, errors.New("turn failed"))

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["msg"] != "Delegation completed" || entries[0]["success"] != true {
		t.Errorf("success entry = %v", entries[0])
	}
	if entries[1]["level"] != "ERROR" || entries[1]["error"] != "turn failed" {
		t.Errorf("failure entry = %v", entries[1])
	}
	if entries[1]["sender"] != "router" || entries[1]["recipient"] != "worker" {
		t.Errorf("delegation attrs missing: %v", entries[1])
	}
}

func TestSwarmLogger_LogStoreMergeAndPersistence(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	logger.LogStoreMerge(2, 1, 3)
	logger.LogPersistence(2, time.Millisecond, nil)
	logger.LogPersistence(2, time.Millisecond, errors.New("disk full"))

	entries := decodeLines(t, buf)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0]["appended"] != float64(2) || entries[0]["replaced"] != float64(1) || entries[0]["total"] != float64(3) {
		t.Errorf("merge attrs = %v", entries[0])
	}
	if entries[1]["msg"] != "Persistence hook completed" {
		t.Errorf("success entry = %v", entries[1])
	}
	if entries[2]["level"] != "WARN" || entries[2]["error"] != "disk full" {
		t.Errorf("failure entry = %v", entries[2])
	}
}

func TestSwarmLogger_ErrorWithStack(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	logger.ErrorWithStack(errors.New("boom"), "merge failed")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["error"] != "boom" {
		t.Errorf("error attr = %v", entry["error"])
	}
	stack, _ := entry["stack_trace"].(string)
	if !strings.Contains(stack, "goroutine") {
		t.Errorf("stack_trace missing: %v", entry)
	}
}

func TestSwarmLogger_StartTimer(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelDebug)

	done := logger.StartTimer("merge")
	done()

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	msg, _ := entries[0]["msg"].(string)
	if !strings.HasPrefix(msg, "operation merge completed in ") {
		t.Errorf("msg = %q", msg)
	}
}
