package core

import (
	"errors"
	"testing"
)

func TestRecord_EffectiveKey(t *testing.T) {
	out := NewFunctionCallOutputRecord("worker", nil, "call-1", "ok")
	key, ok := out.EffectiveKey()
	if !ok || key != "call:call-1" {
		t.Fatalf("output record should key by call id, got %q ok=%v", key, ok)
	}

	msg := NewMessageRecord("worker", nil, "hi")
	key, ok = msg.EffectiveKey()
	if !ok || key != "id:"+msg.ID {
		t.Fatalf("message record should key by identity, got %q ok=%v", key, ok)
	}

	// A function_call keeps its identity key even though a call id is present.
	call := NewFunctionCallRecord("worker", nil, "call-2", "send_message", "{}")
	key, ok = call.EffectiveKey()
	if !ok || key != "id:"+call.ID {
		t.Fatalf("call record should key by identity, got %q ok=%v", key, ok)
	}

	sentinel := Record{Kind: KindMessage, ID: SentinelID}
	if _, ok := sentinel.EffectiveKey(); ok {
		t.Error("sentinel identity must never produce a merge key")
	}

	orphan := Record{Kind: KindFunctionCallOutput, ID: SentinelID, CallID: SentinelID}
	if _, ok := orphan.EffectiveKey(); ok {
		t.Error("sentinel call id must never produce a merge key")
	}
}

func TestRecord_Validate(t *testing.T) {
	var malformed *MalformedRecordError

	err := Record{}.Validate()
	if err == nil || !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}

	if err := NewReasoningRecord("worker", nil, "thinking").Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

func TestRecord_PayloadAccessors(t *testing.T) {
	caller := "router"
	msg := NewMessageRecord("worker", &caller, "hello")
	if msg.Text() != "hello" {
		t.Errorf("Text() = %q", msg.Text())
	}
	if msg.Output() != "" {
		t.Errorf("Output() should be empty for messages, got %q", msg.Output())
	}

	out := NewFunctionCallOutputRecord("worker", &caller, "call-1", "done")
	if out.Output() != "done" {
		t.Errorf("Output() = %q", out.Output())
	}
}

func TestStreamEvent_Validate(t *testing.T) {
	var malformed *MalformedEventError
	err := StreamEvent{}.Validate()
	if err == nil || !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedEventError, got %v", err)
	}

	ev := StreamEvent{Type: StreamItemAdded, Position: 0, Item: ItemMessage, ItemID: SentinelID}
	if err := ev.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	if ev.IsToolKind() {
		t.Error("message item misreported as tool kind")
	}
	if !ev.HasPosition() {
		t.Error("position 0 is a valid position")
	}
	if (StreamEvent{Position: NoPosition}).HasPosition() {
		t.Error("NoPosition should not count as a position")
	}
}
