package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SentinelID is the reserved placeholder identity that some upstream producers
// attach to every item they emit. Two records sharing it are logically
// unrelated, so it must never be used as a merge key: records carrying it are
// always appended as distinct entries.
const SentinelID = "__fake_id__"

// Kind discriminates record payloads. The set is open ended: consumers must
// tolerate kinds they do not recognize and treat them as opaque log entries.
type Kind string

const (
	// KindMessage is a plain conversational text message.
	KindMessage Kind = "message"
	// KindFunctionCall is an outbound delegation / tool call issued by an agent.
	KindFunctionCall Kind = "function_call"
	// KindFunctionCallOutput carries the eventual output of a delegation call,
	// linked to it via CallID.
	KindFunctionCallOutput Kind = "function_call_output"
	// KindReasoning is a reasoning trace emitted alongside a turn.
	KindReasoning Kind = "reasoning"
	// KindHandoffOutput records the result of a control handoff between agents.
	KindHandoffOutput Kind = "handoff_output"
)

// Record is one entry in the shared conversation log. The field names double
// as the serialization contract honored by persistence collaborators.
//
// CallerAgent is nil for human / root originated records; those records form
// the unified entry-point view shared by all user-facing agents.
type Record struct {
	Kind        Kind           `json:"kind"`
	ID          string         `json:"id,omitempty"`
	CallID      string         `json:"call_id,omitempty"`
	Agent       string         `json:"agent,omitempty"`
	CallerAgent *string        `json:"caller_agent,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
	ParentRunID *string        `json:"parent_run_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewMessageRecord constructs a text message record. caller is nil for
// human-originated messages.
func NewMessageRecord(agent string, caller *string, text string) Record {
	return Record{
		Kind:        KindMessage,
		ID:          NewID(),
		Agent:       agent,
		CallerAgent: caller,
		Timestamp:   time.Now().UTC(),
		Payload:     map[string]any{"text": text},
	}
}

// NewFunctionCallRecord constructs a delegation call record carrying the
// correlation id that its eventual output will be keyed by.
func NewFunctionCallRecord(agent string, caller *string, callID, name, arguments string) Record {
	return Record{
		Kind:        KindFunctionCall,
		ID:          NewID(),
		CallID:      callID,
		Agent:       agent,
		CallerAgent: caller,
		Timestamp:   time.Now().UTC(),
		Payload:     map[string]any{"name": name, "arguments": arguments},
	}
}

// NewFunctionCallOutputRecord constructs the output record for a previously
// issued delegation call. Output records merge by CallID, not ID, because some
// upstream paths assign a fresh identity to what is semantically the same
// output.
func NewFunctionCallOutputRecord(agent string, caller *string, callID, output string) Record {
	return Record{
		Kind:        KindFunctionCallOutput,
		ID:          NewID(),
		CallID:      callID,
		Agent:       agent,
		CallerAgent: caller,
		Timestamp:   time.Now().UTC(),
		Payload:     map[string]any{"output": output},
	}
}

// NewReasoningRecord constructs a reasoning trace record.
func NewReasoningRecord(agent string, caller *string, text string) Record {
	return Record{
		Kind:        KindReasoning,
		ID:          NewID(),
		Agent:       agent,
		CallerAgent: caller,
		Timestamp:   time.Now().UTC(),
		Payload:     map[string]any{"text": text},
	}
}

// Text returns the textual payload of message / reasoning records ("" when
// absent or non-string).
func (r Record) Text() string { return r.payloadString("text") }

// Output returns the output payload of function_call_output / handoff_output
// records ("" when absent or non-string).
func (r Record) Output() string { return r.payloadString("output") }

func (r Record) payloadString(key string) string {
	if r.Payload == nil {
		return ""
	}
	s, _ := r.Payload[key].(string)
	return s
}

// HasStableID reports whether the record carries a usable non-sentinel identity.
func (r Record) HasStableID() bool { return r.ID != "" && r.ID != SentinelID }

// HasStableCallID reports whether the record carries a usable non-sentinel
// correlation id.
func (r Record) HasStableCallID() bool { return r.CallID != "" && r.CallID != SentinelID }

// EffectiveKey returns the merge key for upsert semantics and whether one
// exists. Output records key by correlation id; everything else keys by
// identity. Records carrying only the sentinel have no key and always append.
func (r Record) EffectiveKey() (string, bool) {
	if r.Kind == KindFunctionCallOutput && r.HasStableCallID() {
		return "call:" + r.CallID, true
	}
	if r.HasStableID() {
		return "id:" + r.ID, true
	}
	return "", false
}

// Validate reports whether the record satisfies the minimal structural
// contract. A missing Kind is a caller bug surfaced as *MalformedRecordError.
func (r Record) Validate() error {
	if r.Kind == "" {
		return &MalformedRecordError{Index: -1, Reason: "missing required field 'kind'"}
	}
	return nil
}

// MalformedRecordError reports a structurally invalid record inside a batch.
// Index is the position within the offending batch (-1 when not applicable).
type MalformedRecordError struct {
	Index  int
	Reason string
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("malformed record at index %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("malformed record: %s", e.Reason)
}

// NewID generates a new unique identifier.
//
// This function creates a UUID-based unique identifier that can be used for
// record tracking and correlation throughout the framework.
func NewID() string { return uuid.NewString() }

// NewRunID generates a unique run identifier.
func NewRunID() string { return "run_" + uuid.NewString() }

// NewCallID generates a unique delegation call (correlation) identifier.
func NewCallID() string { return "call_" + uuid.NewString() }
