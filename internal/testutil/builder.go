package testutil

import (
	"time"

	"github.com/hupe1980/agentswarm/core"
)

// RecordBuilder provides a fluent helper for constructing records in tests.
// Example:
//
//	r := NewRecordBuilder().Agent("planner").Run("run-1").Text("hello").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type RecordBuilder struct {
	kind      core.Kind
	id        string
	callID    string
	agent     string
	caller    *string
	runID     string
	parentRun *string
	payload   map[string]any
}

// NewRecordBuilder creates a builder for a message record with default
// agent "agent".
func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{kind: core.KindMessage, agent: "agent", payload: map[string]any{}}
}

// Agent sets the owning agent name (chainable).
func (b *RecordBuilder) Agent(a string) *RecordBuilder { b.agent = a; return b }

// Caller sets the caller agent, marking the record as part of a pair thread (chainable).
func (b *RecordBuilder) Caller(c string) *RecordBuilder { b.caller = &c; return b }

// Run sets the producing run id (chainable).
func (b *RecordBuilder) Run(id string) *RecordBuilder { b.runID = id; return b }

// ParentRun sets the parent lineage token (chainable).
func (b *RecordBuilder) ParentRun(id string) *RecordBuilder { b.parentRun = &id; return b }

// ID overrides the auto-generated record id (chainable). Use where
// determinism matters.
func (b *RecordBuilder) ID(id string) *RecordBuilder { b.id = id; return b }

// Sentinel sets the reserved placeholder identity (chainable).
func (b *RecordBuilder) Sentinel() *RecordBuilder { b.id = core.SentinelID; return b }

// Text turns the record into a message carrying text (chainable).
func (b *RecordBuilder) Text(t string) *RecordBuilder {
	b.kind = core.KindMessage
	b.payload["text"] = t
	return b
}

// Call turns the record into a function call with the given correlation id (chainable).
func (b *RecordBuilder) Call(callID, name string) *RecordBuilder {
	b.kind = core.KindFunctionCall
	b.callID = callID
	b.payload["name"] = name
	return b
}

// Output turns the record into a function call output (chainable).
func (b *RecordBuilder) Output(callID, output string) *RecordBuilder {
	b.kind = core.KindFunctionCallOutput
	b.callID = callID
	b.payload["output"] = output
	return b
}

// Build assembles the record, generating an id when none was set.
func (b *RecordBuilder) Build() core.Record {
	id := b.id
	if id == "" {
		id = core.NewID()
	}
	return core.Record{
		Kind:        b.kind,
		ID:          id,
		CallID:      b.callID,
		Agent:       b.agent,
		CallerAgent: b.caller,
		RunID:       b.runID,
		ParentRunID: b.parentRun,
		Timestamp:   time.Now().UTC(),
		Payload:     b.payload,
	}
}
