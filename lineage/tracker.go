// Package lineage assigns run identifiers to agent invocations and records
// their parent correlation so the full delegation tree can be reconstructed.
//
// The parent of a delegated run is not the sender's run id but the correlation
// id of the specific delegation call that spawned it: one run may issue many
// sequential or parallel delegations, and consumers must be able to answer
// "which exact outbound call produced this nested run?".
package lineage

import (
	"sync"

	"github.com/hupe1980/agentswarm/core"
)

// maxChainDepth bounds ancestor walks against malformed cyclic input.
const maxChainDepth = 1024

// Tracker allocates process-unique run identifiers and keeps the parent links
// needed by ChainFor. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	runs    map[string]core.Run // run id -> run
	callers map[string]string   // call id -> run id that issued the call
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		runs:    make(map[string]core.Run),
		callers: make(map[string]string),
	}
}

// BeginRun allocates a fresh run identifier for agentName and records its
// parent correlation. parentID is nil for root, user-initiated runs; for
// delegated runs it is the correlation id of the spawning call. No two calls
// ever receive the same run id, even under concurrent invocation.
func (t *Tracker) BeginRun(parentID *string, agentName string) string {
	run := core.Run{ID: core.NewRunID(), AgentName: agentName}
	if parentID != nil {
		p := *parentID
		run.ParentID = &p
	}

	t.mu.Lock()
	t.runs[run.ID] = run
	t.mu.Unlock()

	return run.ID
}

// BindCall records that callID was issued from within runID, so that ChainFor
// can resolve a call-id parent link back to the run that made the call.
func (t *Tracker) BindCall(callID, runID string) {
	t.mu.Lock()
	t.callers[callID] = runID
	t.mu.Unlock()
}

// Run returns the recorded run for id.
func (t *Tracker) Run(id string) (core.Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[id]
	return r, ok
}

// ChainFor reconstructs the ancestor path of runID back to the root. The
// returned slice alternates delegation call ids with the runs that issued
// them, e.g. ["call-1", "run_abc"] for a child spawned by call-1 out of
// run_abc (which itself has no parent). An unknown run id yields nil.
func (t *Tracker) ChainFor(runID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chain []string
	cur := runID
	for depth := 0; depth < maxChainDepth; depth++ {
		run, ok := t.runs[cur]
		if !ok || run.ParentID == nil {
			return chain
		}
		parent := *run.ParentID
		chain = append(chain, parent)

		if issuer, ok := t.callers[parent]; ok {
			chain = append(chain, issuer)
			cur = issuer
			continue
		}
		// The parent token is a raw run id (no call correlation recorded).
		cur = parent
	}
	return chain
}
