// Package guard tracks in-flight delegations per coordination session and
// rejects conflicting concurrent sends. State is addressed by
// (session id, sender name), never stored on shared agent objects: multiple
// independent sessions may reuse the same agent definitions and must never see
// each other's pending entries.
//
// The guard holds no timers. A delegation that never completes is released by
// the caller's own timeout/cancellation path invoking End, which is idempotent
// precisely so that retries after failure are harmless.
package guard

import "sync"

// Policy selects how strictly outbound delegations from one sender are
// serialized.
type Policy int

const (
	// PolicyPerRecipient allows a sender concurrent outstanding delegations to
	// different recipients, but at most one per specific recipient. Default.
	PolicyPerRecipient Policy = iota
	// PolicySingleFlight serializes all outbound delegations from a sender
	// regardless of recipient; a second attempt fails immediately instead of
	// queuing.
	PolicySingleFlight
)

type pendingKey struct {
	sender    string
	recipient string
}

// sessionState carries one coordination session's pending entries behind its
// own lock, so unrelated sessions never contend.
type sessionState struct {
	mu      sync.Mutex
	pending map[pendingKey]struct{}
}

// Guard is the process-wide registry of pending delegations, partitioned by
// coordination session. Safe for concurrent use.
type Guard struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New constructs an empty Guard.
func New() *Guard {
	return &Guard{sessions: make(map[string]*sessionState)}
}

// session returns (creating lazily) the state owned by sessionID. The outer
// lock covers only map lookup, not pending-entry mutation.
func (g *Guard) session(sessionID string) *sessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.sessions[sessionID]
	if !ok {
		st = &sessionState{pending: make(map[pendingKey]struct{})}
		g.sessions[sessionID] = st
	}
	return st
}

// TryBegin atomically checks for a conflicting pending entry and, if none
// exists, records one and reports success. On conflict it reports failure
// without mutating state. The conflict scope depends on policy.
func (g *Guard) TryBegin(sessionID, sender, recipient string, policy Policy) bool {
	st := g.session(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	switch policy {
	case PolicySingleFlight:
		for k := range st.pending {
			if k.sender == sender {
				return false
			}
		}
	default:
		if _, exists := st.pending[pendingKey{sender: sender, recipient: recipient}]; exists {
			return false
		}
	}

	st.pending[pendingKey{sender: sender, recipient: recipient}] = struct{}{}
	return true
}

// End removes the pending entry for (session, sender, recipient). Ending a
// non-existent entry is a no-op, not an error.
func (g *Guard) End(sessionID, sender, recipient string) {
	st := g.session(sessionID)
	st.mu.Lock()
	delete(st.pending, pendingKey{sender: sender, recipient: recipient})
	st.mu.Unlock()
}

// PendingRecipients reports the recipients sender currently has outstanding
// delegations to within the session. Diagnostic helper.
func (g *Guard) PendingRecipients(sessionID, sender string) []string {
	st := g.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	var recipients []string
	for k := range st.pending {
		if k.sender == sender {
			recipients = append(recipients, k.recipient)
		}
	}
	return recipients
}

// Release drops all guard state owned by a coordination session. Called when
// the session ends; subsequent calls are no-ops.
func (g *Guard) Release(sessionID string) {
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
}
