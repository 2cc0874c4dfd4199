package core

// Run describes one execution of one agent. Runs are created immediately
// before an agent begins processing input, never mutated afterwards, and
// referenced (not owned) by every Record produced during that execution.
//
// ParentID is nil for the root, user-initiated run. For a delegated run it is
// the correlation id of the specific delegation call that spawned it, not the
// sender's run id: one run may issue many delegations and the lineage chain
// must distinguish which exact outbound call produced which child.
type Run struct {
	ID        string  `json:"run_id"`
	ParentID  *string `json:"parent_run_id,omitempty"`
	AgentName string  `json:"agent_name"`
}
