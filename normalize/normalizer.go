package normalize

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/logging"
)

// positionState tracks one (run, output position). A position is "assigned"
// once an identity is cached for it; it stays claimable by a high-level event
// until something with item semantics has claimed it.
type positionState struct {
	id      string
	kind    core.ItemKind
	claimed bool
}

// runState is the per-run identity mapping. pending holds identities that were
// pre-allocated by high-level events and are waiting for the matching
// low-level positional event to arrive.
type runState struct {
	counter   int
	positions map[int]*positionState
	order     []int // positions in first-seen order
	pending   map[core.ItemKind][]string
	byCall    map[string]string
}

func newRunState() *runState {
	return &runState{
		positions: make(map[int]*positionState),
		pending:   make(map[core.ItemKind][]string),
		byCall:    make(map[string]string),
	}
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Logger receives assignment diagnostics.
	Logger logging.Logger
}

// Normalizer converts an upstream event stream into one carrying stable
// identifiers. It is safe for concurrent feeders; when all events of one run
// are delivered in emission order by a single task the lock is uncontended.
type Normalizer struct {
	mu     sync.Mutex
	runs   map[string]*runState
	logger logging.Logger
}

// New constructs a Normalizer with optional overrides.
func New(optFns ...func(o *Options)) *Normalizer {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Normalizer{runs: make(map[string]*runState), logger: opts.Logger}
}

// NormalizeEvent rewrites the event's item identity in place and returns the
// result. Events are never reordered; the caller must deliver one run's events
// in upstream emission order.
func (n *Normalizer) NormalizeEvent(ev core.StreamEvent) (core.StreamEvent, error) {
	if err := ev.Validate(); err != nil {
		return ev, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	rs, ok := n.runs[ev.RunID]
	if !ok {
		rs = newRunState()
		n.runs[ev.RunID] = rs
	}

	original := ev.ItemID
	switch ev.Type {
	case core.StreamItemAdded, core.StreamItemDone:
		ev.ItemID = rs.assignPositional(ev)
	case core.StreamContentDelta, core.StreamArgumentsDelta:
		ev.ItemID = rs.assignDelta(ev)
	case core.StreamItemProduced:
		ev.ItemID = rs.assignSemantic(ev)
	}
	if ev.ItemID != original {
		n.logger.Debug("assigned stream identity run_id=%s type=%s item=%s item_id=%s", ev.RunID, ev.Type, ev.Item, ev.ItemID)
	}

	return ev, nil
}

// EndRun discards the identity mapping for a completed run.
func (n *Normalizer) EndRun(runID string) {
	n.mu.Lock()
	delete(n.runs, runID)
	n.mu.Unlock()
}

// assignPositional handles low-level item added/done events.
func (rs *runState) assignPositional(ev core.StreamEvent) string {
	if !ev.HasPosition() {
		return rs.claimOrSynthesize(ev)
	}
	if ps, ok := rs.positions[ev.Position]; ok {
		// Done (or repeated added) for a known position reuses the cached id.
		return ps.id
	}

	var id string
	claimed := false
	switch {
	case ev.ItemID != "" && ev.ItemID != core.SentinelID:
		// Native producers already emit stable identities; cache them so
		// deltas for the same position can be rewritten consistently.
		id = ev.ItemID
		claimed = true
	case ev.IsToolKind() && ev.CallID != "" && ev.CallID != core.SentinelID:
		// Tool correlation ids are stable and preferred over synthetic ones.
		id = ev.CallID
		claimed = true
		rs.byCall[ev.CallID] = id
	case len(rs.pending[ev.Item]) > 0 && !ev.IsToolKind():
		id = rs.pending[ev.Item][0]
		rs.pending[ev.Item] = rs.pending[ev.Item][1:]
		claimed = true
	default:
		id = rs.synthesize(ev.RunID)
	}

	rs.positions[ev.Position] = &positionState{id: id, kind: ev.Item, claimed: claimed}
	rs.order = append(rs.order, ev.Position)
	return id
}

// assignDelta handles low-level content / argument delta events. A delta seen
// before its "added" event still gets a synthetic identity cached under the
// position, left unclaimed so a later high-level event can claim it.
func (rs *runState) assignDelta(ev core.StreamEvent) string {
	if !ev.HasPosition() {
		return ev.ItemID
	}
	if ps, ok := rs.positions[ev.Position]; ok {
		return ps.id
	}

	id := rs.synthesize(ev.RunID)
	rs.positions[ev.Position] = &positionState{id: id, kind: ev.Item}
	rs.order = append(rs.order, ev.Position)
	return id
}

// assignSemantic handles high-level "item produced" events still carrying the
// sentinel identity on their item.
func (rs *runState) assignSemantic(ev core.StreamEvent) string {
	if ev.ItemID != "" && ev.ItemID != core.SentinelID {
		return ev.ItemID
	}
	if ev.IsToolKind() && ev.CallID != "" && ev.CallID != core.SentinelID {
		if id, ok := rs.byCall[ev.CallID]; ok {
			return id
		}
		rs.byCall[ev.CallID] = ev.CallID
		return ev.CallID
	}
	return rs.claimOrSynthesize(ev)
}

// claimOrSynthesize claims the oldest still-unmatched position of the same
// kind, or synthesizes a fresh identity and enqueues it for a future
// low-level event to claim. Only message and reasoning kinds participate:
// tool items always have or will have a correlation id.
func (rs *runState) claimOrSynthesize(ev core.StreamEvent) string {
	for _, pos := range rs.order {
		ps := rs.positions[pos]
		if !ps.claimed && ps.kind == ev.Item {
			ps.claimed = true
			return ps.id
		}
	}
	id := rs.synthesize(ev.RunID)
	if !ev.IsToolKind() {
		rs.pending[ev.Item] = append(rs.pending[ev.Item], id)
	}
	return id
}

// synthesize allocates the next run-scoped monotonic identity.
func (rs *runState) synthesize(runID string) string {
	n := rs.counter
	rs.counter++
	if runID == "" {
		return fmt.Sprintf("item_%d", n)
	}
	return fmt.Sprintf("%s__item_%d", runID, n)
}
