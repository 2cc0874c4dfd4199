package core

// StreamEventType discriminates the typed stream variants produced by an
// upstream execution engine. Low-level events (item added/done, deltas) carry
// an output position; high-level semantic events may not.
type StreamEventType string

const (
	// StreamItemAdded signals a new output item at a position.
	StreamItemAdded StreamEventType = "item_added"
	// StreamItemDone signals an output item at a position is complete.
	StreamItemDone StreamEventType = "item_done"
	// StreamContentDelta carries an incremental text fragment for an item.
	StreamContentDelta StreamEventType = "content_delta"
	// StreamArgumentsDelta carries an incremental tool-argument fragment.
	StreamArgumentsDelta StreamEventType = "arguments_delta"
	// StreamItemProduced is the high-level semantic "item produced" event.
	StreamItemProduced StreamEventType = "item_produced"
)

// ItemKind categorizes the logical item an event refers to.
type ItemKind string

const (
	// ItemMessage is a conversational message item.
	ItemMessage ItemKind = "message"
	// ItemReasoning is a reasoning trace item.
	ItemReasoning ItemKind = "reasoning"
	// ItemToolCall is a tool / delegation call item.
	ItemToolCall ItemKind = "tool_call"
	// ItemToolOutput is the output of a tool / delegation call.
	ItemToolOutput ItemKind = "tool_output"
)

// NoPosition marks events whose producer did not report an output position.
const NoPosition = -1

// StreamEvent is one typed event from an upstream execution stream. Optional
// shape is resolved here, at the boundary, instead of probed downstream:
// every field that may be absent has an explicit zero / NoPosition encoding.
//
// ItemID may be SentinelID when the upstream reuses a placeholder identity;
// the normalizer rewrites it into a stable one before records are derived.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	RunID    string          `json:"run_id,omitempty"`
	Position int             `json:"position"`
	Item     ItemKind        `json:"item,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	CallID   string          `json:"call_id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Delta    string          `json:"delta,omitempty"`
}

// IsToolKind reports whether the event refers to a tool-style item. Tool items
// never use the pending-match queue: they always have or will have a
// correlation id.
func (e StreamEvent) IsToolKind() bool {
	return e.Item == ItemToolCall || e.Item == ItemToolOutput
}

// HasPosition reports whether the event carries a usable output position.
func (e StreamEvent) HasPosition() bool { return e.Position != NoPosition }

// MalformedEventError reports a stream event missing a required discriminant.
type MalformedEventError struct {
	Reason string
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	return "malformed stream event: " + e.Reason
}

// Validate reports whether the event satisfies the minimal structural contract.
func (e StreamEvent) Validate() error {
	if e.Type == "" {
		return &MalformedEventError{Reason: "missing required field 'type'"}
	}
	return nil
}
