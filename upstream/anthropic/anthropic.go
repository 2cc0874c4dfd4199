// Package anthropic adapts Anthropic Messages streaming events into the typed
// stream events consumed by the normalizer. Anthropic reports content blocks
// by index; text and thinking blocks carry no identity of their own, so their
// events are emitted with the reserved sentinel identity. Tool-use blocks
// carry a stable correlation id which the normalizer adopts directly.
package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentswarm/core"
)

// blockState remembers the kind and correlation id of an open content block
// so delta and stop events can be attributed without re-probing the union.
type blockState struct {
	kind   core.ItemKind
	callID string
	name   string
}

// StreamAdapter converts one run's message stream into core stream events.
// Feed events in arrival order from a single goroutine.
type StreamAdapter struct {
	runID  string
	blocks map[int64]*blockState
}

// NewStreamAdapter constructs an adapter for one run's stream.
func NewStreamAdapter(runID string) *StreamAdapter {
	return &StreamAdapter{runID: runID, blocks: make(map[int64]*blockState)}
}

// Feed converts one stream event into zero or more core events. Events
// outside the content-block lifecycle (message start, usage deltas) yield
// nothing; message stop yields the high-level "message produced" event.
func (a *StreamAdapter) Feed(event anthropic.MessageStreamEventUnion) []core.StreamEvent {
	switch event.Type {
	case "content_block_start":
		return a.blockStart(event)
	case "content_block_delta":
		return a.blockDelta(event)
	case "content_block_stop":
		return a.blockStop(event)
	case "message_stop":
		return []core.StreamEvent{{
			Type:     core.StreamItemProduced,
			RunID:    a.runID,
			Position: core.NoPosition,
			Item:     core.ItemMessage,
			ItemID:   core.SentinelID,
		}}
	default:
		return nil
	}
}

func (a *StreamAdapter) blockStart(event anthropic.MessageStreamEventUnion) []core.StreamEvent {
	bs := &blockState{kind: core.ItemMessage}
	switch event.ContentBlock.Type {
	case "thinking":
		bs.kind = core.ItemReasoning
	case "tool_use":
		bs.kind = core.ItemToolCall
		bs.callID = event.ContentBlock.ID
		bs.name = event.ContentBlock.Name
	}
	a.blocks[event.Index] = bs

	return []core.StreamEvent{{
		Type:     core.StreamItemAdded,
		RunID:    a.runID,
		Position: int(event.Index),
		Item:     bs.kind,
		ItemID:   core.SentinelID,
		CallID:   bs.callID,
		Name:     bs.name,
	}}
}

func (a *StreamAdapter) blockDelta(event anthropic.MessageStreamEventUnion) []core.StreamEvent {
	bs, ok := a.blocks[event.Index]
	if !ok {
		// Delta for a block whose start was never seen: attribute it by
		// delta type so the normalizer can still assign an identity.
		bs = &blockState{kind: core.ItemMessage}
		if event.Delta.Type == "input_json_delta" {
			bs.kind = core.ItemToolCall
		}
		a.blocks[event.Index] = bs
	}

	ev := core.StreamEvent{
		RunID:    a.runID,
		Position: int(event.Index),
		Item:     bs.kind,
		ItemID:   core.SentinelID,
		CallID:   bs.callID,
	}
	switch event.Delta.Type {
	case "text_delta":
		ev.Type = core.StreamContentDelta
		ev.Delta = event.Delta.Text
	case "thinking_delta":
		ev.Type = core.StreamContentDelta
		ev.Delta = event.Delta.Thinking
	case "input_json_delta":
		ev.Type = core.StreamArgumentsDelta
		ev.Delta = event.Delta.PartialJSON
	default:
		return nil
	}
	return []core.StreamEvent{ev}
}

func (a *StreamAdapter) blockStop(event anthropic.MessageStreamEventUnion) []core.StreamEvent {
	bs, ok := a.blocks[event.Index]
	if !ok {
		return nil
	}
	return []core.StreamEvent{{
		Type:     core.StreamItemDone,
		RunID:    a.runID,
		Position: int(event.Index),
		Item:     bs.kind,
		ItemID:   core.SentinelID,
		CallID:   bs.callID,
		Name:     bs.name,
	}}
}
