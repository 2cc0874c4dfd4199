// Package openai adapts OpenAI Chat Completions streaming chunks into the
// typed stream events consumed by the normalizer. Chat Completions does not
// assign a unique identity per output item the way the native streaming
// protocol does; every non-tool event therefore carries the reserved sentinel
// identity and must be normalized before records are derived. Tool call
// events additionally carry the provider's correlation id, which the
// normalizer prefers over synthetic identities.
package openai

import (
	"sort"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentswarm/core"
)

// Text content streams at position 0; tool calls occupy positions starting at 1.
const (
	messagePosition    = 0
	toolPositionOffset = 1
)

// callState aggregates what is known about one streaming tool call so later
// chunks (which may omit the id) still emit a consistent correlation id.
type callState struct {
	id   string
	name string
}

// StreamAdapter converts one run's chunk stream into core stream events.
// Feed chunks in arrival order from a single goroutine.
type StreamAdapter struct {
	runID    string
	textSeen bool
	calls    map[int64]*callState
}

// NewStreamAdapter constructs an adapter for one run's stream.
func NewStreamAdapter(runID string) *StreamAdapter {
	return &StreamAdapter{runID: runID, calls: make(map[int64]*callState)}
}

// Feed converts one chunk into zero or more stream events, in emission order.
// A chunk carrying a finish reason additionally yields the item-done events
// and the high-level "message produced" event for the completed turn.
func (a *StreamAdapter) Feed(chunk openai.ChatCompletionChunk) []core.StreamEvent {
	var events []core.StreamEvent
	for _, choice := range chunk.Choices {
		events = append(events, a.textEvents(choice)...)
		events = append(events, a.toolEvents(choice)...)
		if choice.FinishReason != "" {
			events = append(events, a.finishEvents()...)
		}
	}
	return events
}

func (a *StreamAdapter) textEvents(choice openai.ChatCompletionChunkChoice) []core.StreamEvent {
	if choice.Delta.Content == "" {
		return nil
	}
	var events []core.StreamEvent
	if !a.textSeen {
		a.textSeen = true
		events = append(events, core.StreamEvent{
			Type:     core.StreamItemAdded,
			RunID:    a.runID,
			Position: messagePosition,
			Item:     core.ItemMessage,
			ItemID:   core.SentinelID,
		})
	}
	return append(events, core.StreamEvent{
		Type:     core.StreamContentDelta,
		RunID:    a.runID,
		Position: messagePosition,
		Item:     core.ItemMessage,
		ItemID:   core.SentinelID,
		Delta:    choice.Delta.Content,
	})
}

func (a *StreamAdapter) toolEvents(choice openai.ChatCompletionChunkChoice) []core.StreamEvent {
	var events []core.StreamEvent
	for _, tc := range choice.Delta.ToolCalls {
		cs, known := a.calls[tc.Index]
		if !known {
			cs = &callState{}
			a.calls[tc.Index] = cs
		}
		if tc.ID != "" {
			cs.id = tc.ID
		}
		if tc.Function.Name != "" {
			cs.name = tc.Function.Name
		}

		position := int(tc.Index) + toolPositionOffset
		if !known {
			events = append(events, core.StreamEvent{
				Type:     core.StreamItemAdded,
				RunID:    a.runID,
				Position: position,
				Item:     core.ItemToolCall,
				ItemID:   core.SentinelID,
				CallID:   cs.id,
				Name:     cs.name,
			})
		}
		if tc.Function.Arguments != "" {
			events = append(events, core.StreamEvent{
				Type:     core.StreamArgumentsDelta,
				RunID:    a.runID,
				Position: position,
				Item:     core.ItemToolCall,
				ItemID:   core.SentinelID,
				CallID:   cs.id,
				Delta:    tc.Function.Arguments,
			})
		}
	}
	return events
}

func (a *StreamAdapter) finishEvents() []core.StreamEvent {
	var events []core.StreamEvent
	if a.textSeen {
		events = append(events, core.StreamEvent{
			Type:     core.StreamItemDone,
			RunID:    a.runID,
			Position: messagePosition,
			Item:     core.ItemMessage,
			ItemID:   core.SentinelID,
		})
	}
	indexes := make([]int64, 0, len(a.calls))
	for index := range a.calls {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	for _, index := range indexes {
		cs := a.calls[index]
		events = append(events, core.StreamEvent{
			Type:     core.StreamItemDone,
			RunID:    a.runID,
			Position: int(index) + toolPositionOffset,
			Item:     core.ItemToolCall,
			ItemID:   core.SentinelID,
			CallID:   cs.id,
			Name:     cs.name,
		})
	}
	if a.textSeen {
		events = append(events, core.StreamEvent{
			Type:     core.StreamItemProduced,
			RunID:    a.runID,
			Position: core.NoPosition,
			Item:     core.ItemMessage,
			ItemID:   core.SentinelID,
		})
	}
	return events
}
