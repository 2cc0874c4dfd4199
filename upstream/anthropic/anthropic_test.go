package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/normalize"
)

func blockStart(index int64, blockType, id, name string) anthropic.MessageStreamEventUnion {
	return anthropic.MessageStreamEventUnion{
		Type:  "content_block_start",
		Index: index,
		ContentBlock: anthropic.ContentBlockStartEventContentBlockUnion{
			Type: blockType,
			ID:   id,
			Name: name,
		},
	}
}

func textDelta(index int64, text string) anthropic.MessageStreamEventUnion {
	return anthropic.MessageStreamEventUnion{
		Type:  "content_block_delta",
		Index: index,
		Delta: anthropic.MessageStreamEventUnionDelta{Type: "text_delta", Text: text},
	}
}

func jsonDelta(index int64, partial string) anthropic.MessageStreamEventUnion {
	return anthropic.MessageStreamEventUnion{
		Type:  "content_block_delta",
		Index: index,
		Delta: anthropic.MessageStreamEventUnionDelta{Type: "input_json_delta", PartialJSON: partial},
	}
}

func blockStop(index int64) anthropic.MessageStreamEventUnion {
	return anthropic.MessageStreamEventUnion{Type: "content_block_stop", Index: index}
}

func TestStreamAdapter_TextBlock(t *testing.T) {
	a := NewStreamAdapter("run-1")

	events := a.Feed(blockStart(0, "text", "", ""))
	require.Len(t, events, 1)
	assert.Equal(t, core.StreamItemAdded, events[0].Type)
	assert.Equal(t, core.ItemMessage, events[0].Item)
	assert.Equal(t, core.SentinelID, events[0].ItemID)
	assert.Equal(t, 0, events[0].Position)

	events = a.Feed(textDelta(0, "Hello"))
	require.Len(t, events, 1)
	assert.Equal(t, core.StreamContentDelta, events[0].Type)
	assert.Equal(t, "Hello", events[0].Delta)

	events = a.Feed(blockStop(0))
	require.Len(t, events, 1)
	assert.Equal(t, core.StreamItemDone, events[0].Type)

	events = a.Feed(anthropic.MessageStreamEventUnion{Type: "message_stop"})
	require.Len(t, events, 1)
	assert.Equal(t, core.StreamItemProduced, events[0].Type)
	assert.Equal(t, core.NoPosition, events[0].Position)
}

func TestStreamAdapter_ToolUseBlockKeepsCorrelationID(t *testing.T) {
	a := NewStreamAdapter("run-1")

	events := a.Feed(blockStart(1, "tool_use", "toolu_01", "search"))
	require.Len(t, events, 1)
	assert.Equal(t, core.ItemToolCall, events[0].Item)
	assert.Equal(t, "toolu_01", events[0].CallID)
	assert.Equal(t, "search", events[0].Name)

	events = a.Feed(jsonDelta(1, `{"q":"go"}`))
	require.Len(t, events, 1)
	assert.Equal(t, core.StreamArgumentsDelta, events[0].Type)
	assert.Equal(t, "toolu_01", events[0].CallID)

	events = a.Feed(blockStop(1))
	require.Len(t, events, 1)
	assert.Equal(t, "toolu_01", events[0].CallID)
}

func TestStreamAdapter_ThinkingBlock(t *testing.T) {
	a := NewStreamAdapter("run-1")

	events := a.Feed(blockStart(0, "thinking", "", ""))
	require.Len(t, events, 1)
	assert.Equal(t, core.ItemReasoning, events[0].Item)

	events = a.Feed(anthropic.MessageStreamEventUnion{
		Type:  "content_block_delta",
		Index: 0,
		Delta: anthropic.MessageStreamEventUnionDelta{Type: "thinking_delta", Thinking: "hmm"},
	})
	require.Len(t, events, 1)
	assert.Equal(t, core.StreamContentDelta, events[0].Type)
	assert.Equal(t, "hmm", events[0].Delta)
}

func TestStreamAdapter_IgnoresNonBlockEvents(t *testing.T) {
	a := NewStreamAdapter("run-1")
	assert.Empty(t, a.Feed(anthropic.MessageStreamEventUnion{Type: "message_start"}))
	assert.Empty(t, a.Feed(anthropic.MessageStreamEventUnion{Type: "message_delta"}))
}

func TestStreamAdapter_DeltaBeforeStart(t *testing.T) {
	a := NewStreamAdapter("run-1")

	events := a.Feed(jsonDelta(0, "{}"))
	require.Len(t, events, 1)
	assert.Equal(t, core.ItemToolCall, events[0].Item)
	assert.Equal(t, core.StreamArgumentsDelta, events[0].Type)
}

func TestStreamAdapter_NormalizesCleanly(t *testing.T) {
	a := NewStreamAdapter("run-1")
	n := normalize.New()

	var all []core.StreamEvent
	all = append(all, a.Feed(blockStart(0, "text", "", ""))...)
	all = append(all, a.Feed(textDelta(0, "hi"))...)
	all = append(all, a.Feed(blockStart(1, "tool_use", "toolu_9", "ping"))...)
	all = append(all, a.Feed(jsonDelta(1, "{}"))...)
	all = append(all, a.Feed(blockStop(0))...)
	all = append(all, a.Feed(blockStop(1))...)
	all = append(all, a.Feed(anthropic.MessageStreamEventUnion{Type: "message_stop"})...)

	ids := map[string]struct{}{}
	for _, ev := range all {
		out, err := n.NormalizeEvent(ev)
		require.NoError(t, err)
		assert.NotEqual(t, core.SentinelID, out.ItemID)
		ids[out.ItemID] = struct{}{}
	}
	assert.Contains(t, ids, "run-1__item_0")
	assert.Contains(t, ids, "toolu_9")
}
