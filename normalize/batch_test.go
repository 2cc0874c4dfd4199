package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
)

func TestNormalizeBatch_CallIDPreferred(t *testing.T) {
	records := []core.Record{
		{Kind: core.KindFunctionCall, ID: core.SentinelID, CallID: "call_7", RunID: "r1"},
	}
	out, err := NormalizeBatch(records)
	require.NoError(t, err)
	assert.Equal(t, "call_7", out[0].ID)
}

func TestNormalizeBatch_RunScopedCounters(t *testing.T) {
	records := []core.Record{
		{Kind: core.KindMessage, ID: core.SentinelID, RunID: "r1"},
		{Kind: core.KindMessage, ID: core.SentinelID, RunID: "r2"},
		{Kind: core.KindReasoning, ID: core.SentinelID, RunID: "r1"},
	}
	out, err := NormalizeBatch(records)
	require.NoError(t, err)

	assert.Equal(t, "r1__item_0", out[0].ID)
	assert.Equal(t, "r2__item_0", out[1].ID)
	assert.Equal(t, "r1__item_1", out[2].ID, "counter is local per run id")
}

func TestNormalizeBatch_PositionalFallback(t *testing.T) {
	records := []core.Record{
		{Kind: core.KindMessage, ID: core.SentinelID},
		{Kind: core.KindMessage, ID: ""},
	}
	out, err := NormalizeBatch(records)
	require.NoError(t, err)

	assert.Equal(t, "item_0", out[0].ID)
	assert.Equal(t, "item_1", out[1].ID)
}

func TestNormalizeBatch_StableIdentitiesUntouched(t *testing.T) {
	rec := core.NewMessageRecord("worker", nil, "hi")
	out, err := NormalizeBatch([]core.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, out[0].ID)
}

func TestNormalizeBatch_IndependentPerBatch(t *testing.T) {
	batch := []core.Record{{Kind: core.KindMessage, ID: core.SentinelID, RunID: "r1"}}

	first, err := NormalizeBatch(batch)
	require.NoError(t, err)
	second, err := NormalizeBatch(batch)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID, "counters restart per batch")
}

func TestNormalizeBatch_MalformedRejectsWholeBatch(t *testing.T) {
	records := []core.Record{
		{Kind: core.KindMessage, ID: core.SentinelID, RunID: "r1"},
		{ID: core.SentinelID}, // missing kind
	}
	out, err := NormalizeBatch(records)
	require.Error(t, err)
	assert.Nil(t, out)

	var malformed *core.MalformedRecordError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 1, malformed.Index)
}
