package normalize

import (
	"fmt"

	"github.com/hupe1980/agentswarm/core"
)

// NormalizeBatch assigns stable identities to already-finalized conversation
// records. Unlike the live stream path this is applied independently per
// batch, with a local counter keyed by each record's run id:
//
//   - records carrying a stable identity pass through unchanged
//   - sentinel-identity records receive their call id when present and stable
//   - otherwise a run-scoped synthetic identity is assigned
//   - records without any run id receive a positional fallback identity
//
// A malformed record (missing kind) rejects the whole batch.
func NormalizeBatch(records []core.Record) ([]core.Record, error) {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			if mErr, ok := err.(*core.MalformedRecordError); ok {
				mErr.Index = i
			}
			return nil, fmt.Errorf("rejecting batch: %w", err)
		}
	}

	counters := make(map[string]int)
	out := make([]core.Record, len(records))
	for i, r := range records {
		if r.HasStableID() {
			out[i] = r
			continue
		}
		switch {
		case r.HasStableCallID():
			r.ID = r.CallID
		case r.RunID != "":
			n := counters[r.RunID]
			counters[r.RunID] = n + 1
			r.ID = fmt.Sprintf("%s__item_%d", r.RunID, n)
		default:
			r.ID = fmt.Sprintf("item_%d", i)
		}
		out[i] = r
	}
	return out, nil
}
