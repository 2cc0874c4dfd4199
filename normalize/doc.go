// Package normalize rewrites upstream event streams whose producer reuses one
// reserved placeholder identity across many distinct logical items into
// streams carrying stable, deterministic identifiers.
//
// Identity is load-bearing downstream: deltas must match their parent item,
// tool calls must match their eventual output, and the conversation log
// deduplicates by identity. The normalizer therefore guarantees, per run:
//
//   - repeated processing of the same ordered event sequence converges to the
//     same identity mapping (fresh state each time)
//   - tool-kind items prefer their correlation id, which is already stable and
//     meaningful across the call/output boundary
//   - non-tool items receive monotonically increasing synthetic identities
//     scoped to the run, so two unrelated runs never collide
//
// Per-run state is created lazily on first observation and discarded via
// EndRun when the run's stream completes; it is never persisted.
package normalize
