// Package core provides the foundational domain types shared by every layer of
// AgentSwarm. It defines the core abstractions for:
//
//   - Records (entries in the shared, ordered conversation log)
//   - Runs (one execution of one agent, linked to the delegation that spawned it)
//   - Stream events (typed variants emitted by an upstream execution engine)
//   - The sentinel identity contract and effective merge keys
//   - Structured error values for malformed input
//
// The package intentionally keeps implementation concerns (storage, guarding,
// normalization, upstream adapters) out of scope so that higher packages can
// depend on a small, stable contract.
package core
