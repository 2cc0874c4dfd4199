// Package session implements the coordination session: one isolated instance
// of a cooperating agent swarm. The session owns the shared conversation log,
// the delegation guard state, the lineage tracker and the stream normalizer
// for its swarm, and keys all of it by (session id, agent name).
//
// Agent definitions are frequently module-level singletons reused across
// sessions; nothing in this package ever stores mutable runtime state on the
// definition itself. Two sessions built from the same definitions never see
// each other's pending delegations or recipient registries.
//
// Turn execution belongs to an external engine: callers register a TurnFunc
// per agent and the session brackets each invocation with guard, lineage and
// log bookkeeping.
package session
