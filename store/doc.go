// Package store implements the shared conversation log used by every agent in
// one coordination session. The Store is an ordered, append-biased log with
// idempotent upsert semantics: incoming records merge by effective key
// (correlation id for delegation outputs, identity otherwise) instead of being
// blindly appended, so an in-progress delegation call can be updated with its
// final status without duplicating entries.
//
// Persistence is a collaborator concern: an optional load callback seeds the
// log at construction and an optional save callback receives each merged batch
// after the critical section exits. Save failures are logged and surfaced on
// an observability channel, never propagated back to fail the caller's merge;
// in-memory state is the source of truth for the current process.
//
// Add durable backends (SQLite, Postgres, object storage, etc.) in
// sub-packages without changing any calling code; only the wiring layer needs
// to decide which implementation supplies the callbacks.
package store
