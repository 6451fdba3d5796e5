// Package store provides the in-memory, transactional, key-addressed table
// store that queries execute against.
//
// # Row state
//
// Each Table keeps two maps keyed by the canonical key encoding:
//   - committed: key → scalar snapshot, the durable state
//   - pending: key → Change (Added, Modified or Deleted), at most one per key
//
// The effective view is committed overlaid with pending. It is recomputed
// on every EffectiveRows call and yielded in ascending key order, and it is
// the only read path queries use. Committed rows change only in Commit.
//
// # Transactions
//
// While a Transaction is active, Database.GetTable returns a per-entity
// overlay cloned lazily from the base table's committed rows. Commit clears
// each touched base table and replays the overlay into it; Rollback drops
// the overlays. Only one transaction may be active per Database.
//
// Snapshots are copied in and out of storage, so stored state never aliases
// a caller-held object.
package store
