// Package store provides SQLite-backed durable storage for the token ledger,
// the vesting vault and the audit log.
//
// # Layout
//
//   - State tables: token_settings, balances, exemptions, allowances,
//     approvals, pauses, vault_settings, schedules
//   - Log tables: calls (every delivered entry point) and events (emitted by
//     successful calls only)
//
// # Atomicity
//
// Each entry point runs inside one Tx. On failure the engine rolls the Tx
// back and records the failed call in a fresh one, so a failure leaves no
// trace in state tables.
//
// # Ordering
//
// All log ordering uses seq INTEGER (logical clock), never timestamps.
// Events are ordered by (seq, idx).
//
// # Encoding
//
// Amounts are stored as base-10 TEXT because they exceed int64. Args, results
// and event fields are RFC 8785 canonical JSON produced by package audit.
package store
