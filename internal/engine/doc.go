// Package engine is the single-writer host for the token ledger and the
// vesting vault.
//
// Every entry point arrives as a Call naming an op, a caller and string args.
// The engine serializes calls with a mutex and runs each one inside its own
// store transaction:
//
//  1. Stamp the call with the next logical seq and a flow token.
//  2. Build the Token and Vault views over the transaction.
//  3. Dispatch the op.
//  4. On success, stamp buffered events with (seq, index), write the call and
//     its events, and commit.
//  5. On a ledger error, roll back and record the failed call with its error
//     code in a fresh transaction.
//
// A failed call therefore leaves nothing behind but its own call record.
//
// Ordering uses seq only. Timestamps are the host's unix time, supplied per
// call or by a TimeSource, and feed only the vesting calculator.
//
// Replay re-executes the recorded call log against a fresh in-memory store
// and compares outcomes and the final state digest.
package engine
