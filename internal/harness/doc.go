// Package harness runs YAML ledger scenarios against a real engine and
// checks the outcome.
//
// # Scenario Format
//
//	name: burn_on_transfer
//	description: "What this scenario validates"
//	genesis: ../genesis/launch.cue   # optional, relative to the scenario
//	rate_mode: inline                # optional: inline or explicit
//	steps:
//	  - op: transfer
//	    caller: treasury
//	    time: 1000                   # optional; the clock keeps its last value
//	    args: { recipient: alice, amount: "500 tokens" }
//	    expect:
//	      result: { sent: "485 tokens", burned: "7.5 tokens" }
//	  - op: transfer
//	    caller: bob
//	    args: { recipient: carol, amount: 1 }
//	    expect:
//	      error: INSUFFICIENT_BALANCE
//	assertions:
//	  - type: balance
//	    account: alice
//	    equals: "485 tokens"
//	  - type: supply_invariant
//
// Amounts are base units. A string of the form "<n> tokens" is scaled by
// 10^18 wherever an amount is expected; n may carry a fractional part.
//
// Read-only ops in steps go through Query and are not recorded.
//
// # Assertion Types
//
//   - balance: balance of account equals the amount
//   - total_supply: total supply equals the amount
//   - released: released amount of (beneficiary, index) equals the amount
//   - event_count: the event log holds exactly count events of kind
//   - event_order: the listed kinds occur in the event log in that order
//   - supply_invariant: balances sum to total supply
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with a fixed flow token
// and a manual host clock, so the recorded trace is identical across runs and
// can be compared against golden files.
package harness
