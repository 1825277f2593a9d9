// Package ledger implements the fungible-token ledger with its deflationary
// transfer mechanism.
//
// A Token is composed of independent capabilities wired over one State
// handle:
//
//   - Exemption registry: accounts whose transfers bypass the burn entirely
//   - Rate controller: the global burn rate and its supply-tiered policy
//   - Burn engine: the three-way split of a burning transfer
//   - Specialized burns: platform fees, NFT interactions, KPI milestones
//
// Authorization and pause decisions are consumed through the Authorizer and
// Pauser interfaces; the package never decides who is an administrator.
//
// # Atomicity
//
// Entry points assume they run inside a single serialized unit of work. They
// validate before writing where practical, but the host is responsible for
// discarding partial writes when an entry point returns an error. The engine
// does this with one SQLite transaction per call.
//
// # Burn split
//
// For a burning transfer of amount at rate bps:
//
//	burn      = floor(amount * bps / 10000)
//	burnNow   = floor(burn / 2)        destroyed, reduces total supply
//	toReserve = burn - burnNow         moved to the reserve address
//	send      = amount - burn          delivered to the recipient
//
// send + burnNow + toReserve == amount holds exactly.
package ledger
