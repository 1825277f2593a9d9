// Package access decides who may call gated ledger entry points and whether
// a scope is paused.
//
// Roles keeps no state of its own. The owner comes from the token settings,
// and the approved-platform and approved-NFT sets and pause flags are
// repository rows reached through the same State handle as the ledger.
package access

import (
	"context"

	"github.com/roach88/tokenledger/internal/ledger"
)

// Roles implements ledger.Authorizer and ledger.Pauser.
type Roles struct {
	state ledger.State
}

// New creates a Roles view over state.
func New(state ledger.State) *Roles {
	return &Roles{state: state}
}

// callerRoles maps operations that are gated by registration rather than
// ownership.
var callerRoles = map[ledger.Operation]ledger.Role{
	ledger.OpBurnPlatformFee: ledger.RolePlatform,
	ledger.OpBurnForNFT:      ledger.RoleNFTContract,
}

// Authorize returns nil if caller may perform op.
//
// Registration-gated operations fail with NOT_APPROVED_CALLER. Every other
// operation is administrator-only and fails with UNAUTHORIZED unless caller
// is the assigned owner.
func (r *Roles) Authorize(ctx context.Context, caller ledger.Address, op ledger.Operation) error {
	if role, ok := callerRoles[op]; ok {
		approved, err := r.state.IsApproved(ctx, role, caller)
		if err != nil {
			return err
		}
		if !approved {
			return ledger.Errorf(ledger.ErrCodeNotApprovedCaller, "%s is not an approved %s", caller, role)
		}
		return nil
	}

	s, err := r.state.Settings(ctx)
	if err != nil {
		return err
	}
	if s.Phase != ledger.PhaseOwnerAssigned || caller.IsZero() || caller != s.Owner {
		return ledger.Errorf(ledger.ErrCodeUnauthorized, "%s is not the owner (op %s)", caller, op)
	}
	return nil
}

// Paused reports the pause flag for scope.
func (r *Roles) Paused(ctx context.Context, scope ledger.Scope) (bool, error) {
	return r.state.IsPaused(ctx, scope)
}
