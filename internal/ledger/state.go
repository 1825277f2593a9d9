package ledger

import (
	"context"

	"github.com/holiman/uint256"
)

// Address identifies an account. The empty string is the zero address.
type Address string

// ZeroAddress is the unset address.
const ZeroAddress Address = ""

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Phase is the initialization state of the token.
//
// Transitions are single-use: uninitialized → configured → owner_assigned.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseConfigured    Phase = "configured"
	PhaseOwnerAssigned Phase = "owner_assigned"
)

// Settings holds the token's singleton configuration and RateState.
type Settings struct {
	Phase       Phase
	Self        Address // the ledger's own holding account
	Deployer    Address
	Owner       Address
	Reserve     Address
	BurnRateBps uint64
	DynamicBurn bool
}

// Event is an audit record emitted by an entry point. Fields hold only
// strings, int64 and bool values so they serialize canonically.
type Event struct {
	Kind   string
	Fields map[string]any
}

// Emitter receives events. Events are buffered by the host and persisted only
// if the entry point succeeds.
type Emitter interface {
	Emit(ev Event)
}

// State is the repository handle the token operates on. The host supplies one
// per entry point, scoped to a single atomic unit of work.
type State interface {
	Emitter

	Balance(ctx context.Context, account Address) (*uint256.Int, error)
	SetBalance(ctx context.Context, account Address, amount *uint256.Int) error
	Balances(ctx context.Context) (map[Address]*uint256.Int, error)

	TotalSupply(ctx context.Context) (*uint256.Int, error)
	SetTotalSupply(ctx context.Context, amount *uint256.Int) error

	IsExempt(ctx context.Context, account Address) (bool, error)
	SetExempt(ctx context.Context, account Address, exempt bool) error

	Allowance(ctx context.Context, owner, spender Address) (*uint256.Int, error)
	SetAllowance(ctx context.Context, owner, spender Address, amount *uint256.Int) error

	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	IsApproved(ctx context.Context, role Role, account Address) (bool, error)
	SetApproved(ctx context.Context, role Role, account Address, approved bool) error

	IsPaused(ctx context.Context, scope Scope) (bool, error)
	SetPaused(ctx context.Context, scope Scope, paused bool) error
}

// Role is a registered-caller set consulted by the specialized burn paths.
type Role string

const (
	RolePlatform    Role = "platform"
	RoleNFTContract Role = "nft-contract"
)

// Operation names a gated entry point.
type Operation string

const (
	OpSetBurnRate         Operation = "set-burn-rate"
	OpSetReserveAddress   Operation = "set-reserve-burn-address"
	OpSetExemptFromBurn   Operation = "set-exempt-from-burn"
	OpSetDynamicBurn      Operation = "set-dynamic-burn-enabled"
	OpSetApprovedPlatform Operation = "set-approved-platform"
	OpSetApprovedNFT      Operation = "set-approved-nft-contract"
	OpSetPaused           Operation = "set-paused"
	OpBurnPlatformFee     Operation = "burn-platform-fee"
	OpBurnForNFT          Operation = "burn-for-nft"
	OpBurnKPIEvent        Operation = "burn-kpi-event"
	OpInitializeVault     Operation = "initialize-vault"
	OpAddVestingSchedule  Operation = "add-vesting-schedule"
	OpAdminWithdraw       Operation = "admin-withdraw"
)

// Authorizer decides whether caller may perform op. It returns nil when
// allowed and an *Error (UNAUTHORIZED or NOT_APPROVED_CALLER) otherwise.
type Authorizer interface {
	Authorize(ctx context.Context, caller Address, op Operation) error
}

// Scope selects which pause flag to consult.
type Scope string

const (
	ScopeTransfers Scope = "transfers"
	ScopeClaims    Scope = "claims"
)

// Pauser reports whether a scope is currently halted.
type Pauser interface {
	Paused(ctx context.Context, scope Scope) (bool, error)
}
