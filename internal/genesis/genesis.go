// Package genesis loads a CUE genesis file and turns it into the ordered
// calls that bring a fresh store to its launch state.
package genesis

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tokenledger/internal/engine"
	"github.com/roach88/tokenledger/internal/ledger"
)

//go:embed schema.cue
var schemaSource []byte

// Genesis is the decoded launch configuration.
type Genesis struct {
	Time         uint64   `json:"time"`
	Deployer     string   `json:"deployer"`
	Owner        string   `json:"owner"`
	Token        Token    `json:"token"`
	Exempt       []string `json:"exempt"`
	Platforms    []string `json:"platforms"`
	NFTContracts []string `json:"nft_contracts"`
	Vault        *Vault   `json:"vault,omitempty"`
}

// Token configures the genesis mint. InitialSupply is in whole tokens.
type Token struct {
	Self          string `json:"self"`
	Holder        string `json:"holder"`
	Reserve       string `json:"reserve"`
	InitialSupply uint64 `json:"initial_supply"`
	BurnRateBps   uint64 `json:"burn_rate_bps"`
	DynamicBurn   bool   `json:"dynamic_burn"`
}

// Vault configures the vesting vault. The holder funds it with
// FundingTokens before schedules are added.
type Vault struct {
	Self          string     `json:"self"`
	Exempt        bool       `json:"exempt"`
	FundingTokens uint64     `json:"funding_tokens"`
	Schedules     []Schedule `json:"schedules"`
}

// Schedule is one vesting schedule. TotalTokens is in whole tokens.
type Schedule struct {
	Beneficiary        string `json:"beneficiary"`
	TotalTokens        uint64 `json:"total_tokens"`
	Start              uint64 `json:"start"`
	CliffDuration      uint64 `json:"cliff_duration"`
	Duration           uint64 `json:"duration"`
	SlicePeriodSeconds uint64 `json:"slice_period_seconds"`
	CliffUnlockPercent uint64 `json:"cliff_unlock_percent"`
}

// Error reports a genesis file that failed to load or validate.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads and validates the genesis file at path.
func Load(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the genesis schema and decodes it. name is
// used in error positions.
func Parse(name string, data []byte) (*Genesis, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile genesis schema: %w", err)
	}

	file := ctx.CompileBytes(data, cue.Filename(name))
	if err := file.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Genesis")).Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var g Genesis
	if err := v.Decode(&g); err != nil {
		return nil, formatCUEError(err)
	}
	return &g, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	ge := &Error{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ge.Pos = positions[0]
	}
	return ge
}

// Calls expands the genesis into engine calls, in execution order:
// initialize, assign-owner, exemptions, approvals, then the vault with its
// funding and schedules. Every call is pinned to g.Time.
func (g *Genesis) Calls() []engine.Call {
	var calls []engine.Call
	add := func(op, caller string, args map[string]string) {
		at := g.Time
		calls = append(calls, engine.Call{Op: op, Caller: caller, Args: args, Time: &at})
	}

	add("initialize", g.Deployer, map[string]string{
		"self":          g.Token.Self,
		"holder":        g.Token.Holder,
		"reserve":       g.Token.Reserve,
		"supply":        ledger.Tokens(g.Token.InitialSupply).Dec(),
		"burn_rate_bps": strconv.FormatUint(g.Token.BurnRateBps, 10),
		"dynamic_burn":  strconv.FormatBool(g.Token.DynamicBurn),
	})
	add("assign-owner", g.Deployer, map[string]string{"owner": g.Owner})

	exempt := g.Exempt
	if g.Vault != nil && g.Vault.Exempt {
		exempt = append(exempt[:len(exempt):len(exempt)], g.Vault.Self)
	}
	for _, account := range exempt {
		add("set-exempt-from-burn", g.Owner, map[string]string{"account": account, "exempt": "true"})
	}
	for _, p := range g.Platforms {
		add("set-approved-platform", g.Owner, map[string]string{"platform": p, "approved": "true"})
	}
	for _, c := range g.NFTContracts {
		add("set-approved-nft-contract", g.Owner, map[string]string{"contract": c, "approved": "true"})
	}

	if g.Vault == nil {
		return calls
	}
	add("initialize-vault", g.Owner, map[string]string{"self": g.Vault.Self})
	if g.Vault.FundingTokens > 0 {
		add("transfer", g.Token.Holder, map[string]string{
			"recipient": g.Vault.Self,
			"amount":    ledger.Tokens(g.Vault.FundingTokens).Dec(),
		})
	}
	for _, s := range g.Vault.Schedules {
		add("add-vesting-schedule", g.Owner, map[string]string{
			"beneficiary":          s.Beneficiary,
			"total_amount":         ledger.Tokens(s.TotalTokens).Dec(),
			"start":                strconv.FormatUint(s.Start, 10),
			"cliff_duration":       strconv.FormatUint(s.CliffDuration, 10),
			"duration":             strconv.FormatUint(s.Duration, 10),
			"slice_period_seconds": strconv.FormatUint(s.SlicePeriodSeconds, 10),
			"cliff_unlock_percent": strconv.FormatUint(s.CliffUnlockPercent, 10),
		})
	}
	return calls
}

// Apply executes the genesis calls in order and stops at the first failure.
// A rejected call has already been recorded by the engine when Apply returns.
func (g *Genesis) Apply(ctx context.Context, e *engine.Engine) ([]engine.Receipt, error) {
	calls := g.Calls()
	receipts := make([]engine.Receipt, 0, len(calls))
	for i, c := range calls {
		r, err := e.Execute(ctx, c)
		if err != nil {
			return receipts, fmt.Errorf("genesis call %d (%s): %w", i, c.Op, err)
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}
