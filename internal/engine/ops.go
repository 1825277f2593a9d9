package engine

import (
	"context"
	"sort"

	"github.com/holiman/uint256"

	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/vesting"
)

// env is what a handler sees: views over the call's transaction.
type env struct {
	token  *ledger.Token
	vault  *vesting.Vault
	caller ledger.Address
}

type handlerFunc func(ctx context.Context, e env, a *args) (map[string]any, error)

type handler struct {
	query bool
	run   handlerFunc
}

// handlers maps op names to handlers. Mutating ops go through Execute,
// read-only ops through Query.
var handlers = map[string]handler{
	// Token lifecycle
	"initialize":   {run: opInitialize},
	"assign-owner": {run: opAssignOwner},

	// Transfers
	"transfer":       {run: opTransfer},
	"transfer-from":  {run: opTransferFrom},
	"approve":        {run: opApprove},
	"sync-burn-rate": {run: opSyncBurnRate},

	// Administration
	"set-burn-rate":             {run: opSetBurnRate},
	"set-reserve-burn-address":  {run: opSetReserveBurnAddress},
	"set-exempt-from-burn":      {run: opSetExemptFromBurn},
	"set-dynamic-burn-enabled":  {run: opSetDynamicBurnEnabled},
	"set-approved-platform":     {run: opSetApprovedPlatform},
	"set-approved-nft-contract": {run: opSetApprovedNFTContract},
	"set-paused":                {run: opSetPaused},

	// Specialized burns
	"burn-platform-fee": {run: opBurnPlatformFee},
	"burn-for-nft":      {run: opBurnForNFT},
	"burn-kpi-event":    {run: opBurnKPIEvent},

	// Vesting
	"initialize-vault":     {run: opInitializeVault},
	"add-vesting-schedule": {run: opAddVestingSchedule},
	"claim":                {run: opClaim},
	"claim-for":            {run: opClaimFor},
	"deposit-tokens":       {run: opDepositTokens},
	"admin-withdraw":       {run: opAdminWithdraw},

	// Queries
	"balance-of":                {query: true, run: opBalanceOf},
	"total-supply":              {query: true, run: opTotalSupply},
	"allowance":                 {query: true, run: opAllowance},
	"is-exempt":                 {query: true, run: opIsExempt},
	"settings":                  {query: true, run: opSettings},
	"quote-transfer":            {query: true, run: opQuoteTransfer},
	"get-vesting-info":          {query: true, run: opGetVestingInfo},
	"compute-releasable-amount": {query: true, run: opComputeReleasableAmount},
	"get-total-locked":          {query: true, run: opGetTotalLocked},
	"get-pool-balance":          {query: true, run: opGetPoolBalance},
	"schedule-count":            {query: true, run: opScheduleCount},
}

// Ops lists registered op names, sorted. query selects read-only ops.
func Ops(query bool) []string {
	var names []string
	for name, h := range handlers {
		if h.query == query {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func opInitialize(ctx context.Context, e env, a *args) (map[string]any, error) {
	p := ledger.InitParams{
		Self:        a.address("self"),
		Holder:      a.address("holder"),
		Reserve:     a.address("reserve"),
		Supply:      a.amount("supply"),
		BurnRateBps: a.number("burn_rate_bps"),
		DynamicBurn: a.optionalFlag("dynamic_burn", false),
	}
	if err := a.err(); err != nil {
		return nil, err
	}
	if err := e.token.Initialize(ctx, e.caller, p); err != nil {
		return nil, err
	}
	return map[string]any{"supply": p.Supply.Dec()}, nil
}

func opAssignOwner(ctx context.Context, e env, a *args) (map[string]any, error) {
	owner := a.address("owner")
	if err := a.err(); err != nil {
		return nil, err
	}
	if err := e.token.AssignOwner(ctx, e.caller, owner); err != nil {
		return nil, err
	}
	return map[string]any{"owner": string(owner)}, nil
}

func opTransfer(ctx context.Context, e env, a *args) (map[string]any, error) {
	to, amount := a.address("recipient"), a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	res, err := e.token.Transfer(ctx, e.caller, to, amount)
	if err != nil {
		return nil, err
	}
	return transferResult(res), nil
}

func opTransferFrom(ctx context.Context, e env, a *args) (map[string]any, error) {
	from, to, amount := a.address("sender"), a.address("recipient"), a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	res, err := e.token.TransferFrom(ctx, e.caller, from, to, amount)
	if err != nil {
		return nil, err
	}
	return transferResult(res), nil
}

func opApprove(ctx context.Context, e env, a *args) (map[string]any, error) {
	spender, amount := a.address("spender"), a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	if err := e.token.Approve(ctx, e.caller, spender, amount); err != nil {
		return nil, err
	}
	return map[string]any{"allowance": amount.Dec()}, nil
}

func opSyncBurnRate(ctx context.Context, e env, _ *args) (map[string]any, error) {
	rate, err := e.token.SyncBurnRate(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"rate_bps": int64(rate)}, nil
}

func opSetBurnRate(ctx context.Context, e env, a *args) (map[string]any, error) {
	bps := a.number("bps")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.token.SetBurnRate(ctx, e.caller, bps)
}

func opSetReserveBurnAddress(ctx context.Context, e env, a *args) (map[string]any, error) {
	reserve := a.address("reserve")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.token.SetReserveBurnAddress(ctx, e.caller, reserve)
}

func opSetExemptFromBurn(ctx context.Context, e env, a *args) (map[string]any, error) {
	account, exempt := a.address("account"), a.flag("exempt")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.token.SetExemptFromBurn(ctx, e.caller, account, exempt)
}

func opSetDynamicBurnEnabled(ctx context.Context, e env, a *args) (map[string]any, error) {
	enabled := a.flag("enabled")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.token.SetDynamicBurnEnabled(ctx, e.caller, enabled)
}

func opSetApprovedPlatform(ctx context.Context, e env, a *args) (map[string]any, error) {
	platform, approved := a.address("platform"), a.flag("approved")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.token.SetApprovedPlatform(ctx, e.caller, platform, approved)
}

func opSetApprovedNFTContract(ctx context.Context, e env, a *args) (map[string]any, error) {
	contract, approved := a.address("contract"), a.flag("approved")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.token.SetApprovedNFTContract(ctx, e.caller, contract, approved)
}

func opSetPaused(ctx context.Context, e env, a *args) (map[string]any, error) {
	scope, paused := a.str("scope"), a.flag("paused")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.token.SetPaused(ctx, e.caller, ledger.Scope(scope), paused)
}

func opBurnPlatformFee(ctx context.Context, e env, a *args) (map[string]any, error) {
	amount, bps := a.amount("amount"), a.number("bps")
	if err := a.err(); err != nil {
		return nil, err
	}
	split, err := e.token.BurnPlatformFee(ctx, e.caller, amount, bps)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"burned":   split.BurnNow.Dec(),
		"reserved": split.ToReserve.Dec(),
		"retained": split.Send.Dec(),
	}, nil
}

func opBurnForNFT(ctx context.Context, e env, a *args) (map[string]any, error) {
	user, amount := a.address("user"), a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	burned, err := e.token.BurnForNFT(ctx, e.caller, user, amount)
	if err != nil {
		return nil, err
	}
	return map[string]any{"burned": burned.Dec()}, nil
}

func opBurnKPIEvent(ctx context.Context, e env, a *args) (map[string]any, error) {
	amount := a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	if err := e.token.BurnKPIEvent(ctx, e.caller, amount); err != nil {
		return nil, err
	}
	return map[string]any{"burned": amount.Dec()}, nil
}

func opInitializeVault(ctx context.Context, e env, a *args) (map[string]any, error) {
	self := a.address("self")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.vault.Initialize(ctx, e.caller, self)
}

func opAddVestingSchedule(ctx context.Context, e env, a *args) (map[string]any, error) {
	p := vesting.ScheduleParams{
		Beneficiary:        a.address("beneficiary"),
		TotalAmount:        a.amount("total_amount"),
		Start:              a.number("start"),
		CliffDuration:      a.number("cliff_duration"),
		Duration:           a.number("duration"),
		SlicePeriodSeconds: a.number("slice_period_seconds"),
		CliffUnlockPercent: a.number("cliff_unlock_percent"),
	}
	if err := a.err(); err != nil {
		return nil, err
	}
	index, err := e.vault.AddVestingSchedule(ctx, e.caller, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"index": int64(index)}, nil
}

func opClaim(ctx context.Context, e env, a *args) (map[string]any, error) {
	index := a.number("index")
	if err := a.err(); err != nil {
		return nil, err
	}
	res, err := e.vault.Claim(ctx, e.caller, index)
	if err != nil {
		return nil, err
	}
	return claimResult(res), nil
}

func opClaimFor(ctx context.Context, e env, a *args) (map[string]any, error) {
	beneficiary, index := a.address("beneficiary"), a.number("index")
	if err := a.err(); err != nil {
		return nil, err
	}
	res, err := e.vault.ClaimFor(ctx, e.caller, beneficiary, index)
	if err != nil {
		return nil, err
	}
	return claimResult(res), nil
}

func opDepositTokens(ctx context.Context, e env, a *args) (map[string]any, error) {
	amount := a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	credited, err := e.vault.DepositTokens(ctx, e.caller, amount)
	if err != nil {
		return nil, err
	}
	return map[string]any{"credited": credited.Dec()}, nil
}

func opAdminWithdraw(ctx context.Context, e env, a *args) (map[string]any, error) {
	to, amount := a.address("to"), a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	return nil, e.vault.AdminWithdraw(ctx, e.caller, to, amount)
}

func opBalanceOf(ctx context.Context, e env, a *args) (map[string]any, error) {
	account := a.address("account")
	if err := a.err(); err != nil {
		return nil, err
	}
	bal, err := e.token.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}
	return map[string]any{"balance": bal.Dec()}, nil
}

func opTotalSupply(ctx context.Context, e env, _ *args) (map[string]any, error) {
	supply, err := e.token.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"total_supply": supply.Dec()}, nil
}

func opAllowance(ctx context.Context, e env, a *args) (map[string]any, error) {
	owner, spender := a.address("owner"), a.address("spender")
	if err := a.err(); err != nil {
		return nil, err
	}
	v, err := e.token.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, err
	}
	return map[string]any{"allowance": v.Dec()}, nil
}

func opIsExempt(ctx context.Context, e env, a *args) (map[string]any, error) {
	account := a.address("account")
	if err := a.err(); err != nil {
		return nil, err
	}
	exempt, err := e.token.IsExempt(ctx, account)
	if err != nil {
		return nil, err
	}
	return map[string]any{"exempt": exempt}, nil
}

func opSettings(ctx context.Context, e env, _ *args) (map[string]any, error) {
	s, err := e.token.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"phase":         string(s.Phase),
		"self":          string(s.Self),
		"deployer":      string(s.Deployer),
		"owner":         string(s.Owner),
		"reserve":       string(s.Reserve),
		"burn_rate_bps": int64(s.BurnRateBps),
		"dynamic_burn":  s.DynamicBurn,
	}, nil
}

func opQuoteTransfer(ctx context.Context, e env, a *args) (map[string]any, error) {
	from, to, amount := a.address("sender"), a.address("recipient"), a.amount("amount")
	if err := a.err(); err != nil {
		return nil, err
	}
	res, err := e.token.QuoteTransfer(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}
	return transferResult(res), nil
}

func opGetVestingInfo(ctx context.Context, e env, a *args) (map[string]any, error) {
	beneficiary := a.address("beneficiary")
	if err := a.err(); err != nil {
		return nil, err
	}
	schedules, releasable, err := e.vault.VestingInfo(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(schedules))
	for i, s := range schedules {
		out[i] = map[string]any{
			"index":                int64(i),
			"total_amount":         s.TotalAmount.Dec(),
			"released":             s.Released.Dec(),
			"start":                int64(s.Start),
			"cliff":                int64(s.Cliff),
			"duration":             int64(s.Duration),
			"slice_period_seconds": int64(s.SlicePeriodSeconds),
			"cliff_unlock_percent": int64(s.CliffUnlockPercent),
			"releasable":           releasable[i].Dec(),
		}
	}
	return map[string]any{"schedules": out}, nil
}

func opComputeReleasableAmount(ctx context.Context, e env, a *args) (map[string]any, error) {
	beneficiary, index := a.address("beneficiary"), a.number("index")
	if err := a.err(); err != nil {
		return nil, err
	}
	v, err := e.vault.ReleasableAmount(ctx, beneficiary, index)
	if err != nil {
		return nil, err
	}
	return map[string]any{"releasable": v.Dec()}, nil
}

func opGetTotalLocked(ctx context.Context, e env, a *args) (map[string]any, error) {
	beneficiary := a.address("beneficiary")
	if err := a.err(); err != nil {
		return nil, err
	}
	v, err := e.vault.TotalLocked(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	return map[string]any{"total_locked": v.Dec()}, nil
}

func opGetPoolBalance(ctx context.Context, e env, _ *args) (map[string]any, error) {
	v, err := e.vault.PoolBalance(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pool_balance": v.Dec()}, nil
}

func opScheduleCount(ctx context.Context, e env, a *args) (map[string]any, error) {
	beneficiary := a.address("beneficiary")
	if err := a.err(); err != nil {
		return nil, err
	}
	n, err := e.vault.ScheduleCount(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": int64(n)}, nil
}

func transferResult(res ledger.TransferResult) map[string]any {
	return map[string]any{
		"sent":     amountOrZero(res.Sent),
		"burned":   amountOrZero(res.Burned),
		"reserved": amountOrZero(res.Reserved),
		"rate_bps": int64(res.RateBps),
		"exempt":   res.Exempt,
	}
}

func claimResult(res vesting.ClaimResult) map[string]any {
	return map[string]any{
		"beneficiary": string(res.Beneficiary),
		"index":       int64(res.Index),
		"amount":      res.Amount.Dec(),
	}
}

func amountOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
