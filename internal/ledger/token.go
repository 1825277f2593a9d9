package ledger

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// RateMode selects when the tiered burn rate is recomputed.
type RateMode string

const (
	// RateModeInline recomputes the tier inside a burning transfer, before the
	// split. Two identical transfers may realize different rates depending on
	// the order of unrelated transfers around them.
	RateModeInline RateMode = "inline"

	// RateModeExplicit never mutates RateState from a transfer; the tier only
	// moves when SyncBurnRate is called.
	RateModeExplicit RateMode = "explicit"
)

// ParseRateMode validates a rate mode name.
func ParseRateMode(s string) (RateMode, error) {
	switch RateMode(s) {
	case RateModeInline, RateModeExplicit:
		return RateMode(s), nil
	}
	return "", fmt.Errorf("invalid rate mode %q: must be %q or %q", s, RateModeInline, RateModeExplicit)
}

// Token is the ledger entity: balances, burn engine, rate controller and the
// exemption registry, composed over one State handle.
//
// A Token is a view for a single entry point. It holds no state of its own;
// the host constructs one per call over a transactional State.
type Token struct {
	state    State
	auth     Authorizer
	pause    Pauser
	rateMode RateMode
}

// Option configures a Token.
type Option func(*Token)

// WithRateMode sets when the tiered rate is recomputed.
// Default: RateModeInline.
func WithRateMode(m RateMode) Option {
	return func(t *Token) {
		t.rateMode = m
	}
}

// New creates a Token view over state.
func New(state State, auth Authorizer, pause Pauser, opts ...Option) *Token {
	t := &Token{
		state:    state,
		auth:     auth,
		pause:    pause,
		rateMode: RateModeInline,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// InitParams configures the genesis mint.
type InitParams struct {
	Self        Address
	Holder      Address
	Reserve     Address
	Supply      *uint256.Int
	BurnRateBps uint64
	DynamicBurn bool
}

// TransferResult describes how a transfer was realized.
type TransferResult struct {
	Sent     *uint256.Int
	Burned   *uint256.Int
	Reserved *uint256.Int
	RateBps  uint64
	Exempt   bool
}

// Initialize mints the entire supply to the holder and configures RateState.
// This is the only mint path. Allowed once, from PhaseUninitialized.
func (t *Token) Initialize(ctx context.Context, caller Address, p InitParams) error {
	s, err := t.state.Settings(ctx)
	if err != nil {
		return err
	}
	if s.Phase != PhaseUninitialized {
		return Errorf(ErrCodeAlreadyInitialized, "token already initialized (phase %s)", s.Phase)
	}
	if caller.IsZero() || p.Self.IsZero() || p.Holder.IsZero() {
		return Errorf(ErrCodeInvalidAddress, "caller, self and holder must be set")
	}
	if p.Reserve.IsZero() || p.Reserve == p.Self {
		return Errorf(ErrCodeInvalidAddress, "reserve address %q must be set and differ from self", p.Reserve)
	}
	if p.BurnRateBps > MaxBurnRateBps {
		return Errorf(ErrCodeInvalidParameter, "burn rate %d exceeds %d bps", p.BurnRateBps, MaxBurnRateBps)
	}
	supply := Zero()
	if p.Supply != nil {
		supply = p.Supply.Clone()
	}

	if err := t.state.SetBalance(ctx, p.Holder, supply); err != nil {
		return err
	}
	if err := t.state.SetTotalSupply(ctx, supply); err != nil {
		return err
	}
	if err := t.state.SaveSettings(ctx, Settings{
		Phase:       PhaseConfigured,
		Self:        p.Self,
		Deployer:    caller,
		Reserve:     p.Reserve,
		BurnRateBps: p.BurnRateBps,
		DynamicBurn: p.DynamicBurn,
	}); err != nil {
		return err
	}

	t.state.Emit(Event{Kind: "initialized", Fields: map[string]any{
		"self":          string(p.Self),
		"deployer":      string(caller),
		"holder":        string(p.Holder),
		"supply":        supply.Dec(),
		"reserve":       string(p.Reserve),
		"burn_rate_bps": int64(p.BurnRateBps),
		"dynamic_burn":  p.DynamicBurn,
	}})
	t.emitTransfer(ZeroAddress, p.Holder, supply)
	return nil
}

// AssignOwner completes initialization. Only the deployer may call it, once.
func (t *Token) AssignOwner(ctx context.Context, caller, owner Address) error {
	s, err := t.state.Settings(ctx)
	if err != nil {
		return err
	}
	switch s.Phase {
	case PhaseUninitialized:
		return Errorf(ErrCodeNotInitialized, "token not initialized")
	case PhaseOwnerAssigned:
		return Errorf(ErrCodeAlreadyInitialized, "owner already assigned")
	}
	if caller != s.Deployer {
		return Errorf(ErrCodeUnauthorized, "only the deployer may assign the owner")
	}
	if owner.IsZero() {
		return Errorf(ErrCodeInvalidAddress, "owner must be set")
	}
	s.Owner = owner
	s.Phase = PhaseOwnerAssigned
	if err := t.state.SaveSettings(ctx, s); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "owner-assigned", Fields: map[string]any{"owner": string(owner)}})
	return nil
}

// Transfer moves amount from caller to recipient through the burn engine.
func (t *Token) Transfer(ctx context.Context, caller, recipient Address, amount *uint256.Int) (TransferResult, error) {
	return t.transfer(ctx, caller, recipient, amount)
}

// TransferFrom moves amount from sender to recipient on behalf of spender,
// consuming spender's allowance. An allowance of MaxUint256 is never decremented.
func (t *Token) TransferFrom(ctx context.Context, spender, sender, recipient Address, amount *uint256.Int) (TransferResult, error) {
	allowance, err := t.state.Allowance(ctx, sender, spender)
	if err != nil {
		return TransferResult{}, err
	}
	if allowance.Lt(amount) {
		return TransferResult{}, Errorf(ErrCodeInsufficientAllowance,
			"allowance %s of %s for %s is below %s", allowance.Dec(), sender, spender, amount.Dec())
	}
	res, err := t.transfer(ctx, sender, recipient, amount)
	if err != nil {
		return TransferResult{}, err
	}
	if !allowance.Eq(maxAmount) {
		if err := t.state.SetAllowance(ctx, sender, spender, new(uint256.Int).Sub(allowance, amount)); err != nil {
			return TransferResult{}, err
		}
	}
	return res, nil
}

var maxAmount = new(uint256.Int).SetAllOne()

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(ctx context.Context, owner, spender Address, amount *uint256.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return Errorf(ErrCodeInvalidAddress, "owner and spender must be set")
	}
	if err := t.state.SetAllowance(ctx, owner, spender, amount); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "approval", Fields: map[string]any{
		"owner":   string(owner),
		"spender": string(spender),
		"amount":  amount.Dec(),
	}})
	return nil
}

// QuoteTransfer previews how a transfer would be realized without mutating
// state. The returned rate includes a pending tier update.
func (t *Token) QuoteTransfer(ctx context.Context, sender, recipient Address, amount *uint256.Int) (TransferResult, error) {
	p, err := t.plan(ctx, sender, recipient, amount)
	if err != nil {
		return TransferResult{}, err
	}
	return p.result, nil
}

// SyncBurnRate recomputes the tiered rate from total supply when dynamic mode
// is enabled. It is the explicit alternative to the inline recompute and may
// be called by anyone; the outcome depends only on total supply.
func (t *Token) SyncBurnRate(ctx context.Context) (uint64, error) {
	s, err := t.live(ctx)
	if err != nil {
		return 0, err
	}
	if !s.DynamicBurn {
		return s.BurnRateBps, nil
	}
	supply, err := t.state.TotalSupply(ctx)
	if err != nil {
		return 0, err
	}
	rate := TieredRate(supply)
	if err := t.updateRate(ctx, s, rate, "tier"); err != nil {
		return 0, err
	}
	return rate, nil
}

// transferPlan is a fully validated transfer, computed before any write.
type transferPlan struct {
	settings    Settings // with the tier update applied, if any
	oldRate     uint64
	result      TransferResult
	rateChanged bool
}

func (t *Token) plan(ctx context.Context, sender, recipient Address, amount *uint256.Int) (transferPlan, error) {
	s, err := t.live(ctx)
	if err != nil {
		return transferPlan{}, err
	}
	if sender.IsZero() || recipient.IsZero() {
		return transferPlan{}, Errorf(ErrCodeInvalidAddress, "sender and recipient must be set")
	}
	if paused, err := t.pause.Paused(ctx, ScopeTransfers); err != nil {
		return transferPlan{}, err
	} else if paused {
		return transferPlan{}, Errorf(ErrCodePaused, "transfers are paused")
	}
	balance, err := t.state.Balance(ctx, sender)
	if err != nil {
		return transferPlan{}, err
	}
	if balance.Lt(amount) {
		return transferPlan{}, Errorf(ErrCodeInsufficientBalance,
			"balance %s of %s is below %s", balance.Dec(), sender, amount.Dec())
	}

	verbatim := transferPlan{settings: s, result: TransferResult{
		Sent:     amount.Clone(),
		Burned:   Zero(),
		Reserved: Zero(),
	}}

	exempt, err := t.eitherExempt(ctx, sender, recipient)
	if err != nil {
		return transferPlan{}, err
	}
	if exempt {
		verbatim.result.Exempt = true
		return verbatim, nil
	}
	if amount.Lt(MinBurnThreshold(balance)) || s.BurnRateBps == 0 {
		return verbatim, nil
	}

	p := transferPlan{settings: s, oldRate: s.BurnRateBps}
	if t.rateMode == RateModeInline && s.DynamicBurn {
		supply, err := t.state.TotalSupply(ctx)
		if err != nil {
			return transferPlan{}, err
		}
		if rate := TieredRate(supply); rate != s.BurnRateBps {
			p.rateChanged = true
			p.settings.BurnRateBps = rate
		}
	}
	split := SplitBurn(amount, p.settings.BurnRateBps)
	p.result = TransferResult{
		Sent:     split.Send,
		Burned:   split.BurnNow,
		Reserved: split.ToReserve,
		RateBps:  p.settings.BurnRateBps,
	}
	return p, nil
}

func (t *Token) transfer(ctx context.Context, sender, recipient Address, amount *uint256.Int) (TransferResult, error) {
	p, err := t.plan(ctx, sender, recipient, amount)
	if err != nil {
		return TransferResult{}, err
	}
	if p.rateChanged {
		if err := t.state.SaveSettings(ctx, p.settings); err != nil {
			return TransferResult{}, err
		}
		t.emitRateChanged(p.oldRate, p.settings.BurnRateBps, "tier")
	}

	r := p.result
	if !r.Burned.IsZero() {
		if err := t.destroy(ctx, sender, r.Burned); err != nil {
			return TransferResult{}, err
		}
	}
	if !r.Reserved.IsZero() {
		if err := t.move(ctx, sender, p.settings.Reserve, r.Reserved); err != nil {
			return TransferResult{}, err
		}
	}
	if err := t.move(ctx, sender, recipient, r.Sent); err != nil {
		return TransferResult{}, err
	}
	return r, nil
}

func (t *Token) live(ctx context.Context) (Settings, error) {
	s, err := t.state.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if s.Phase == PhaseUninitialized {
		return Settings{}, Errorf(ErrCodeNotInitialized, "token not initialized")
	}
	return s, nil
}

func (t *Token) eitherExempt(ctx context.Context, a, b Address) (bool, error) {
	ok, err := t.state.IsExempt(ctx, a)
	if err != nil || ok {
		return ok, err
	}
	return t.state.IsExempt(ctx, b)
}

func (t *Token) updateRate(ctx context.Context, s Settings, rate uint64, reason string) error {
	if s.BurnRateBps == rate {
		return nil
	}
	old := s.BurnRateBps
	s.BurnRateBps = rate
	if err := t.state.SaveSettings(ctx, s); err != nil {
		return err
	}
	t.emitRateChanged(old, rate, reason)
	return nil
}

// debit subtracts amount from account, failing if the balance is short.
func (t *Token) debit(ctx context.Context, account Address, amount *uint256.Int) error {
	bal, err := t.state.Balance(ctx, account)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return Errorf(ErrCodeInsufficientBalance, "balance %s of %s is below %s", bal.Dec(), account, amount.Dec())
	}
	return t.state.SetBalance(ctx, account, new(uint256.Int).Sub(bal, amount))
}

func (t *Token) credit(ctx context.Context, account Address, amount *uint256.Int) error {
	bal, err := t.state.Balance(ctx, account)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return Errorf(ErrCodeInvalidParameter, "balance of %s overflows", account)
	}
	return t.state.SetBalance(ctx, account, sum)
}

// move is the raw balance-transfer primitive. It applies no burn logic.
func (t *Token) move(ctx context.Context, from, to Address, amount *uint256.Int) error {
	if err := t.debit(ctx, from, amount); err != nil {
		return err
	}
	if err := t.credit(ctx, to, amount); err != nil {
		return err
	}
	t.emitTransfer(from, to, amount)
	return nil
}

// destroy removes amount from account and from total supply.
func (t *Token) destroy(ctx context.Context, account Address, amount *uint256.Int) error {
	if err := t.debit(ctx, account, amount); err != nil {
		return err
	}
	supply, err := t.state.TotalSupply(ctx)
	if err != nil {
		return err
	}
	if supply.Lt(amount) {
		return fmt.Errorf("burn %s exceeds total supply %s", amount.Dec(), supply.Dec())
	}
	if err := t.state.SetTotalSupply(ctx, new(uint256.Int).Sub(supply, amount)); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "burn", Fields: map[string]any{
		"from":   string(account),
		"amount": amount.Dec(),
	}})
	return nil
}

func (t *Token) emitTransfer(from, to Address, amount *uint256.Int) {
	t.state.Emit(Event{Kind: "transfer", Fields: map[string]any{
		"from":   string(from),
		"to":     string(to),
		"amount": amount.Dec(),
	}})
}

func (t *Token) emitRateChanged(old, rate uint64, reason string) {
	t.state.Emit(Event{Kind: "rate-changed", Fields: map[string]any{
		"old_bps": int64(old),
		"new_bps": int64(rate),
		"reason":  reason,
	}})
}
