package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/vesting"
)

// Tx is one unit of work over the ledger tables. It satisfies ledger.State
// and vesting.State except for Emit, which the engine supplies.
type Tx struct {
	tx *sql.Tx
}

// Commit makes the unit of work durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the unit of work. Safe to call after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Balance returns the account balance, zero when the account is unknown.
func (t *Tx) Balance(ctx context.Context, account ledger.Address) (*uint256.Int, error) {
	var amount string
	err := t.tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account = ?`, string(account)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return parseAmount("balance", amount)
}

// SetBalance stores the account balance. Zero balances are deleted so the
// table holds only live accounts.
func (t *Tx) SetBalance(ctx context.Context, account ledger.Address, amount *uint256.Int) error {
	var err error
	if amount.IsZero() {
		_, err = t.tx.ExecContext(ctx, `DELETE FROM balances WHERE account = ?`, string(account))
	} else {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO balances (account, amount) VALUES (?, ?)
			ON CONFLICT(account) DO UPDATE SET amount = excluded.amount
		`, string(account), amount.Dec())
	}
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

// Balances returns every non-zero balance.
func (t *Tx) Balances(ctx context.Context) (map[ledger.Address]*uint256.Int, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT account, amount FROM balances ORDER BY account COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	out := make(map[ledger.Address]*uint256.Int)
	for rows.Next() {
		var account, amount string
		if err := rows.Scan(&account, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		v, err := parseAmount("balance", amount)
		if err != nil {
			return nil, err
		}
		out[ledger.Address(account)] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return out, nil
}

// TotalSupply returns the tracked supply, zero before initialization.
func (t *Tx) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	var amount string
	err := t.tx.QueryRowContext(ctx, `SELECT total_supply FROM token_settings WHERE id = 1`).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read total supply: %w", err)
	}
	return parseAmount("total supply", amount)
}

// SetTotalSupply stores the tracked supply.
func (t *Tx) SetTotalSupply(ctx context.Context, amount *uint256.Int) error {
	if err := t.ensureSettingsRow(ctx); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE token_settings SET total_supply = ? WHERE id = 1`, amount.Dec()); err != nil {
		return fmt.Errorf("write total supply: %w", err)
	}
	return nil
}

// Settings returns the token configuration. A fresh store reports
// PhaseUninitialized.
func (t *Tx) Settings(ctx context.Context) (ledger.Settings, error) {
	var (
		s       ledger.Settings
		phase   string
		self    string
		deploy  string
		owner   string
		reserve string
		rate    int64
		dynamic bool
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT phase, self, deployer, owner, reserve, burn_rate_bps, dynamic_burn
		FROM token_settings WHERE id = 1
	`).Scan(&phase, &self, &deploy, &owner, &reserve, &rate, &dynamic)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Settings{Phase: ledger.PhaseUninitialized}, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	s = ledger.Settings{
		Phase:       ledger.Phase(phase),
		Self:        ledger.Address(self),
		Deployer:    ledger.Address(deploy),
		Owner:       ledger.Address(owner),
		Reserve:     ledger.Address(reserve),
		BurnRateBps: uint64(rate),
		DynamicBurn: dynamic,
	}
	return s, nil
}

// SaveSettings stores the token configuration, leaving total supply intact.
func (t *Tx) SaveSettings(ctx context.Context, s ledger.Settings) error {
	if err := t.ensureSettingsRow(ctx); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE token_settings
		SET phase = ?, self = ?, deployer = ?, owner = ?, reserve = ?, burn_rate_bps = ?, dynamic_burn = ?
		WHERE id = 1
	`, string(s.Phase), string(s.Self), string(s.Deployer), string(s.Owner), string(s.Reserve), int64(s.BurnRateBps), s.DynamicBurn)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (t *Tx) ensureSettingsRow(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO token_settings (id, phase, self, deployer, owner, reserve, burn_rate_bps, dynamic_burn, total_supply)
		VALUES (1, ?, '', '', '', '', 0, 0, '0')
		ON CONFLICT(id) DO NOTHING
	`, string(ledger.PhaseUninitialized))
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// IsExempt reports whether account is exempt from transfer burns.
func (t *Tx) IsExempt(ctx context.Context, account ledger.Address) (bool, error) {
	return t.member(ctx, `SELECT 1 FROM exemptions WHERE account = ?`, string(account))
}

// SetExempt adds or removes an exemption.
func (t *Tx) SetExempt(ctx context.Context, account ledger.Address, exempt bool) error {
	if exempt {
		return t.exec(ctx, "write exemption", `INSERT INTO exemptions (account) VALUES (?) ON CONFLICT DO NOTHING`, string(account))
	}
	return t.exec(ctx, "write exemption", `DELETE FROM exemptions WHERE account = ?`, string(account))
}

// Allowance returns what spender may still move from owner.
func (t *Tx) Allowance(ctx context.Context, owner, spender ledger.Address) (*uint256.Int, error) {
	var amount string
	err := t.tx.QueryRowContext(ctx, `SELECT amount FROM allowances WHERE owner = ? AND spender = ?`, string(owner), string(spender)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	return parseAmount("allowance", amount)
}

// SetAllowance stores an allowance; zero deletes it.
func (t *Tx) SetAllowance(ctx context.Context, owner, spender ledger.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return t.exec(ctx, "write allowance", `DELETE FROM allowances WHERE owner = ? AND spender = ?`, string(owner), string(spender))
	}
	return t.exec(ctx, "write allowance", `
		INSERT INTO allowances (owner, spender, amount) VALUES (?, ?, ?)
		ON CONFLICT(owner, spender) DO UPDATE SET amount = excluded.amount
	`, string(owner), string(spender), amount.Dec())
}

// IsApproved reports whether account holds role.
func (t *Tx) IsApproved(ctx context.Context, role ledger.Role, account ledger.Address) (bool, error) {
	return t.member(ctx, `SELECT 1 FROM approvals WHERE role = ? AND account = ?`, string(role), string(account))
}

// SetApproved grants or revokes role.
func (t *Tx) SetApproved(ctx context.Context, role ledger.Role, account ledger.Address, approved bool) error {
	if approved {
		return t.exec(ctx, "write approval", `INSERT INTO approvals (role, account) VALUES (?, ?) ON CONFLICT DO NOTHING`, string(role), string(account))
	}
	return t.exec(ctx, "write approval", `DELETE FROM approvals WHERE role = ? AND account = ?`, string(role), string(account))
}

// IsPaused reports whether scope is halted.
func (t *Tx) IsPaused(ctx context.Context, scope ledger.Scope) (bool, error) {
	return t.member(ctx, `SELECT 1 FROM pauses WHERE scope = ?`, string(scope))
}

// SetPaused halts or resumes scope.
func (t *Tx) SetPaused(ctx context.Context, scope ledger.Scope, paused bool) error {
	if paused {
		return t.exec(ctx, "write pause", `INSERT INTO pauses (scope) VALUES (?) ON CONFLICT DO NOTHING`, string(scope))
	}
	return t.exec(ctx, "write pause", `DELETE FROM pauses WHERE scope = ?`, string(scope))
}

// VaultSettings returns the vault configuration.
func (t *Tx) VaultSettings(ctx context.Context) (vesting.VaultSettings, error) {
	var (
		self        string
		initialized bool
	)
	err := t.tx.QueryRowContext(ctx, `SELECT self, initialized FROM vault_settings WHERE id = 1`).Scan(&self, &initialized)
	if errors.Is(err, sql.ErrNoRows) {
		return vesting.VaultSettings{}, nil
	}
	if err != nil {
		return vesting.VaultSettings{}, fmt.Errorf("read vault settings: %w", err)
	}
	return vesting.VaultSettings{Self: ledger.Address(self), Initialized: initialized}, nil
}

// SaveVaultSettings stores the vault configuration.
func (t *Tx) SaveVaultSettings(ctx context.Context, vs vesting.VaultSettings) error {
	return t.exec(ctx, "write vault settings", `
		INSERT INTO vault_settings (id, self, initialized) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET self = excluded.self, initialized = excluded.initialized
	`, string(vs.Self), vs.Initialized)
}

const scheduleColumns = `total_amount, released, start, cliff, duration, slice_period_seconds, cliff_unlock_percent`

// Schedules returns the beneficiary's schedules in index order.
func (t *Tx) Schedules(ctx context.Context, beneficiary ledger.Address) ([]vesting.Schedule, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules WHERE beneficiary = ?
		ORDER BY idx ASC
	`, string(beneficiary))
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	out := []vesting.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return out, nil
}

// Schedule returns one schedule; ok is false when it does not exist.
func (t *Tx) Schedule(ctx context.Context, beneficiary ledger.Address, index uint64) (vesting.Schedule, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules WHERE beneficiary = ? AND idx = ?
	`, string(beneficiary), int64(index))
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vesting.Schedule{}, false, nil
	}
	if err != nil {
		return vesting.Schedule{}, false, err
	}
	return s, true, nil
}

// AppendSchedule stores s at the next index of the beneficiary's list.
func (t *Tx) AppendSchedule(ctx context.Context, beneficiary ledger.Address, s vesting.Schedule) (uint64, error) {
	var next int64
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules WHERE beneficiary = ?`, string(beneficiary)).Scan(&next); err != nil {
		return 0, fmt.Errorf("count schedules: %w", err)
	}
	err := t.exec(ctx, "write schedule", `
		INSERT INTO schedules (beneficiary, idx, `+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(beneficiary),
		next,
		s.TotalAmount.Dec(),
		s.Released.Dec(),
		int64(s.Start),
		int64(s.Cliff),
		int64(s.Duration),
		int64(s.SlicePeriodSeconds),
		int64(s.CliffUnlockPercent),
	)
	if err != nil {
		return 0, err
	}
	return uint64(next), nil
}

// SetReleased updates the released counter of a schedule.
func (t *Tx) SetReleased(ctx context.Context, beneficiary ledger.Address, index uint64, released *uint256.Int) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE schedules SET released = ? WHERE beneficiary = ? AND idx = ?`,
		released.Dec(), string(beneficiary), int64(index))
	if err != nil {
		return fmt.Errorf("write released: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write released: %w", err)
	} else if n != 1 {
		return fmt.Errorf("write released: schedule %d of %s not found", index, beneficiary)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (vesting.Schedule, error) {
	var (
		total, released                       string
		start, cliff, duration, slice, cliffP int64
	)
	if err := row.Scan(&total, &released, &start, &cliff, &duration, &slice, &cliffP); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vesting.Schedule{}, err
		}
		return vesting.Schedule{}, fmt.Errorf("scan schedule: %w", err)
	}
	totalAmount, err := parseAmount("schedule total", total)
	if err != nil {
		return vesting.Schedule{}, err
	}
	releasedAmount, err := parseAmount("schedule released", released)
	if err != nil {
		return vesting.Schedule{}, err
	}
	return vesting.Schedule{
		Initialized:        true,
		TotalAmount:        totalAmount,
		Released:           releasedAmount,
		Start:              uint64(start),
		Cliff:              uint64(cliff),
		Duration:           uint64(duration),
		SlicePeriodSeconds: uint64(slice),
		CliffUnlockPercent: uint64(cliffP),
	}, nil
}

func (t *Tx) member(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

func (t *Tx) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func parseAmount(what, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("decode %s %q: %w", what, s, err)
	}
	return v, nil
}
