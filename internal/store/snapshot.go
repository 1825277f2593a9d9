package store

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/roach88/tokenledger/internal/audit"
)

// Snapshot renders all ledger and vault state (not the log) as a canonical
// map. Two stores holding the same state yield equal snapshots.
func (s *Store) Snapshot(ctx context.Context) (map[string]any, error) {
	var snap map[string]any
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		snap, err = tx.snapshot(ctx)
		return err
	})
	return snap, err
}

// Digest hashes the snapshot. Replay compares digests.
func (s *Store) Digest(ctx context.Context) (string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return audit.StateDigest(snap)
}

// CheckSupply verifies that the balances sum to the tracked total supply.
func (s *Store) CheckSupply(ctx context.Context) error {
	return s.View(ctx, func(tx *Tx) error {
		balances, err := tx.Balances(ctx)
		if err != nil {
			return err
		}
		supply, err := tx.TotalSupply(ctx)
		if err != nil {
			return err
		}
		sum := new(uint256.Int)
		for account, bal := range balances {
			if _, overflow := sum.AddOverflow(sum, bal); overflow {
				return fmt.Errorf("supply check: balance sum overflows at %s", account)
			}
		}
		if !sum.Eq(supply) {
			return fmt.Errorf("supply check: balances sum to %s, total supply is %s", sum.Dec(), supply.Dec())
		}
		return nil
	})
}

func (t *Tx) snapshot(ctx context.Context) (map[string]any, error) {
	settings, err := t.Settings(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := t.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := t.Balances(ctx)
	if err != nil {
		return nil, err
	}
	balanceMap := make(map[string]any, len(balances))
	for account, bal := range balances {
		balanceMap[string(account)] = bal.Dec()
	}

	exemptions, err := t.column(ctx, `SELECT account FROM exemptions ORDER BY account COLLATE BINARY`)
	if err != nil {
		return nil, err
	}
	pauses, err := t.column(ctx, `SELECT scope FROM pauses ORDER BY scope COLLATE BINARY`)
	if err != nil {
		return nil, err
	}
	approvals, err := t.rows(ctx, `SELECT role, account, '' FROM approvals ORDER BY role, account COLLATE BINARY`, "role", "account", "")
	if err != nil {
		return nil, err
	}
	allowances, err := t.rows(ctx, `SELECT owner, spender, amount FROM allowances ORDER BY owner, spender COLLATE BINARY`, "owner", "spender", "amount")
	if err != nil {
		return nil, err
	}

	vault, err := t.VaultSettings(ctx)
	if err != nil {
		return nil, err
	}
	schedules, err := t.rows(ctx, `SELECT beneficiary, CAST(idx AS TEXT), released FROM schedules ORDER BY beneficiary, idx`, "beneficiary", "index", "released")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"token": map[string]any{
			"phase":         string(settings.Phase),
			"self":          string(settings.Self),
			"deployer":      string(settings.Deployer),
			"owner":         string(settings.Owner),
			"reserve":       string(settings.Reserve),
			"burn_rate_bps": int64(settings.BurnRateBps),
			"dynamic_burn":  settings.DynamicBurn,
			"total_supply":  supply.Dec(),
		},
		"balances":   balanceMap,
		"exemptions": exemptions,
		"pauses":     pauses,
		"approvals":  approvals,
		"allowances": allowances,
		"vault": map[string]any{
			"self":        string(vault.Self),
			"initialized": vault.Initialized,
		},
		"schedules": schedules,
	}, nil
}

func (t *Tx) column(ctx context.Context, query string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return out, nil
}

// rows reads three text columns into maps keyed by names. An empty name
// drops its column.
func (t *Tx) rows(ctx context.Context, query string, a, b, c string) ([]map[string]any, error) {
	rs, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rs.Close()

	out := []map[string]any{}
	for rs.Next() {
		var va, vb, vc string
		if err := rs.Scan(&va, &vb, &vc); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		m := map[string]any{}
		for _, kv := range [][2]string{{a, va}, {b, vb}, {c, vc}} {
			if kv[0] != "" {
				m[kv[0]] = kv[1]
			}
		}
		out = append(out, m)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return out, nil
}
