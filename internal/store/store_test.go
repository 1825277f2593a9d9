package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tokenledger/internal/audit"
	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/vesting"
)

// createTestStore opens a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// update runs fn in a committed transaction.
func update(t *testing.T, s *Store, fn func(tx *Tx)) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	tables := []string{"token_settings", "balances", "allowances", "schedules", "calls", "events"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", fmt.Sprint(schemaVersion())))
}

func TestOpen_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_events_kind")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_events_kind'").Scan(&name)
	require.NoError(t, err, "migration did not recreate the index")
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.SetBalance(ctx, "alice", uint256.NewInt(5)))
	})

	// A single pooled connection keeps the in-memory database alive.
	err = s.View(ctx, func(tx *Tx) error {
		bal, err := tx.Balance(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "5", bal.Dec())
		return nil
	})
	require.NoError(t, err)
}

func TestTx_BalancesRoundTripLargeAmounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	big := ledger.Tokens(3_000_000_000)

	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.SetBalance(ctx, "alice", big))
		require.NoError(t, tx.SetBalance(ctx, "bob", uint256.NewInt(1)))
		require.NoError(t, tx.SetBalance(ctx, "bob", new(uint256.Int)))
	})

	err := s.View(ctx, func(tx *Tx) error {
		all, err := tx.Balances(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1, "zero balances are not stored")
		assert.True(t, all["alice"].Eq(big))

		bob, err := tx.Balance(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, bob.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetBalance(ctx, "alice", uint256.NewInt(10)))
	require.NoError(t, tx.SetTotalSupply(ctx, uint256.NewInt(10)))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "second rollback is a no-op")

	err = s.View(ctx, func(tx *Tx) error {
		bal, err := tx.Balance(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, bal.IsZero())
		supply, err := tx.TotalSupply(ctx)
		require.NoError(t, err)
		assert.True(t, supply.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestTx_Settings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, ledger.PhaseUninitialized, got.Phase)
		return nil
	})
	require.NoError(t, err)

	want := ledger.Settings{
		Phase:       ledger.PhaseConfigured,
		Self:        "token",
		Deployer:    "deployer",
		Reserve:     "reserve",
		BurnRateBps: 300,
		DynamicBurn: true,
	}
	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.SetTotalSupply(ctx, uint256.NewInt(42)))
		require.NoError(t, tx.SaveSettings(ctx, want))
	})

	err = s.View(ctx, func(tx *Tx) error {
		got, err := tx.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		supply, err := tx.TotalSupply(ctx)
		require.NoError(t, err)
		assert.Equal(t, "42", supply.Dec(), "saving settings keeps supply")
		return nil
	})
	require.NoError(t, err)
}

func TestTx_SetsAndAllowances(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.SetExempt(ctx, "alice", true))
		require.NoError(t, tx.SetExempt(ctx, "alice", true))
		require.NoError(t, tx.SetApproved(ctx, ledger.RolePlatform, "shop", true))
		require.NoError(t, tx.SetPaused(ctx, ledger.ScopeClaims, true))
		require.NoError(t, tx.SetAllowance(ctx, "alice", "bob", uint256.NewInt(7)))
	})

	err := s.View(ctx, func(tx *Tx) error {
		exempt, err := tx.IsExempt(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, exempt)

		approved, err := tx.IsApproved(ctx, ledger.RolePlatform, "shop")
		require.NoError(t, err)
		assert.True(t, approved)
		approved, err = tx.IsApproved(ctx, ledger.RoleNFTContract, "shop")
		require.NoError(t, err)
		assert.False(t, approved, "roles are independent")

		paused, err := tx.IsPaused(ctx, ledger.ScopeClaims)
		require.NoError(t, err)
		assert.True(t, paused)
		paused, err = tx.IsPaused(ctx, ledger.ScopeTransfers)
		require.NoError(t, err)
		assert.False(t, paused)

		allowance, err := tx.Allowance(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, "7", allowance.Dec())
		allowance, err = tx.Allowance(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.True(t, allowance.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestTx_Schedules(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sched := vesting.Schedule{
		Initialized:        true,
		TotalAmount:        uint256.NewInt(1200),
		Released:           new(uint256.Int),
		Start:              0,
		Cliff:              300,
		Duration:           1200,
		SlicePeriodSeconds: 100,
		CliffUnlockPercent: 25,
	}

	update(t, s, func(tx *Tx) {
		i0, err := tx.AppendSchedule(ctx, "bob", sched)
		require.NoError(t, err)
		i1, err := tx.AppendSchedule(ctx, "bob", sched)
		require.NoError(t, err)
		j0, err := tx.AppendSchedule(ctx, "carol", sched)
		require.NoError(t, err)
		assert.Equal(t, []uint64{0, 1, 0}, []uint64{i0, i1, j0})
		require.NoError(t, tx.SetReleased(ctx, "bob", 1, uint256.NewInt(300)))
		assert.Error(t, tx.SetReleased(ctx, "bob", 2, uint256.NewInt(1)))
	})

	err := s.View(ctx, func(tx *Tx) error {
		list, err := tx.Schedules(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.True(t, list[0].Released.IsZero())
		assert.Equal(t, "300", list[1].Released.Dec())
		assert.Equal(t, uint64(300), list[1].Cliff)

		_, ok, err := tx.Schedule(ctx, "bob", 5)
		require.NoError(t, err)
		assert.False(t, ok)

		none, err := tx.Schedules(ctx, "dave")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestLog_WriteAndRead(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.WriteCall(ctx, audit.Call{
			ID: "c1", Seq: 1, FlowToken: "flow-1", Op: "transfer", Caller: "alice",
			Args:      map[string]string{"recipient": "bob", "amount": "10"},
			Timestamp: 100, Outcome: audit.OutcomeOK,
			Result: map[string]any{"sent": "9", "exempt": false, "rate_bps": int64(300)},
		}))
		require.NoError(t, tx.WriteEvents(ctx, []audit.Event{
			{ID: "e1", Seq: 1, Index: 0, FlowToken: "flow-1", Kind: "burn", Fields: map[string]any{"amount": "1"}, Timestamp: 100},
			{ID: "e2", Seq: 1, Index: 1, FlowToken: "flow-1", Kind: "transfer", Fields: map[string]any{"amount": "9"}, Timestamp: 100},
		}))
	})
	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.WriteCall(ctx, audit.Call{
			ID: "c2", Seq: 2, FlowToken: "flow-2", Op: "transfer", Caller: "bob",
			Timestamp: 101, Outcome: audit.OutcomeError, ErrorCode: "INSUFFICIENT_BALANCE",
		}))
	})

	calls, err := s.ReadCalls(ctx)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "bob", calls[0].Args["recipient"])
	assert.Equal(t, int64(300), calls[0].Result["rate_bps"], "numbers decode as int64")
	assert.Equal(t, false, calls[0].Result["exempt"])
	assert.Equal(t, "INSUFFICIENT_BALANCE", calls[1].ErrorCode)
	assert.Empty(t, calls[1].Args)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	events, err := s.ReadEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "burn", events[0].Kind)
	assert.Equal(t, 1, events[1].Index)

	transfers, err := s.ReadEvents(ctx, EventFilter{Kind: "transfer"})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "e2", transfers[0].ID)
}

func TestLog_EventRequiresCall(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	err = tx.WriteEvents(ctx, []audit.Event{{ID: "e1", Seq: 9, Kind: "burn", Fields: map[string]any{}}})
	assert.Error(t, err, "foreign key on calls(seq)")
}

func TestLastSeq_EmptyLog(t *testing.T) {
	s := createTestStore(t)
	last, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestSnapshot_DigestTracksState(t *testing.T) {
	ctx := context.Background()
	a := createTestStore(t)
	b := createTestStore(t)

	for _, s := range []*Store{a, b} {
		update(t, s, func(tx *Tx) {
			require.NoError(t, tx.SetBalance(ctx, "alice", uint256.NewInt(10)))
			require.NoError(t, tx.SetTotalSupply(ctx, uint256.NewInt(10)))
			require.NoError(t, tx.SetExempt(ctx, "alice", true))
		})
	}

	da, err := a.Digest(ctx)
	require.NoError(t, err)
	db, err := b.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	update(t, b, func(tx *Tx) {
		require.NoError(t, tx.SetAllowance(ctx, "alice", "bob", uint256.NewInt(1)))
	})
	db, err = b.Digest(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestCheckSupply(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.SetBalance(ctx, "alice", uint256.NewInt(6)))
		require.NoError(t, tx.SetBalance(ctx, "bob", uint256.NewInt(4)))
		require.NoError(t, tx.SetTotalSupply(ctx, uint256.NewInt(10)))
	})
	require.NoError(t, s.CheckSupply(ctx))

	update(t, s, func(tx *Tx) {
		require.NoError(t, tx.SetTotalSupply(ctx, uint256.NewInt(11)))
	})
	err := s.CheckSupply(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balances sum to 10, total supply is 11")
}
