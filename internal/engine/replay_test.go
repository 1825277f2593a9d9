package engine_test

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tokenledger/internal/engine"
	"github.com/roach88/tokenledger/internal/ledger"
)

func runWorkload(t *testing.T, f *fixture) {
	t.Helper()
	f.bootstrap(t)
	setupVesting(t, f)
	f.exec(t, "transfer", "treasury", map[string]string{"recipient": "alice", "amount": tok(10_000)})
	f.exec(t, "transfer", "alice", map[string]string{"recipient": "bob", "amount": tok(1_000)})
	f.reject(t, "set-burn-rate", "alice", map[string]string{"bps": "100"})
	_, err := f.execAt(t, 600, "claim", "bob", map[string]string{"index": "0"})
	require.NoError(t, err)
}

func TestReplay_Matches(t *testing.T) {
	f := newFixture(t)
	runWorkload(t, f)

	res, err := f.eng.Replay(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Match(), "divergences: %+v", res.Divergences)
	assert.NoError(t, res.Err())
	assert.Equal(t, res.RecordedDigest, res.ReplayedDigest)
	assert.Equal(t, 11, res.Calls)
}

func TestReplay_DetectsTamperedState(t *testing.T) {
	f := newFixture(t)
	runWorkload(t, f)
	ctx := context.Background()

	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetBalance(ctx, ledger.Address("mallory"), uint256.NewInt(1)))
	require.NoError(t, tx.Commit())

	res, err := f.eng.Replay(ctx)
	require.NoError(t, err)
	assert.False(t, res.Match())
	assert.Empty(t, res.Divergences, "every call still reproduces")

	var re *engine.RuntimeError
	require.ErrorAs(t, res.Err(), &re)
	assert.Equal(t, engine.ErrCodeReplayDiverged, re.Code)
}

func TestReplay_ExplicitRateMode(t *testing.T) {
	f := newFixture(t, engine.WithRateMode(ledger.RateModeExplicit))
	runWorkload(t, f)

	res, err := f.eng.Replay(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Match())
}
