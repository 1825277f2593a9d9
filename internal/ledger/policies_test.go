package ledger_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tokenledger/internal/ledger"
)

func TestBurnPlatformFee(t *testing.T) {
	h := setup(t, false)
	h.fund(t, "shop", ledger.Tokens(1_000))

	_, err := h.token.BurnPlatformFee(h.ctx, "shop", ledger.Tokens(100), 500)
	require.ErrorIs(t, err, ledger.ErrNotApprovedCaller)

	require.NoError(t, h.token.SetApprovedPlatform(h.ctx, "admin", "shop", true))

	_, err = h.token.BurnPlatformFee(h.ctx, "shop", ledger.Tokens(100), 501)
	require.ErrorIs(t, err, ledger.ErrInvalidParameter)
	_, err = h.token.BurnPlatformFee(h.ctx, "shop", ledger.Tokens(1_001), 500)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	h.state.Reset()
	split, err := h.token.BurnPlatformFee(h.ctx, "shop", ledger.Tokens(1_000), 500)
	require.NoError(t, err)
	assert.True(t, split.BurnNow.Eq(ledger.Tokens(25)))
	assert.True(t, split.ToReserve.Eq(ledger.Tokens(25)))

	// No recipient leg: the platform keeps the rest.
	assert.True(t, h.balance(t, "shop").Eq(ledger.Tokens(950)))
	assert.True(t, h.balance(t, "reserve").Eq(ledger.Tokens(25)))
	want := new(uint256.Int).Sub(ledger.Tokens(genesisSupply), ledger.Tokens(25))
	assert.True(t, h.supply(t).Eq(want))
	assert.Equal(t, []string{"burn", "transfer", "platform-fee-burned"}, h.state.Kinds())
}

func TestBurnForNFT_Capped(t *testing.T) {
	h := setup(t, false)
	h.fund(t, "user", ledger.Tokens(1_000))

	_, err := h.token.BurnForNFT(h.ctx, "nft", "user", ledger.Tokens(5))
	require.ErrorIs(t, err, ledger.ErrNotApprovedCaller)

	require.NoError(t, h.token.SetApprovedNFTContract(h.ctx, "admin", "nft", true))

	// 1% of 1000 tokens is 10: a request for 50 is cut down.
	burned, err := h.token.BurnForNFT(h.ctx, "nft", "user", ledger.Tokens(50))
	require.NoError(t, err)
	assert.True(t, burned.Eq(ledger.Tokens(10)))
	assert.True(t, h.balance(t, "user").Eq(ledger.Tokens(990)))

	// Below the cap the request is honored in full, with no reserve leg.
	burned, err = h.token.BurnForNFT(h.ctx, "nft", "user", ledger.Tokens(1))
	require.NoError(t, err)
	assert.True(t, burned.Eq(ledger.Tokens(1)))
	assert.True(t, h.balance(t, "reserve").IsZero())

	// Platform approval does not grant NFT rights.
	require.NoError(t, h.token.SetApprovedPlatform(h.ctx, "admin", "shop", true))
	_, err = h.token.BurnForNFT(h.ctx, "shop", "user", ledger.Tokens(1))
	require.ErrorIs(t, err, ledger.ErrNotApprovedCaller)
}

func TestBurnForNFT_DustBalance(t *testing.T) {
	h := setup(t, false)
	h.fund(t, "user", uint256.NewInt(99))
	require.NoError(t, h.token.SetApprovedNFTContract(h.ctx, "admin", "nft", true))

	_, err := h.token.BurnForNFT(h.ctx, "nft", "user", uint256.NewInt(1))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestBurnKPIEvent_Uncapped(t *testing.T) {
	h := setup(t, false)
	h.fund(t, "admin", ledger.Tokens(500))

	err := h.token.BurnKPIEvent(h.ctx, "alice", ledger.Tokens(1))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = h.token.BurnKPIEvent(h.ctx, "admin", ledger.Tokens(501))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	require.NoError(t, h.token.BurnKPIEvent(h.ctx, "admin", ledger.Tokens(500)))
	assert.True(t, h.balance(t, "admin").IsZero())
	want := new(uint256.Int).Sub(ledger.Tokens(genesisSupply), ledger.Tokens(500))
	assert.True(t, h.supply(t).Eq(want))
}
