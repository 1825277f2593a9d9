package vesting

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

// example is 1200 units, cliff at 300 unlocking 25%, fully vested at 1200,
// accruing in 100-second slices.
func example() Schedule {
	return Schedule{
		Initialized:        true,
		TotalAmount:        uint256.NewInt(1200),
		Released:           new(uint256.Int),
		Start:              0,
		Cliff:              300,
		Duration:           1200,
		SlicePeriodSeconds: 100,
		CliffUnlockPercent: 25,
	}
}

func TestComputeReleasable_Example(t *testing.T) {
	tests := []struct {
		now  uint64
		want uint64
	}{
		{0, 0},
		{299, 0},
		{300, 300},
		{399, 300},
		{400, 400},
		{500, 500},
		{1199, 1100},
		{1200, 1200},
		{1500, 1200},
	}
	s := example()
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComputeReleasable(s, tt.now).Uint64(), "now=%d", tt.now)
	}
}

func TestComputeReleasable_SubtractsReleased(t *testing.T) {
	s := example()
	s.Released = uint256.NewInt(300)

	assert.Equal(t, uint64(200), ComputeReleasable(s, 500).Uint64())
	assert.Equal(t, uint64(900), ComputeReleasable(s, 5000).Uint64())
}

func TestComputeReleasable_TimeBackwardsSaturates(t *testing.T) {
	s := example()
	s.Released = uint256.NewInt(500)

	assert.True(t, ComputeReleasable(s, 300).IsZero())
	assert.True(t, ComputeReleasable(s, 0).IsZero())
}

func TestComputeReleasable_Uninitialized(t *testing.T) {
	s := example()
	s.Initialized = false
	assert.True(t, ComputeReleasable(s, 5000).IsZero())
}

func TestComputeReleasable_Monotonic(t *testing.T) {
	s := Schedule{
		Initialized:        true,
		TotalAmount:        uint256.NewInt(1_000_003),
		Released:           new(uint256.Int),
		Start:              1_000,
		Cliff:              1_000 + 86_400,
		Duration:           86_400 * 10,
		SlicePeriodSeconds: 3_600,
		CliffUnlockPercent: 7,
	}
	prev := new(uint256.Int)
	for now := uint64(0); now <= s.End()+10_000; now += 1_777 {
		cur := ComputeReleasable(s, now)
		assert.False(t, cur.Lt(prev), "releasable decreased at %d", now)
		assert.False(t, cur.Gt(s.TotalAmount), "releasable exceeds total at %d", now)
		prev = cur
	}
	assert.True(t, prev.Eq(s.TotalAmount))
}

func TestComputeReleasable_Edges(t *testing.T) {
	t.Run("no cliff", func(t *testing.T) {
		s := example()
		s.Cliff = s.Start
		s.CliffUnlockPercent = 0
		assert.True(t, ComputeReleasable(s, 0).IsZero())
		assert.Equal(t, uint64(100), ComputeReleasable(s, 100).Uint64())
	})

	t.Run("full cliff unlock", func(t *testing.T) {
		s := example()
		s.CliffUnlockPercent = 100
		assert.Equal(t, uint64(1200), ComputeReleasable(s, 300).Uint64())
	})

	t.Run("cliff at end", func(t *testing.T) {
		s := example()
		s.Cliff = s.End()
		assert.True(t, ComputeReleasable(s, 1199).IsZero())
		assert.Equal(t, uint64(1200), ComputeReleasable(s, 1200).Uint64())
	})

	t.Run("cliff past end", func(t *testing.T) {
		s := example()
		s.Cliff = 2000
		assert.True(t, ComputeReleasable(s, 1500).IsZero())
		assert.Equal(t, uint64(1200), ComputeReleasable(s, 2000).Uint64())
	})

	t.Run("slice longer than window", func(t *testing.T) {
		s := example()
		s.SlicePeriodSeconds = 5000
		assert.Equal(t, uint64(300), ComputeReleasable(s, 1199).Uint64())
		assert.Equal(t, uint64(1200), ComputeReleasable(s, 1200).Uint64())
	})
}

func TestSchedule_Derived(t *testing.T) {
	s := example()
	assert.Equal(t, uint64(300), s.CliffDuration())
	assert.Equal(t, uint64(1200), s.End())
	assert.Equal(t, uint64(300), s.CliffAmount().Uint64())
	assert.Equal(t, uint64(1200), s.Locked().Uint64())
}

func TestComputeReleasable_WideAmounts(t *testing.T) {
	total := new(uint256.Int).Lsh(uint256.NewInt(1), 250)
	s := Schedule{
		Initialized:        true,
		TotalAmount:        total,
		Released:           new(uint256.Int),
		Duration:           1000,
		SlicePeriodSeconds: 1,
	}

	prev := new(uint256.Int)
	for now := uint64(0); now <= s.End(); now++ {
		cur := ComputeReleasable(s, now)
		assert.False(t, cur.Lt(prev), "releasable decreased at %d", now)
		prev = cur
	}
	assert.True(t, prev.Eq(total))

	want := new(big.Int).Lsh(big.NewInt(1), 250)
	want.Mul(want, big.NewInt(64)).Div(want, big.NewInt(1000))
	assert.Equal(t, want.String(), ComputeReleasable(s, 64).Dec())

	s.TotalAmount = new(uint256.Int).SetAllOne()
	s.CliffUnlockPercent = 99
	s.Cliff = 10
	full := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	cliff := new(big.Int).Mul(full, big.NewInt(99))
	cliff.Div(cliff, big.NewInt(100))
	assert.Equal(t, cliff.String(), s.CliffAmount().Dec())
}
