package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/classquest/internal/game/dice"
)

// fixedSource returns values from a fixed script, wrapping modulo n.
type fixedSource struct {
	vals []int
	i    int
}

func (f *fixedSource) Intn(n int) int {
	v := f.vals[f.i%len(f.vals)]
	f.i++
	return v % n
}

func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
}

func TestCryptoSource_Intn_PanicsOnZero(t *testing.T) {
	src := dice.NewCryptoSource()
	assert.Panics(t, func() { src.Intn(0) })
}

func TestSeededSource_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Int64().Draw(rt, "seed")
		a := dice.NewSeededSource(seed)
		b := dice.NewSeededSource(seed)
		for i := 0; i < 50; i++ {
			n := i + 1
			assert.Equal(rt, a.Intn(n), b.Intn(n))
		}
	})
}

func TestSeededSource_PanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { dice.NewSeededSource(1).Intn(0) })
}

func TestWeighted_SkipsNonPositive(t *testing.T) {
	src := &fixedSource{vals: []int{0, 1, 2, 3, 4}}
	for i := 0; i < 20; i++ {
		idx := dice.Weighted(src, []int{0, 3, -1, 2})
		require.Contains(t, []int{1, 3}, idx)
	}
}

func TestWeighted_AllZero(t *testing.T) {
	assert.Equal(t, -1, dice.Weighted(dice.NewSeededSource(1), []int{0, 0}))
	assert.Equal(t, -1, dice.Weighted(dice.NewSeededSource(1), nil))
}

func TestWeighted_Boundaries(t *testing.T) {
	// roll 2 falls in the first bucket [0,3), roll 3 in the second [3,5).
	assert.Equal(t, 0, dice.Weighted(&fixedSource{vals: []int{2}}, []int{3, 2}))
	assert.Equal(t, 1, dice.Weighted(&fixedSource{vals: []int{3}}, []int{3, 2}))
}

func TestChance(t *testing.T) {
	src := dice.NewSeededSource(7)
	assert.False(t, dice.Chance(src, 0))
	assert.True(t, dice.Chance(src, 100))
	assert.True(t, dice.Chance(&fixedSource{vals: []int{11}}, 12))
	assert.False(t, dice.Chance(&fixedSource{vals: []int{12}}, 12))
}

func TestShuffle_IsPermutation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(rt, "n")
		xs := make([]int, n)
		for i := range xs {
			xs[i] = i
		}
		dice.Shuffle(dice.NewSeededSource(rapid.Int64().Draw(rt, "seed")), n, func(i, j int) {
			xs[i], xs[j] = xs[j], xs[i]
		})
		seen := make(map[int]bool, n)
		for _, x := range xs {
			seen[x] = true
		}
		assert.Len(rt, seen, n)
	})
}

func TestSeed_NonNegative(t *testing.T) {
	src := dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, dice.Seed(src), int64(0))
	}
}
