package dealer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameSeedSameSequence(t *testing.T) {
	for _, seed := range []int64{0, 1, 42, 0xDEADBEEF, 1 << 31} {
		a := New(seed).Next(500)
		b := New(seed).Next(500)
		require.Equal(t, a, b, "seed %d", seed)
	}
}

func TestBatchSplitDoesNotMatter(t *testing.T) {
	whole := New(1234).Next(100)

	d := New(1234)
	split := append(d.Next(40), d.Next(60)...)
	assert.Equal(t, whole, split)

	d = New(1234)
	var single []Piece
	for range 100 {
		single = append(single, d.Next(1)...)
	}
	assert.Equal(t, whole, single)
	assert.Equal(t, 100, d.Drawn())
}

func TestInitialThenRefillContinuesSequence(t *testing.T) {
	whole := New(77).Next(224 + 64)

	d := New(77)
	got := append(d.Initial(), d.Refill()...)
	assert.Equal(t, whole, got)
}

func TestSeedNormalization(t *testing.T) {
	assert.Equal(t, uint32(0xFFFFFFFF), New(-1).Seed())
	assert.Equal(t, New(-1).Next(50), New(0xFFFFFFFF).Next(50))
	assert.Equal(t, New(1<<32+5).Next(50), New(5).Next(50))
}

func TestEveryBagHoldsEachPieceOnce(t *testing.T) {
	seq := New(99).Next(7 * 40)
	for bag := 0; bag < 40; bag++ {
		seen := map[Piece]int{}
		for _, p := range seq[bag*7 : bag*7+7] {
			seen[p]++
		}
		for _, p := range Alphabet {
			assert.Equal(t, 1, seen[p], "bag %d piece %s", bag, p)
		}
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	assert.NotEqual(t, New(1).Next(70), New(2).Next(70))
}

func TestNextZero(t *testing.T) {
	d := New(3)
	assert.Empty(t, d.Next(0))
	assert.Equal(t, 0, d.Drawn())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, []string{"I", "T"}, Strings([]Piece{I, T}))
}
