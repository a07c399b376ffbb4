package bits

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func vectorOf(size int, set ...int) *BitVector {
	v := NewBitVector(size)
	for _, b := range set {
		v.Set(b)
	}
	return v
}

func TestBitVector_SizeAndClear(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1, NewBitVector(1).Size())
	require.Equal(t, 320, NewBitVector(257).Capacity())

	a := vectorOf(100, 42)
	require.False(t, a.Get(41))
	require.True(t, a.Get(42))
	require.False(t, a.Get(43))

	a.Clear(42)
	require.False(t, a.Get(42))

	a.Set(7)
	a.Reset()
	require.False(t, a.Get(7))
	require.False(t, a.Get(100000))
}

func TestBitVector_Shifting(t *testing.T) {
	t.Parallel()
	origin := vectorOf(16, 6, 8, 13, 10)

	require.Equal(t, uint64(9536), origin.word(0, 0))
	require.Equal(t, uint64(298), origin.word(0, 5))
	require.Equal(t, uint64(149), origin.word(0, 6))
	require.Equal(t, uint64(9), origin.word(0, 10))
	require.Equal(t, uint64(0), origin.word(0, 15))

	require.Equal(t, vectorOf(32, 1, 3, 5, 8).word(0, 0), origin.word(0, 5))
	require.Equal(t, vectorOf(32, 0, 2, 4, 7).word(0, 0), origin.word(0, 6))
	require.Equal(t, vectorOf(32, 0, 3).word(0, 0), origin.word(0, 10))
}

func TestBitVector_ShiftAcrossWords(t *testing.T) {
	t.Parallel()
	v := vectorOf(200, 60, 64, 130)
	require.Equal(t, uint64(1<<0|1<<4), v.word(0, 60))
	require.Equal(t, uint64(1<<(130-124)), v.word(1, 60))
	require.Equal(t, uint64(0), v.word(len(v.words), 0))
}

func TestBitVector_Disjoint(t *testing.T) {
	t.Parallel()
	origin := vectorOf(16, 6, 8, 13, 10)
	a := vectorOf(32, 5)
	b := vectorOf(16, 6)
	c := vectorOf(16, 2)

	require.True(t, origin.Disjoint(a, 0))
	require.False(t, origin.Disjoint(a, 1))
	require.True(t, origin.Disjoint(a, 2))
	require.False(t, origin.Disjoint(a, 8))
	require.True(t, origin.Disjoint(a, 10))
	require.True(t, origin.Disjoint(a, 14))
	require.False(t, origin.Disjoint(b, 0))
	require.False(t, origin.Disjoint(c, 4))
}

func TestBitVector_HighBitConsistency(t *testing.T) {
	t.Parallel()
	f := vectorOf(32, 31)
	require.True(t, f.Get(31))
	require.False(t, f.Disjoint(f, 0))

	g := vectorOf(64, 63)
	require.True(t, g.Get(63))
	require.False(t, g.Disjoint(g, 0))
}

func TestBitVector_DisjointAndShift(t *testing.T) {
	t.Parallel()
	window := vectorOf(128, 10, 11, 12)
	state := vectorOf(8, 0, 2)

	// state at 10 hits 10 and 12, at 11 hits 11, at 13 is free
	require.Equal(t, 0, window.DisjointAndShiftThis(state, 13))
	shift := window.DisjointAndShiftThis(state, 10)
	require.Equal(t, 3, shift)
	require.True(t, window.Disjoint(state, 10+shift))

	// the same collision seen from the other side
	require.Equal(t, 0, state.DisjointAndShiftOther(window, 64))
	require.Equal(t, 0, vectorOf(8, 0, 1).DisjointAndShiftOther(vectorOf(64, 3), 0))
	require.Equal(t, 2, vectorOf(8, 3, 4).DisjointAndShiftOther(vectorOf(64, 4), 0))
}

func TestBitVector_ShiftNeverSkipsAFreeSlot(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(7))
	for run := 0; run < 2000; run++ {
		window := NewBitVector(WindowSize)
		for i := 0; i < 600; i++ {
			window.Set(r.Intn(WindowSize))
		}
		state := NewBitVector(257)
		for i := 0; i < 1+r.Intn(6); i++ {
			state.Set(r.Intn(257))
		}
		start := r.Intn(WindowSize - 320)
		shift := window.DisjointAndShiftThis(state, start)
		if shift == 0 {
			require.True(t, window.Disjoint(state, start))
			continue
		}
		for s := 0; s < shift; s++ {
			require.False(t, window.Disjoint(state, start+s), "skipped free slot %d (run %d)", start+s, run)
		}
	}
}

func TestBitVector_NextUnset(t *testing.T) {
	t.Parallel()
	a := NewBitVector(32)
	require.Equal(t, 0, a.NextUnset(0))
	a.Set(0)
	a.Set(2)
	require.Equal(t, 1, a.NextUnset(0))
	require.Equal(t, 1, a.NextUnset(1))

	a.Set(1)
	for i := 0; i <= 3; i++ {
		require.Equal(t, 3, a.NextUnset(i))
	}

	a.Set(4)
	require.Equal(t, 3, a.NextUnset(0))
	require.Equal(t, 5, a.NextUnset(4))

	for i := 0; i < 32; i++ {
		a.Set(i)
	}
	require.Equal(t, 32, a.NextUnset(0))

	b := NewBitVector(64)
	for i := 32; i < 39; i++ {
		b.Set(i)
	}
	for i := 40; i < 52; i++ {
		b.Set(i)
	}
	require.Equal(t, 0, b.NextUnset(0))
	require.Equal(t, 39, b.NextUnset(32))

	full := NewBitVector(128)
	for i := 0; i < full.Capacity(); i++ {
		full.Set(i)
	}
	require.GreaterOrEqual(t, full.NextUnset(5), full.Capacity())
}

func TestBitVector_SetVector(t *testing.T) {
	t.Parallel()
	origin := vectorOf(64, 6, 8, 10)

	origin.SetVector(vectorOf(8, 0, 1), 2)
	require.True(t, origin.Get(2))
	require.True(t, origin.Get(3))

	origin.SetVector(vectorOf(32, 30, 31, 25), 7)
	require.True(t, origin.Get(32))
	require.True(t, origin.Get(37))
	require.True(t, origin.Get(38))

	origin.Reset()
	for _, b := range []int{6, 8, 10, 32} {
		origin.Set(b)
	}
	c := vectorOf(32, 1, 2, 25, 30, 31)
	origin.SetVector(c, 32)
	require.False(t, origin.Get(0))
	require.False(t, origin.Get(1))
	for _, b := range []int{32, 33, 34, 57, 62, 63} {
		require.True(t, origin.Get(b), "bit %d", b)
	}

	origin.SetVector(c, 50)
	require.True(t, origin.Get(52))
}

func TestBitVector_SetVectorOverlap(t *testing.T) {
	t.Parallel()
	origin := vectorOf(64, 6, 8, 10, 32)
	c := vectorOf(64, 1, 2, 25, 30, 31, 45, 57)

	origin.SetVector(c, 50)
	for _, b := range []int{6, 32, 51, 52, 75, 80, 81, 95, 107} {
		require.True(t, origin.Get(b), "bit %d", b)
	}
	// 50+57 lands in the spare word, beyond that is dropped
	require.False(t, origin.Get(128))
}

func TestBitVector_SetVectorAndShiftOther(t *testing.T) {
	t.Parallel()
	origin := vectorOf(64, 6, 8, 10, 32)
	c := vectorOf(64, 1, 2, 25, 30, 31, 45, 57)

	origin.SetVectorAndShiftOther(c, 14)
	for _, b := range []int{6, 8, 11, 16, 17, 31, 32, 43} {
		require.True(t, origin.Get(b), "bit %d", b)
	}
	require.False(t, origin.Get(1))
}

func TestBitVector_SetVectorMatchesManualArithmetic(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(99))
	for run := 0; run < 500; run++ {
		target := NewBitVector(WindowSize)
		other := NewBitVector(257)
		var set []int
		for i := 0; i < 20; i++ {
			b := r.Intn(other.Capacity())
			other.Set(b)
			set = append(set, b)
		}
		start := r.Intn(WindowSize - other.Capacity())
		target.SetVector(other, start)
		for _, b := range set {
			require.True(t, target.Get(start+b))
		}

		shifted := NewBitVector(512)
		from := r.Intn(other.Capacity())
		shifted.SetVectorAndShiftOther(other, from)
		for _, b := range set {
			if b >= from {
				require.True(t, shifted.Get(b-from))
			}
		}
		count := 0
		for i := 0; i < shifted.Capacity(); i++ {
			if shifted.Get(i) {
				count++
				require.True(t, other.Get(i+from))
			}
		}
		require.LessOrEqual(t, count, len(set))
	}
}
