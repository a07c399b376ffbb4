package minimization

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// offsetMatcher finds entries by offset, like a state compared against its
// persisted copy.
type offsetMatcher struct {
	offset uint64
	hash   uint32
}

func (m offsetMatcher) Hash() uint32 {
	return m.hash
}

func (m offsetMatcher) Matches(e PackedState) bool {
	return e.Offset == m.offset
}

func matcherOf(p PackedState) offsetMatcher {
	return offsetMatcher{offset: p.Offset, hash: p.Hash}
}

func TestHash_InsertSameHash(t *testing.T) {
	t.Parallel()
	h := NewHash()
	keys := []PackedState{
		NewPackedState(10, 25, 2),
		NewPackedState(12, 25, 3),
		NewPackedState(13, 25, 5),
		NewPackedState(15, 25, 6),
	}
	for _, k := range keys {
		h.Add(k)
	}
	require.Equal(t, 4, h.Len())

	for _, k := range keys {
		got, ok := h.Get(matcherOf(k))
		require.True(t, ok)
		require.Equal(t, k, got)
	}

	_, ok := h.Get(offsetMatcher{offset: 11, hash: 25})
	require.False(t, ok)
	_, ok = h.Get(offsetMatcher{offset: 10, hash: 26})
	require.False(t, ok)
}

func TestHash_GetAndMoveKeepsChains(t *testing.T) {
	t.Parallel()
	for remove := 0; remove < 4; remove++ {
		h, other := NewHash(), NewHash()
		keys := []PackedState{
			NewPackedState(10, 25, 2),
			NewPackedState(12, 25, 3),
			NewPackedState(13, 25, 5),
			NewPackedState(15, 25, 6),
		}
		for _, k := range keys {
			h.Add(k)
		}

		got, ok := h.GetAndMove(matcherOf(keys[remove]), other)
		require.True(t, ok)
		require.Equal(t, keys[remove], got)
		require.Equal(t, 3, h.Len())
		require.Equal(t, 1, other.Len())

		_, ok = h.Get(matcherOf(keys[remove]))
		require.False(t, ok, "removed %d still present", remove)
		_, ok = other.Get(matcherOf(keys[remove]))
		require.True(t, ok)

		for i, k := range keys {
			if i == remove {
				continue
			}
			_, ok = h.Get(matcherOf(k))
			require.True(t, ok, "lost %d after removing %d", i, remove)
		}

		_, ok = h.GetAndMove(matcherOf(keys[remove]), other)
		require.False(t, ok)
	}
}

func TestHash_OverflowChainLimitDrops(t *testing.T) {
	t.Parallel()
	h := NewHashWithSize(0, 2)
	for i := 1; i <= 6; i++ {
		h.Add(NewPackedState(uint64(i), 7, 1))
	}
	// the primary slot plus four chained entries, then the chain is full
	for i := 1; i <= 5; i++ {
		_, ok := h.Get(offsetMatcher{offset: uint64(i), hash: 7})
		require.True(t, ok, "offset %d", i)
	}
	_, ok := h.Get(offsetMatcher{offset: 6, hash: 7})
	require.False(t, ok)
}

func TestHash_GrowKeepsEntries(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(5))
	h := NewHash()
	startSize := len(h.entries)
	keys := make([]PackedState, 0, 30000)
	for i := 0; i < 30000; i++ {
		k := NewPackedState(uint64(i+1), r.Uint32(), 1+r.Intn(256))
		keys = append(keys, k)
		h.Add(k)
	}
	require.Greater(t, len(h.entries), startSize)

	missing := 0
	for _, k := range keys {
		if _, ok := h.Get(matcherOf(k)); !ok {
			missing++
		}
	}
	// chains longer than the limit may drop a handful of entries
	require.Less(t, missing, 30)
}

func TestHash_ResetAndClear(t *testing.T) {
	t.Parallel()
	h := NewHash()
	for i := 1; i <= 20000; i++ {
		h.Add(NewPackedState(uint64(i), uint32(i*31), 1))
	}
	grown := h.MemoryUsage()
	require.Greater(t, grown, NewHash().MemoryUsage())

	h.Reset()
	require.Equal(t, 0, h.Len())
	require.Equal(t, grown, h.MemoryUsage())
	_, ok := h.Get(offsetMatcher{offset: 5, hash: 5 * 31})
	require.False(t, ok)

	h.Clear()
	require.Equal(t, NewHash().MemoryUsage(), h.MemoryUsage())
}
