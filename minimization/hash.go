package minimization

import "unsafe"

// Matcher is the lookup key of a Hash. Matches compares a stored entry with
// the state the matcher describes.
type Matcher interface {
	Hash() uint32
	Matches(PackedState) bool
}

var hashSizeStepTable = [...]int{
	997, 2029, 4079, 8171, 16363, 32749, 65519, 131041, 262127, 524269, 1048559,
	2097133, 4194287, 8388587, 16777199, 33554393, 67108837, 134217689,
	268435399, 536870879, 1073741789, 2147483629,
}

const (
	loadFactor           = 0.6
	initialHashSizeStep  = 3
	defaultOverflowDepth = 8

	// EntrySize is the memory footprint of one slot.
	EntrySize = int(unsafe.Sizeof(PackedState{}))
)

// Hash is an open hash table of PackedStates. Collisions are chained
// through a separate overflow region using the cookie of each entry. When
// the overflow region is exhausted or a chain grows too long, new entries
// are dropped.
type Hash struct {
	hashSizeStep  int
	overflowLimit int
	hashSize      int
	rehashLimit   int
	entries       []PackedState
	overflow      []PackedState
	overflowCount int
	count         int
}

func NewHash() *Hash {
	return NewHashWithSize(initialHashSizeStep, defaultOverflowDepth)
}

// NewHashWithSize creates a table starting at the given step of the prime
// table with chains limited to overflowLimit links.
func NewHashWithSize(step, overflowLimit int) *Hash {
	h := &Hash{overflowLimit: overflowLimit}
	h.allocate(step)
	return h
}

func (h *Hash) allocate(step int) {
	h.hashSizeStep = step
	h.hashSize = hashSizeStepTable[step]
	h.rehashLimit = int(float64(h.hashSize) * loadFactor)
	h.entries = make([]PackedState, h.hashSize)
	h.overflow = make([]PackedState, min(h.hashSize>>2, MaxCookie))
	h.overflowCount = 1
	h.count = 0
}

// Len returns the number of stored entries.
func (h *Hash) Len() int {
	return h.count
}

func (h *Hash) bucket(hash uint32) int {
	return int(hash&0x7fffffff) % h.hashSize
}

// Get returns the entry that m matches.
func (h *Hash) Get(m Matcher) (PackedState, bool) {
	e := h.entries[h.bucket(m.Hash())]
	if e.IsEmpty() {
		return PackedState{}, false
	}
	if m.Matches(e) {
		return e.WithCookie(0), true
	}
	for c := e.Cookie(); c != 0; c = h.overflow[c].Cookie() {
		if m.Matches(h.overflow[c]) {
			return h.overflow[c].WithCookie(0), true
		}
	}
	return PackedState{}, false
}

// GetAndMove looks up m like Get. A match is removed from h and added to
// other.
func (h *Hash) GetAndMove(m Matcher, other *Hash) (PackedState, bool) {
	b := h.bucket(m.Hash())
	e := h.entries[b]
	if e.IsEmpty() {
		return PackedState{}, false
	}

	if m.Matches(e) {
		if c := e.Cookie(); c != 0 {
			h.entries[b] = h.overflow[c]
			h.overflow[c] = PackedState{}
		} else {
			h.entries[b] = PackedState{}
		}
		return h.moved(e, other), true
	}

	prev := -1
	for c := e.Cookie(); c != 0; c = h.overflow[c].Cookie() {
		candidate := h.overflow[c]
		if !m.Matches(candidate) {
			prev = c
			continue
		}
		next := candidate.Cookie()
		if prev < 0 {
			h.entries[b] = h.entries[b].WithCookie(next)
		} else {
			h.overflow[prev] = h.overflow[prev].WithCookie(next)
		}
		h.overflow[c] = PackedState{}
		return h.moved(candidate, other), true
	}
	return PackedState{}, false
}

func (h *Hash) moved(e PackedState, other *Hash) PackedState {
	h.count--
	e = e.WithCookie(0)
	other.Add(e)
	return e
}

// Add stores key. The table grows when it gets too full.
func (h *Hash) Add(key PackedState) {
	h.insert(key.WithCookie(0))
	h.count++

	if h.hashSizeStep+1 >= len(hashSizeStepTable) {
		return
	}
	if h.count > h.rehashLimit || (h.overflowCount == len(h.overflow) && len(h.overflow) < MaxCookie) {
		h.grow()
	}
}

func (h *Hash) insert(key PackedState) {
	b := h.bucket(key.Hash)
	if h.entries[b].IsEmpty() {
		h.entries[b] = key
		return
	}
	if h.overflowCount >= len(h.overflow) {
		return
	}

	if c := h.entries[b].Cookie(); c == 0 {
		h.entries[b] = h.entries[b].WithCookie(h.overflowCount)
	} else {
		depth := 0
		for h.overflow[c].Cookie() != 0 {
			if depth == h.overflowLimit {
				return
			}
			c = h.overflow[c].Cookie()
			depth++
		}
		h.overflow[c] = h.overflow[c].WithCookie(h.overflowCount)
	}
	h.overflow[h.overflowCount] = key
	h.overflowCount++
}

func (h *Hash) grow() {
	oldEntries, oldOverflow := h.entries, h.overflow[:h.overflowCount]
	h.allocate(h.hashSizeStep + 1)

	for _, e := range oldEntries {
		if !e.IsEmpty() {
			h.insert(e.WithCookie(0))
			h.count++
		}
	}
	for _, e := range oldOverflow[1:] {
		if !e.IsEmpty() {
			h.insert(e.WithCookie(0))
			h.count++
		}
	}
}

// Reset empties the table but keeps its current size.
func (h *Hash) Reset() {
	clear(h.entries)
	clear(h.overflow)
	h.overflowCount = 1
	h.count = 0
}

// Clear empties the table and shrinks it to the initial size.
func (h *Hash) Clear() {
	h.allocate(initialHashSizeStep)
}

// MemoryUsage returns the bytes held by both regions.
func (h *Hash) MemoryUsage() int {
	return (len(h.entries) + len(h.overflow)) * EntrySize
}
