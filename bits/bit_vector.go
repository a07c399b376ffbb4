package bits

import (
	"SparseFSA/errutil"
	"math/bits"
)

const allOnes = ^uint64(0)

// BitVector is a fixed size bit set backed by 64-bit words. It always keeps
// one word more than Size requires, so shifted reads of the last word see
// zero padding.
type BitVector struct {
	words []uint64
	size  int
}

func NewBitVector(size int) *BitVector {
	return &BitVector{
		words: make([]uint64, size>>6+1),
		size:  size,
	}
}

// Size returns the number of bits requested at construction.
func (v *BitVector) Size() int {
	return v.size
}

// Capacity returns the number of addressable bits.
func (v *BitVector) Capacity() int {
	return len(v.words) << 6
}

func (v *BitVector) Set(bit int) {
	errutil.BugOn(bit < 0 || bit >= v.Capacity(), "bit %d out of range %d", bit, v.Capacity())
	v.words[bit>>6] |= 1 << (bit & 63)
}

func (v *BitVector) Clear(bit int) {
	errutil.BugOn(bit < 0 || bit >= v.Capacity(), "bit %d out of range %d", bit, v.Capacity())
	v.words[bit>>6] &^= 1 << (bit & 63)
}

func (v *BitVector) Get(bit int) bool {
	if bit < 0 || bit >= v.Capacity() {
		return false
	}
	return v.words[bit>>6]&(1<<(bit&63)) != 0
}

// Reset clears all bits.
func (v *BitVector) Reset() {
	clear(v.words)
}

// word returns the 64 bits starting at bit position wordIndex*64+bit.
func (v *BitVector) word(wordIndex, bit int) uint64 {
	if wordIndex >= len(v.words) {
		return 0
	}
	if bit == 0 {
		return v.words[wordIndex]
	}
	w := v.words[wordIndex] >> bit
	if wordIndex+1 < len(v.words) {
		w |= v.words[wordIndex+1] << (64 - bit)
	}
	return w
}

// NextUnset returns the first bit at or after start that is not set. The
// result may lie beyond Capacity if everything up to the end is set.
func (v *BitVector) NextUnset(start int) int {
	wordIndex, bit := start>>6, start&63
	for ; wordIndex < len(v.words); wordIndex++ {
		w := v.word(wordIndex, bit)
		if w != allOnes {
			return start + bits.TrailingZeros64(^w)
		}
		start += 64
	}
	return start
}

// SetVector ORs other into v, with bit 0 of other landing on startBit.
// Bits falling beyond Capacity are dropped.
func (v *BitVector) SetVector(other *BitVector, startBit int) {
	wordIndex, bit := startBit>>6, startBit&63
	n := min(len(v.words)-wordIndex, len(other.words))
	for i := 0; i < n; i++ {
		w := other.words[i]
		if w == 0 {
			continue
		}
		v.words[wordIndex+i] |= w << bit
		if bit != 0 && wordIndex+i+1 < len(v.words) {
			v.words[wordIndex+i+1] |= w >> (64 - bit)
		}
	}
}

// SetVectorAndShiftOther ORs the bits of other starting at startBitOther
// into v starting at bit 0.
func (v *BitVector) SetVectorAndShiftOther(other *BitVector, startBitOther int) {
	wordIndex, bit := startBitOther>>6, startBitOther&63
	n := min(len(v.words), len(other.words)-wordIndex)
	for i := 0; i < n; i++ {
		v.words[i] |= other.word(wordIndex+i, bit)
	}
}

// Disjoint reports whether v, read from startBit on, shares no bit with other.
func (v *BitVector) Disjoint(other *BitVector, startBit int) bool {
	wordIndex, bit := startBit>>6, startBit&63
	n := min(len(other.words), len(v.words)-wordIndex)
	for i := 0; i < n; i++ {
		b := other.words[i]
		if b != 0 && v.word(wordIndex+i, bit)&b != 0 {
			return false
		}
	}
	return true
}

// DisjointAndShiftOther compares v read from startBit with other. It returns 0
// if they are disjoint, otherwise the smallest right shift of the colliding
// word of other that removes the collision.
func (v *BitVector) DisjointAndShiftOther(other *BitVector, startBit int) int {
	wordIndex, bit := startBit>>6, startBit&63
	n := min(len(other.words), len(v.words)-wordIndex)
	for i := 0; i < n; i++ {
		b := other.words[i]
		if b == 0 {
			continue
		}
		if a := v.word(wordIndex+i, bit); a&b != 0 {
			return minimumShifts(a, b)
		}
	}
	return 0
}

// DisjointAndShiftThis is DisjointAndShiftOther with the shift applied to the
// colliding word of v instead.
func (v *BitVector) DisjointAndShiftThis(other *BitVector, startBit int) int {
	wordIndex, bit := startBit>>6, startBit&63
	n := min(len(other.words), len(v.words)-wordIndex)
	for i := 0; i < n; i++ {
		b := other.words[i]
		if b == 0 {
			continue
		}
		if a := v.word(wordIndex+i, bit); a&b != 0 {
			return minimumShifts(b, a)
		}
	}
	return 0
}
