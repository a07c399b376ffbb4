package sparsearray

import (
	"SparseFSA/bits"
	"SparseFSA/minimization"
	"SparseFSA/varshort"
	"encoding/binary"
	"errors"

	"github.com/zeebo/xxh3"
)

var ErrValueTooLarge = errors.New("sparsearray: final value does not fit into 60 bits")

// Transition is an outgoing edge of a state under construction. Labels
// 0..255 are bytes, FinalOffsetTransition carries the final value.
type Transition struct {
	Label uint16
	Value uint64
}

// UnpackedState is a state that is still being built. Transitions arrive
// in increasing label order.
type UnpackedState struct {
	persistence *Persistence

	outgoing  [MaxTransitionsOfAState]Transition
	used      int
	bitVector *bits.BitVector

	final                 bool
	weight                uint32
	noMinimizationCounter int
	zeroByteState         uint64
	zeroByteLabel         byte

	hash      uint32
	hashValid bool
	scratch   []byte
}

func NewUnpackedState(p *Persistence) *UnpackedState {
	return &UnpackedState{
		persistence:   p,
		bitVector:     bits.NewBitVector(MaxTransitionsOfAState),
		zeroByteLabel: 0xff,
		scratch:       make([]byte, 0, 1+10*MaxTransitionsOfAState),
	}
}

// Add appends the transition label -> value.
func (u *UnpackedState) Add(label byte, value uint64) {
	u.outgoing[u.used] = Transition{Label: uint16(label), Value: value}
	u.used++
	u.bitVector.Set(int(label))
	u.hashValid = false
}

// AddFinalState marks the state final with value. The cells holding the
// VarShort encoded value are reserved in the bit vector.
func (u *UnpackedState) AddFinalState(value uint64) error {
	if value > MaxFinalValue {
		return ErrValueTooLarge
	}
	u.outgoing[u.used] = Transition{Label: FinalOffsetTransition, Value: value}
	u.used++
	for i := range varshort.Length(value) {
		u.bitVector.Set(FinalOffsetTransition + i)
	}
	u.final = true
	u.hashValid = false
	return nil
}

// SetTransitionValue replaces the value of the last added transition.
func (u *UnpackedState) SetTransitionValue(value uint64) {
	u.outgoing[u.used-1].Value = value
	u.hashValid = false
}

func (u *UnpackedState) Clear() {
	u.used = 0
	u.bitVector.Reset()
	u.final = false
	u.weight = 0
	u.noMinimizationCounter = 0
	u.zeroByteState = 0
	u.zeroByteLabel = 0xff
	u.hashValid = false
}

func (u *UnpackedState) Len() int {
	return u.used
}

func (u *UnpackedState) Get(i int) Transition {
	return u.outgoing[i]
}

// LowestLabel returns the smallest label, 0 for a state without
// transitions.
func (u *UnpackedState) LowestLabel() uint16 {
	if u.used == 0 {
		return 0
	}
	return u.outgoing[0].Label
}

func (u *UnpackedState) HasLabel(label uint16) bool {
	return u.bitVector.Get(int(label))
}

func (u *UnpackedState) IsFinal() bool {
	return u.final
}

func (u *UnpackedState) BitVector() *bits.BitVector {
	return u.bitVector
}

func (u *UnpackedState) Weight() uint32 {
	return u.weight
}

// UpdateWeightIfHigher raises the inner weight and reserves its cell.
func (u *UnpackedState) UpdateWeightIfHigher(weight uint32) {
	if weight > u.weight {
		u.weight = weight
		u.bitVector.Set(InnerWeightTransitionCompact)
		u.hashValid = false
	}
}

func (u *UnpackedState) NoMinimizationCounter() int {
	return u.noMinimizationCounter
}

func (u *UnpackedState) IncrementNoMinimizationCounter(n int) {
	u.noMinimizationCounter += n
}

func (u *UnpackedState) ZeroByteState() uint64 {
	return u.zeroByteState
}

func (u *UnpackedState) ZeroByteLabel() byte {
	return u.zeroByteLabel
}

func (u *UnpackedState) setZeroByteScrambling(state uint64, label byte) {
	u.zeroByteState = state
	u.zeroByteLabel = label
}

// Hash returns a signature over the transitions and whether the state
// carries a weight.
func (u *UnpackedState) Hash() uint32 {
	if u.hashValid {
		return u.hash
	}
	b := u.scratch[:0]
	if u.weight > 0 {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	for _, t := range u.outgoing[:u.used] {
		b = binary.LittleEndian.AppendUint16(b, t.Label)
		b = binary.LittleEndian.AppendUint64(b, t.Value)
	}
	u.scratch = b
	h := xxh3.Hash(b)
	u.hash = uint32(h) ^ uint32(h>>32)
	u.hashValid = true
	return u.hash
}

// Matches reports whether the persisted state p has exactly the
// transitions of u.
func (u *UnpackedState) Matches(p minimization.PackedState) bool {
	if p.OutgoingCount() != u.used || p.Hash != u.Hash() {
		return false
	}

	for _, t := range u.outgoing[:u.used] {
		if t.Label == FinalOffsetTransition {
			if u.persistence.ReadTransitionLabel(p.Offset+FinalOffsetTransition) != FinalOffsetCode {
				return false
			}
			if u.persistence.ReadFinalValue(p.Offset) != t.Value {
				return false
			}
			continue
		}

		pos := p.Offset + uint64(t.Label)
		if uint16(u.persistence.ReadTransitionLabel(pos)) != t.Label {
			return false
		}
		target, err := u.persistence.ResolveTransitionValue(pos, u.persistence.ReadTransitionValue(pos))
		if err != nil || target != t.Value {
			return false
		}
	}
	return true
}
