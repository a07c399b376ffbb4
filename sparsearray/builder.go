package sparsearray

import (
	"SparseFSA/bits"
	"SparseFSA/logging"
	"SparseFSA/minimization"
	"SparseFSA/utils"
	"SparseFSA/varshort"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	maxSearchSteps = 1 << 24

	// After this many states only states with a short no-minimization
	// streak are registered for minimization.
	minimizationThrottle = 1_000_000
	maxThrottledStreak   = 8
)

var (
	ErrSearchExhausted     = errors.New("sparsearray: no free slot found")
	ErrOverflowBucketRange = errors.New("sparsearray: overflow bucket out of range")
)

// Builder places states into the sparse array. Every state gets the first
// offset at which all its cells are free and which does not confuse the
// reader of any other state.
type Builder struct {
	persistence *Persistence
	cache       *minimization.GenerationsCache

	stateStartPositions *bits.PositionTracker
	takenPositions      *bits.PositionTracker
	zeroByteScrambling  *bits.PositionTracker

	highestPersistedState uint64
	numberOfStates        uint64
	innerWeight           bool
	minimize              bool

	counters *Counters
	log      *zap.SugaredLogger
}

// NewBuilder creates a builder whose minimization cache uses about
// memoryLimit bytes.
func NewBuilder(memoryLimit uint64, p *Persistence, innerWeight, minimize bool, counters *Counters) *Builder {
	return &Builder{
		persistence:         p,
		cache:               minimization.NewGenerationsCache(memoryLimit),
		stateStartPositions: bits.NewPositionTracker(),
		takenPositions:      bits.NewPositionTracker(),
		zeroByteScrambling:  bits.NewPositionTracker(),
		innerWeight:         innerWeight,
		minimize:            minimize,
		counters:            counters,
		log:                 logging.New("sparsearray"),
	}
}

func (b *Builder) NumberOfStates() uint64 {
	return b.numberOfStates
}

// PersistState writes u unless an equal state exists already and returns
// the offset of the state.
func (b *Builder) PersistState(u *UnpackedState) (uint64, error) {
	if b.minimize && u.NoMinimizationCounter() == 0 {
		existing, ok := b.cache.Get(u)
		b.counters.minimization(ok)
		if ok {
			if u.Weight() > 0 {
				if err := b.updateWeightIfNeeded(existing.Offset, u.Weight()); err != nil {
					return 0, err
				}
			}
			return existing.Offset, nil
		}
	}

	u.IncrementNoMinimizationCounter(1)
	offset, err := b.findFreeBucket(u)
	if err != nil {
		return 0, err
	}
	if err = b.writeState(offset, u); err != nil {
		return 0, err
	}
	b.numberOfStates++
	b.counters.stateWritten()
	if b.numberOfStates == minimizationThrottle {
		b.log.Infow("throttling minimization", "states", b.numberOfStates, "cacheSize", b.cache.Len())
	}

	if b.minimize && (b.numberOfStates < minimizationThrottle || u.NoMinimizationCounter() < maxThrottledStreak) {
		b.cache.Add(minimization.NewPackedState(offset, u.Hash(), u.Len()))
	}
	return offset, nil
}

func (b *Builder) findFreeBucket(u *UnpackedState) (uint64, error) {
	start := uint64(1)
	if b.highestPersistedState > SparseArraySearchOffset {
		start = b.highestPersistedState - SparseArraySearchOffset
	}
	first := uint64(u.LowestLabel())
	start = b.takenPositions.NextFreeSlot(start+first) - first

	for range maxSearchSteps {
		start = b.stateStartPositions.NextFreeSlot(start)

		if b.zeroByteScrambling.IsSet(start) {
			start++
			continue
		}
		if u.IsFinal() && b.stateStartPositions.IsSet(start+NumberOfStateCodings) {
			start++
			continue
		}
		if u.Weight() > 0 && b.stateStartPositions.IsSet(start+InnerWeightTransitionCompact) {
			start++
			continue
		}

		if shift := b.takenPositions.IsAvailable(u.BitVector(), start); shift > 0 {
			start += uint64(shift)
			continue
		}

		if start >= NumberOfStateCodings && u.HasLabel(FinalOffsetCode) &&
			b.stateStartPositions.IsSet(start-NumberOfStateCodings) {
			start++
			continue
		}

		if !u.HasLabel(0) && !b.takenPositions.IsSet(start) && start >= NumberOfStateCodings {
			zbs := b.stateStartPositions.NextFreeSlot(start - NumberOfStateCodings)
			if zbs >= start {
				start++
				continue
			}
			label := byte(start - zbs)
			if label == FinalOffsetCode {
				start++
				continue
			}
			u.setZeroByteScrambling(zbs, label)
		}
		return start, nil
	}
	return 0, fmt.Errorf("%w: state search from %d", ErrSearchExhausted, start)
}

func (b *Builder) writeState(offset uint64, u *UnpackedState) error {
	b.highestPersistedState = max(b.highestPersistedState, offset)

	if err := b.persistence.BeginNewState(offset); err != nil {
		return err
	}

	if u.HasLabel(FinalOffsetCode) && offset >= NumberOfStateCodings {
		b.stateStartPositions.Set(offset - NumberOfStateCodings)
	}

	if !u.HasLabel(0) && !b.takenPositions.IsSet(offset) {
		if offset >= NumberOfStateCodings {
			b.zeroByteScrambling.Set(u.ZeroByteState())
		}
		if err := b.writeTransition(offset, u.ZeroByteLabel(), 0); err != nil {
			return err
		}
	}

	b.takenPositions.SetVector(u.BitVector(), offset)
	if u.IsFinal() {
		b.stateStartPositions.Set(offset + NumberOfStateCodings)
	}
	b.stateStartPositions.Set(offset)

	for i := range u.Len() {
		t := u.Get(i)
		var err error
		if t.Label < FinalOffsetTransition {
			err = b.writeTransition(offset+uint64(t.Label), byte(t.Label), t.Value)
		} else {
			err = b.writeFinalTransition(offset, t.Value)
		}
		if err != nil {
			return err
		}
	}

	if u.Weight() > 0 {
		return b.updateWeightIfNeeded(offset, u.Weight())
	}
	return nil
}

func (b *Builder) updateWeightIfNeeded(offset uint64, weight uint32) error {
	w := uint16(min(weight, CompactSizeInnerWeightMaxValue))
	pos := offset + InnerWeightTransitionCompact
	if b.persistence.ReadTransitionValue(pos) >= w {
		return nil
	}
	if err := b.persistence.WriteTransition(pos, 0, w); err != nil {
		return err
	}
	b.takenPositions.Set(pos)
	b.stateStartPositions.Set(pos)
	return nil
}

// writeTransition stores a pointer from the cell at offset to target.
// Pointers that do not fit into a unit keep their low 3 bits and a link to
// an overflow bucket holding the rest as VarShort.
func (b *Builder) writeTransition(offset uint64, label byte, target uint64) error {
	raw, diff, ok := compactPointer(offset, target)
	if ok {
		return b.persistence.WriteTransition(offset, label, raw)
	}

	flags, high := overflowCode(target, diff)
	var units [varshort.MaxLength]uint16
	n := varshort.Encode(high, units[:])

	start, zbs, zbl, err := b.findOverflowBucket(offset, n)
	if err != nil {
		return err
	}
	if start >= NumberOfStateCodings {
		b.zeroByteScrambling.Set(zbs)
	}
	for i := range n {
		pos := start + uint64(i)
		b.takenPositions.Set(pos)
		if err = b.persistence.WriteTransition(pos, zbl+byte(i), units[i]); err != nil {
			return err
		}
	}

	bucket := CompactSizeWindow + start - offset
	b.counters.overflowPointer()
	return b.persistence.WriteTransition(offset, label, flags|uint16(bucket)<<4)
}

// blocked reports whether pos cannot hold an overflow unit.
func (b *Builder) blocked(pos uint64) bool {
	if b.takenPositions.IsSet(pos) {
		return true
	}
	return b.innerWeight && pos >= InnerWeightTransitionCompact &&
		b.stateStartPositions.IsSet(pos-InnerWeightTransitionCompact)
}

func (b *Builder) findOverflowBucket(offset uint64, size int) (start, zbs uint64, label byte, err error) {
	if offset > CompactSizeWindow {
		start = offset - CompactSizeWindow
	}
	for range maxSearchSteps {
		start = b.takenPositions.NextFreeSlot(start)
		if CompactSizeWindow+start-offset >= 1<<overflowBucketBits {
			return 0, 0, 0, fmt.Errorf("%w: %d for cell %d", ErrOverflowBucketRange, start, offset)
		}

		found := 0
		for found < size && !b.blocked(start+uint64(found)) {
			found++
		}
		if found < size {
			start += uint64(found) + 1
			continue
		}

		if start < NumberOfStateCodings {
			// labels must point before the start of the array
			label = byte(NumberOfStateCodings + 1 - size)
			if start >= uint64(label) {
				start++
				continue
			}
		} else {
			zbs = b.stateStartPositions.NextFreeSlot(start + uint64(size) - NumberOfStateCodings - 1)
			if zbs >= start {
				start += uint64(size) + 1
				continue
			}
			label = byte(start - zbs)
			if label == FinalOffsetCode {
				start += uint64(size) + 1
				continue
			}
		}
		return start, zbs, label, nil
	}
	return 0, 0, 0, fmt.Errorf("%w: overflow bucket for cell %d", ErrSearchExhausted, offset)
}

func (b *Builder) writeFinalTransition(offset, value uint64) error {
	var units [varshort.MaxLength]uint16
	n := varshort.Encode(value, units[:])
	for i := range n {
		pos := offset + FinalOffsetTransition + uint64(i)
		if err := b.persistence.WriteTransition(pos, byte(FinalOffsetCode+i), units[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) MemReport() utils.MemReport {
	return utils.NewMemReport("builder",
		utils.Leaf("minimization cache", b.cache.MemoryUsage()),
		utils.Leaf("position trackers", 3*2*bits.WindowSize/8),
	)
}
