package bits

const (
	// WindowSize is the number of positions held per window.
	WindowSize  = 2048
	windowShift = 11
	windowMask  = WindowSize - 1
)

// PositionTracker approximates an unbounded occupancy bitmap with two
// adjacent windows that only move forward. Positions older than the previous
// window are forgotten: writes to them are dropped and queries report them
// as free.
type PositionTracker struct {
	current     *BitVector
	previous    *BitVector
	windowStart uint64
}

func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		current:  NewBitVector(WindowSize),
		previous: NewBitVector(WindowSize),
	}
}

// slide makes window the current one.
func (t *PositionTracker) slide(window uint64) {
	if window <= t.windowStart {
		return
	}
	if window == t.windowStart+1 {
		t.previous, t.current = t.current, t.previous
		t.current.Reset()
	} else {
		t.previous.Reset()
		t.current.Reset()
	}
	t.windowStart = window
}

func (t *PositionTracker) IsSet(position uint64) bool {
	window, offset := position>>windowShift, int(position&windowMask)
	switch {
	case window == t.windowStart:
		return t.current.Get(offset)
	case window > t.windowStart:
		return false
	case window+1 == t.windowStart:
		return t.previous.Get(offset)
	default:
		return false
	}
}

// NextFreeSlot returns the first unset position at or after position.
func (t *PositionTracker) NextFreeSlot(position uint64) uint64 {
	window, offset := position>>windowShift, int(position&windowMask)
	if window > t.windowStart || window+1 < t.windowStart {
		return position
	}
	if window < t.windowStart {
		next := t.previous.NextUnset(offset)
		if next < WindowSize {
			return uint64(next) + window<<windowShift
		}
		window++
		offset = 0
	}
	return uint64(t.current.NextUnset(offset)) + window<<windowShift
}

func (t *PositionTracker) Set(position uint64) {
	window, offset := position>>windowShift, int(position&windowMask)
	t.slide(window)
	switch {
	case window == t.windowStart:
		t.current.Set(offset)
	case window+1 == t.windowStart:
		t.previous.Set(offset)
	}
}

// SetVector marks every bit of v, with bit 0 of v at position.
func (t *PositionTracker) SetVector(v *BitVector, position uint64) {
	window, offset := position>>windowShift, int(position&windowMask)
	endWindow := (position + uint64(v.Capacity()) - 1) >> windowShift
	t.slide(endWindow)
	switch {
	case window == t.windowStart:
		t.current.SetVector(v, offset)
	case window+1 == t.windowStart:
		t.previous.SetVector(v, offset)
		if endWindow == t.windowStart {
			t.current.SetVectorAndShiftOther(v, WindowSize-offset)
		}
	}
}

// IsAvailable returns 0 if v placed at position overlaps no set bit,
// otherwise a shift that the placement has to advance at least.
func (t *PositionTracker) IsAvailable(v *BitVector, position uint64) int {
	window, offset := position>>windowShift, int(position&windowMask)
	switch {
	case window == t.windowStart:
		return t.current.DisjointAndShiftThis(v, offset)
	case window > t.windowStart || window+1 < t.windowStart:
		return 0
	}
	shift := t.previous.DisjointAndShiftThis(v, offset)
	if shift == 0 && WindowSize-offset < v.Capacity() {
		return v.DisjointAndShiftOther(t.current, WindowSize-offset)
	}
	return shift
}
