package fsa

import (
	"SparseFSA/sparsearray"
	"SparseFSA/varshort"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Automata reads a persisted automaton. All reads go through io.ReaderAt,
// so an Automata may serve concurrent lookups.
type Automata struct {
	r      io.ReaderAt
	closer io.Closer
	layout
}

// Open reads the header of an automaton in either format.
func Open(r io.ReaderAt) (*Automata, error) {
	l, err := readLayout(r)
	if err != nil {
		return nil, err
	}
	return &Automata{r: r, layout: l}, nil
}

// OpenFile opens the automaton stored at path. Close releases the file.
func OpenFile(path string) (*Automata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsa: open automaton: %w", err)
	}
	a, err := Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fsa: open %s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

func (a *Automata) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

func (a *Automata) Header() Header {
	return a.header
}

func (a *Automata) Format() Format {
	return a.format
}

func (a *Automata) StartState() uint64 {
	return a.header.StartState
}

func (a *Automata) NumberOfKeys() uint64 {
	return a.header.NumberOfKeys
}

func (a *Automata) NumberOfStates() uint64 {
	return a.header.NumberOfStates
}

func (a *Automata) ValueStoreType() uint64 {
	return a.header.ValueStoreType
}

func (a *Automata) Empty() bool {
	return a.header.NumberOfKeys == 0
}

// Size returns the number of cells of the sparse array.
func (a *Automata) Size() uint64 {
	return a.size
}

// labels reads up to n labels starting at pos. Cells past the array are
// cut off.
func (a *Automata) labels(pos uint64, n int) ([]byte, error) {
	if pos >= a.size {
		return nil, nil
	}
	b := make([]byte, min(uint64(n), a.size-pos))
	if err := readFullAt(a.r, b, a.labelsOffset+int64(pos)); err != nil {
		return nil, fmt.Errorf("fsa: read labels at %d: %w", pos, err)
	}
	return b, nil
}

func (a *Automata) label(pos uint64) (byte, bool, error) {
	b, err := a.labels(pos, 1)
	if err != nil || len(b) == 0 {
		return 0, false, err
	}
	return b[0], true, nil
}

func (a *Automata) units(pos uint64, n int) ([]byte, error) {
	if pos >= a.size {
		return nil, nil
	}
	b := make([]byte, 2*min(uint64(n), a.size-pos))
	if err := readFullAt(a.r, b, a.transitionsOffset+2*int64(pos)); err != nil {
		return nil, fmt.Errorf("fsa: read transitions at %d: %w", pos, err)
	}
	return b, nil
}

func (a *Automata) varShort(pos uint64) (uint64, error) {
	b, err := a.units(pos, varshort.MaxLength)
	if err != nil {
		return 0, err
	}
	v, n := varshort.DecodeBytes(b)
	if n == 0 {
		return 0, fmt.Errorf("%w: truncated value at %d", sparsearray.ErrCorruptPointer, pos)
	}
	return v, nil
}

// TryWalkTransition follows the transition labelled c out of state. It
// returns 0 if there is none.
func (a *Automata) TryWalkTransition(state uint64, c byte) (uint64, error) {
	pos := state + uint64(c)
	l, ok, err := a.label(pos)
	if err != nil || !ok || l != c {
		return 0, err
	}
	b, err := a.units(pos, 1)
	if err != nil || len(b) == 0 {
		return 0, err
	}
	return sparsearray.ResolvePointer(pos, binary.LittleEndian.Uint16(b), a.varShort)
}

func (a *Automata) IsFinalState(state uint64) (bool, error) {
	l, ok, err := a.label(state + sparsearray.FinalOffsetTransition)
	return ok && l == sparsearray.FinalOffsetCode, err
}

// StateValue returns the value of a final state, 0 for other states.
func (a *Automata) StateValue(state uint64) (uint64, error) {
	final, err := a.IsFinalState(state)
	if err != nil || !final {
		return 0, err
	}
	return a.varShort(state + sparsearray.FinalOffsetTransition)
}

// InnerWeight returns the weight stored on state, 0 if there is none.
func (a *Automata) InnerWeight(state uint64) (uint32, error) {
	pos := state + sparsearray.InnerWeightTransitionCompact
	l, ok, err := a.label(pos)
	if err != nil || !ok || l != 0 {
		return 0, err
	}
	b, err := a.units(pos, 1)
	if err != nil || len(b) == 0 {
		return 0, err
	}
	return uint32(binary.LittleEndian.Uint16(b)), nil
}

// Walk follows key from the start state and returns the state reached.
func (a *Automata) Walk(key []byte) (uint64, bool, error) {
	state := a.header.StartState
	for _, c := range key {
		next, err := a.TryWalkTransition(state, c)
		if err != nil || next == 0 {
			return 0, false, err
		}
		state = next
	}
	return state, true, nil
}

// Get returns the value stored for key.
func (a *Automata) Get(key []byte) (uint64, bool, error) {
	state, ok, err := a.Walk(key)
	if err != nil || !ok {
		return 0, false, err
	}
	final, err := a.IsFinalState(state)
	if err != nil || !final {
		return 0, false, err
	}
	v, err := a.varShort(state + sparsearray.FinalOffsetTransition)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (a *Automata) Contains(key []byte) (bool, error) {
	_, ok, err := a.Get(key)
	return ok, err
}

// Keys calls fn for every key in lexicographic order until fn returns false.
// key is only valid during the call.
func (a *Automata) Keys(fn func(key []byte, value uint64) bool) error {
	_, err := a.keys(a.header.StartState, nil, fn)
	return err
}

func (a *Automata) keys(state uint64, prefix []byte, fn func([]byte, uint64) bool) (bool, error) {
	cells, err := a.labels(state, sparsearray.MaxTransitionsOfAState)
	if err != nil {
		return false, err
	}
	if len(cells) > sparsearray.FinalOffsetTransition && cells[sparsearray.FinalOffsetTransition] == sparsearray.FinalOffsetCode {
		v, err := a.varShort(state + sparsearray.FinalOffsetTransition)
		if err != nil {
			return false, err
		}
		if !fn(prefix, v) {
			return false, nil
		}
	}
	for c := range min(len(cells), 256) {
		if cells[c] != byte(c) {
			continue
		}
		next, err := a.TryWalkTransition(state, byte(c))
		if err != nil {
			return false, err
		}
		if next == 0 {
			continue
		}
		more, err := a.keys(next, append(prefix, byte(c)), fn)
		if err != nil || !more {
			return more, err
		}
	}
	return true, nil
}
