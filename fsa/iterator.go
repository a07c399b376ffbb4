package fsa

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// KeyIterator iterates over keys in the order they are added to a Generator.
type KeyIterator interface {
	// Next advances the iterator to the next element.
	// Returns true if an element is available, false if the sequence is exhausted or an error occurred.
	Next() bool

	// Key returns the current key. The slice may be reused by the next call to Next.
	Key() []byte

	// Value returns the value of the current key.
	Value() Value

	// Error returns the first error encountered during iteration, if any.
	Error() error
}

// SliceKeyIterator adapts a slice of keys to the KeyIterator interface.
type SliceKeyIterator struct {
	keys [][]byte
	idx  int
}

func NewSliceKeyIterator(keys [][]byte) *SliceKeyIterator {
	return &SliceKeyIterator{keys: keys, idx: -1}
}

func (it *SliceKeyIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *SliceKeyIterator) Key() []byte {
	return it.keys[it.idx]
}

func (it *SliceKeyIterator) Value() Value {
	return Value{}
}

func (it *SliceKeyIterator) Error() error {
	return nil
}

// LineKeyIterator reads one entry per line: a key, optionally followed by a
// tab and a value and another tab and a weight.
type LineKeyIterator struct {
	scanner *bufio.Scanner
	key     []byte
	value   Value
	line    int
	err     error
}

func NewLineKeyIterator(r io.Reader) *LineKeyIterator {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &LineKeyIterator{scanner: s}
}

func (it *LineKeyIterator) Next() bool {
	if it.err != nil || !it.scanner.Scan() {
		return false
	}
	it.line++
	it.key, it.value, it.err = ParseLine(it.scanner.Bytes())
	if it.err != nil {
		it.err = fmt.Errorf("line %d: %w", it.line, it.err)
		return false
	}
	return true
}

func (it *LineKeyIterator) Key() []byte {
	return it.key
}

func (it *LineKeyIterator) Value() Value {
	return it.value
}

func (it *LineKeyIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.scanner.Err()
}

// ParseLine splits "key[\tvalue[\tweight]]".
func ParseLine(line []byte) ([]byte, Value, error) {
	key, rest, ok := bytes.Cut(bytes.TrimSuffix(line, []byte{'\r'}), []byte{'\t'})
	if !ok {
		return key, Value{}, nil
	}
	var v Value
	value, weight, hasWeight := bytes.Cut(rest, []byte{'\t'})
	id, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return nil, Value{}, fmt.Errorf("value: %w", err)
	}
	v.ID = id
	if hasWeight {
		w, err := strconv.ParseUint(string(weight), 10, 32)
		if err != nil {
			return nil, Value{}, fmt.Errorf("weight: %w", err)
		}
		v.Weight = uint32(w)
	}
	return key, v, nil
}

// CheckedSortedIterator wraps a KeyIterator and verifies that the yielded
// keys are strictly increasing. Iteration stops with ErrKeyOrder at the
// first violation.
type CheckedSortedIterator struct {
	iter  KeyIterator
	prev  []byte
	first bool
	err   error
}

func NewCheckedSortedIterator(iter KeyIterator) *CheckedSortedIterator {
	return &CheckedSortedIterator{iter: iter, first: true}
}

func (it *CheckedSortedIterator) Next() bool {
	if it.err != nil || !it.iter.Next() {
		return false
	}
	key := it.iter.Key()
	if !it.first && bytes.Compare(it.prev, key) >= 0 {
		it.err = fmt.Errorf("%w: %q after %q", ErrKeyOrder, key, it.prev)
		return false
	}
	it.first = false
	it.prev = append(it.prev[:0], key...)
	return true
}

func (it *CheckedSortedIterator) Key() []byte {
	return it.iter.Key()
}

func (it *CheckedSortedIterator) Value() Value {
	return it.iter.Value()
}

func (it *CheckedSortedIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.iter.Error()
}
