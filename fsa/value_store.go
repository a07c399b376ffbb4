package fsa

import (
	"fmt"
	"strings"
)

// Value store types as written into the automaton header.
const (
	ValueStoreTypeKeyOnly uint64 = 1
	ValueStoreTypeInt     uint64 = 2
)

// Value is what a caller attaches to a key.
type Value struct {
	ID             uint64
	Weight         uint32
	NoMinimization bool
}

// ValueStore maps the value of a key to the integer stored on its final
// state.
type ValueStore interface {
	Type() uint64
	Value(v Value) (id uint64, noMinimization bool, err error)
	Weight(v Value) uint32
}

// KeyOnlyValueStore stores no values, every final state carries 0.
type KeyOnlyValueStore struct{}

func (KeyOnlyValueStore) Type() uint64 {
	return ValueStoreTypeKeyOnly
}

func (KeyOnlyValueStore) Value(Value) (uint64, bool, error) {
	return 0, false, nil
}

func (KeyOnlyValueStore) Weight(Value) uint32 {
	return 0
}

// IntValueStore stores the ID of each value as is.
type IntValueStore struct{}

func (IntValueStore) Type() uint64 {
	return ValueStoreTypeInt
}

func (IntValueStore) Value(v Value) (uint64, bool, error) {
	return v.ID, v.NoMinimization, nil
}

func (IntValueStore) Weight(v Value) uint32 {
	return v.Weight
}

// ValueStoreByName returns the value store called name ("key-only" or
// "int").
func ValueStoreByName(name string) (ValueStore, error) {
	switch strings.ToLower(name) {
	case "", "key-only", "keyonly":
		return KeyOnlyValueStore{}, nil
	case "int":
		return IntValueStore{}, nil
	default:
		return nil, fmt.Errorf("fsa: unknown value store %q", name)
	}
}
