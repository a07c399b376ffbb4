// Package minimization implements the hash-consing cache used to detect
// automaton states that were already persisted.
package minimization

import "SparseFSA/errutil"

const (
	outgoingBits = 9
	outgoingMask = 1<<outgoingBits - 1

	// MaxCookie is the largest overflow index a PackedState can link to.
	MaxCookie = 0x7FFFFE
)

// PackedState identifies a persisted state by its offset in the sparse
// array, the hash of its transitions and its number of outgoing
// transitions. The upper 23 bits of Extra link to the next entry of an
// overflow chain. A zero Offset marks an empty slot.
type PackedState struct {
	Offset uint64
	Hash   uint32
	Extra  uint32
}

func NewPackedState(offset uint64, hash uint32, outgoing int) PackedState {
	errutil.BugOn(outgoing > outgoingMask, "too many transitions: %d", outgoing)
	return PackedState{Offset: offset, Hash: hash, Extra: uint32(outgoing) & outgoingMask}
}

func (p PackedState) IsEmpty() bool {
	return p.Offset == 0
}

func (p PackedState) OutgoingCount() int {
	return int(p.Extra & outgoingMask)
}

func (p PackedState) Cookie() int {
	return int(p.Extra >> outgoingBits)
}

// WithCookie returns a copy of p linking to the overflow slot cookie.
func (p PackedState) WithCookie(cookie int) PackedState {
	errutil.BugOn(cookie < 0 || cookie > MaxCookie, "cookie out of range: %d", cookie)
	p.Extra = p.Extra&outgoingMask | uint32(cookie)<<outgoingBits
	return p
}
