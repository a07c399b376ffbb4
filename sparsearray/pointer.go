package sparsearray

import (
	"errors"
	"fmt"
	"math"
)

var ErrCorruptPointer = errors.New("sparsearray: corrupt transition pointer")

// compactPointer encodes target as seen from the cell at offset if it fits
// into a single unit. diff is the relative distance or math.MaxUint64 if
// the target lies behind the compact window.
func compactPointer(offset, target uint64) (raw uint16, diff uint64, ok bool) {
	diff = math.MaxUint64
	if offset+CompactSizeWindow > target {
		diff = offset + CompactSizeWindow - target
	}
	if diff < CompactSizeRelativeMaxValue {
		return uint16(diff), diff, true
	}
	if target < CompactSizeAbsoluteMaxValue {
		return uint16(target) | absoluteCompactFlag, diff, true
	}
	return 0, diff, false
}

// overflowCode splits target into the low bits kept in the pointer and the
// code stored in the overflow bucket.
func overflowCode(target, diff uint64) (flags uint16, high uint64) {
	code := target
	flags = overflowFlag
	if diff < target {
		code = diff
		flags |= overflowRelative
	}
	return flags | uint16(code&overflowLowMask), code >> 3
}

// ResolvePointer decodes the raw pointer stored at offset. readBucket is
// called with the address of the overflow bucket for overflow pointers and
// returns the VarShort encoded value found there.
func ResolvePointer(offset uint64, raw uint16, readBucket func(pos uint64) (uint64, error)) (uint64, error) {
	if raw&absoluteCompactFlag == absoluteCompactFlag {
		return uint64(raw & 0x3FFF), nil
	}

	if raw&overflowFlag == 0 {
		if uint64(raw) > offset+CompactSizeWindow {
			return 0, fmt.Errorf("%w: relative %d at %d", ErrCorruptPointer, raw, offset)
		}
		return offset + CompactSizeWindow - uint64(raw), nil
	}

	pt := raw & 0x7FFF
	bucket := offset + uint64(pt>>4)
	if bucket < CompactSizeWindow {
		return 0, fmt.Errorf("%w: bucket before start at %d", ErrCorruptPointer, offset)
	}
	high, err := readBucket(bucket - CompactSizeWindow)
	if err != nil {
		return 0, err
	}
	resolved := high<<3 + uint64(pt&overflowLowMask)
	if pt&overflowRelative != 0 {
		if resolved > offset+CompactSizeWindow {
			return 0, fmt.Errorf("%w: relative overflow %d at %d", ErrCorruptPointer, resolved, offset)
		}
		resolved = offset + CompactSizeWindow - resolved
	}
	return resolved, nil
}
