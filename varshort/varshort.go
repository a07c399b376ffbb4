// Package varshort encodes unsigned integers as little-endian runs of 16-bit
// units holding 15 data bits each. The high bit of a unit marks that another
// unit follows.
package varshort

import "encoding/binary"

const (
	// MaxLength is the number of units needed for any uint64.
	MaxLength = 5

	continuation = 0x8000
	payloadMask  = 0x7fff
	payloadBits  = 15
)

// Length returns the number of units Encode writes for v.
func Length(v uint64) int {
	switch {
	case v < 1<<15:
		return 1
	case v < 1<<30:
		return 2
	case v < 1<<45:
		return 3
	case v < 1<<60:
		return 4
	default:
		return 5
	}
}

// Encode writes v into dst and returns the number of units used.
// dst must hold at least Length(v) units.
func Encode(v uint64, dst []uint16) int {
	i := 0
	for v > payloadMask {
		dst[i] = uint16(v&payloadMask) | continuation
		v >>= payloadBits
		i++
	}
	dst[i] = uint16(v)
	return i + 1
}

// Append appends the encoding of v to dst.
func Append(dst []uint16, v uint64) []uint16 {
	var buf [MaxLength]uint16
	n := Encode(v, buf[:])
	return append(dst, buf[:n]...)
}

// Decode reads one value from units. It returns the value and the number of
// units consumed, or n == 0 if units ends before the last unit.
func Decode(units []uint16) (v uint64, n int) {
	for i, u := range units {
		if i == MaxLength {
			break
		}
		v |= uint64(u&payloadMask) << (payloadBits * i)
		if u&continuation == 0 {
			return v, i + 1
		}
	}
	return v, 0
}

// DecodeBytes is Decode over little-endian encoded units. n counts units.
func DecodeBytes(b []byte) (v uint64, n int) {
	for i := 0; i < MaxLength && 2*i+1 < len(b); i++ {
		u := binary.LittleEndian.Uint16(b[2*i:])
		v |= uint64(u&payloadMask) << (payloadBits * i)
		if u&continuation == 0 {
			return v, i + 1
		}
	}
	return v, 0
}
