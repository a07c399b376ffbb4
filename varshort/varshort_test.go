package varshort

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v uint64) int {
	t.Helper()
	var buf [MaxLength]uint16
	n := Encode(v, buf[:])
	require.Equal(t, Length(v), n, "length of %d", v)

	got, m := Decode(buf[:n])
	require.Equal(t, n, m)
	require.Equal(t, v, got)

	b := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], buf[i])
	}
	got, m = DecodeBytes(b)
	require.Equal(t, n, m)
	require.Equal(t, v, got)
	return n
}

func TestBoundaries(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1, roundTrip(t, 0))
	require.Equal(t, 1, roundTrip(t, 32767))
	require.Equal(t, 2, roundTrip(t, 32768))
	require.Equal(t, 2, roundTrip(t, 0x3fffffff))
	require.Equal(t, 3, roundTrip(t, 0x40000000))
	require.Equal(t, 3, roundTrip(t, 0x1fffffffffff))
	require.Equal(t, 4, roundTrip(t, 0x200000000000))
	require.Equal(t, 4, roundTrip(t, 1<<60-1))
	require.Equal(t, 5, roundTrip(t, 1<<60))
	require.Equal(t, 5, roundTrip(t, ^uint64(0)))
}

func TestKnownEncoding(t *testing.T) {
	t.Parallel()
	require.Equal(t, []uint16{5}, Append(nil, 5))
	require.Equal(t, []uint16{0x8000, 1}, Append(nil, 32768))
	require.Equal(t, []uint16{0xffff, 0xffff, 0x7fff}, Append(nil, 1<<45-1))
}

func TestRandomBelow48Bits(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 100_000; i++ {
		v := r.Uint64() & (1<<48 - 1)
		v >>= uint(r.Intn(48))
		roundTrip(t, v)
	}
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()
	units := Append(nil, 1<<40)
	_, n := Decode(units[:len(units)-1])
	require.Equal(t, 0, n)

	_, n = DecodeBytes([]byte{0x00, 0x80, 0x01})
	require.Equal(t, 0, n)
}

func TestAppendConcatenated(t *testing.T) {
	t.Parallel()
	var units []uint16
	values := []uint64{0, 1, 32768, 1 << 33, 77}
	for _, v := range values {
		units = Append(units, v)
	}
	for _, want := range values {
		v, n := Decode(units)
		require.NotZero(t, n)
		require.Equal(t, want, v)
		units = units[n:]
	}
	require.Empty(t, units)
}
