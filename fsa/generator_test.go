package fsa

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

func testConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.TempDir = t.TempDir()
	return config
}

func newGenerator(t *testing.T, config Config) *Generator {
	t.Helper()
	g, err := NewGenerator(config)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })
	return g
}

func build(t *testing.T, config Config, keys ...string) *Generator {
	t.Helper()
	g := newGenerator(t, config)
	for _, k := range keys {
		require.NoError(t, g.Add([]byte(k)))
	}
	require.NoError(t, g.CloseFeeding())
	return g
}

func serialize(t *testing.T, g *Generator, format Format) *Automata {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, g.WriteTo(&buf, format))
	a, err := Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, format, a.Format())
	return a
}

var simpleKeys = []string{"aaaa", "aabb", "aabc", "aacd", "bbcd"}

func TestGenerator_Simple(t *testing.T) {
	t.Parallel()
	g := build(t, testConfig(t), simpleKeys...)
	require.EqualValues(t, 5, g.NumberOfKeys())
	require.EqualValues(t, 9, g.NumberOfStates())

	for _, format := range []Format{FormatKeyvi, FormatContainer} {
		a := serialize(t, g, format)
		require.EqualValues(t, 5, a.NumberOfKeys())
		require.EqualValues(t, 9, a.NumberOfStates())
		require.Equal(t, g.StartState(), a.StartState())
		require.Equal(t, ValueStoreTypeKeyOnly, a.ValueStoreType())
		require.False(t, a.Empty())

		for _, k := range simpleKeys {
			ok, err := a.Contains([]byte(k))
			require.NoError(t, err)
			require.True(t, ok, "%s: %q", format, k)
		}
		for _, k := range []string{"", "a", "aa", "aab", "aaaaa", "bbc", "bbcd0", "c", "aabd"} {
			ok, err := a.Contains([]byte(k))
			require.NoError(t, err)
			require.False(t, ok, "%s: %q", format, k)
		}

		var got []string
		require.NoError(t, a.Keys(func(key []byte, value uint64) bool {
			require.Zero(t, value)
			got = append(got, string(key))
			return true
		}))
		require.Equal(t, simpleKeys, got)
	}
}

func TestGenerator_KeyviHeader(t *testing.T) {
	t.Parallel()
	g := build(t, testConfig(t), simpleKeys...)
	var buf bytes.Buffer
	require.NoError(t, g.WriteKeyvi(&buf))

	b := buf.Bytes()
	require.Equal(t, FileMagic, string(b[:8]))
	want := fmt.Sprintf(`{"version":"2","start_state":"%d","number_of_keys":"5","value_store_type":"1","number_of_states":"9"}`,
		g.StartState())
	n := int(b[8])<<24 | int(b[9])<<16 | int(b[10])<<8 | int(b[11])
	require.Equal(t, want, string(b[12:12+n]))
}

func TestGenerator_EmptyAndEmptyKey(t *testing.T) {
	t.Parallel()
	empty := build(t, testConfig(t))
	a := serialize(t, empty, FormatContainer)
	require.True(t, a.Empty())
	ok, err := a.Contains(nil)
	require.NoError(t, err)
	require.False(t, ok)

	g := build(t, testConfig(t), "", "a")
	a = serialize(t, g, FormatKeyvi)
	for _, k := range []string{"", "a"} {
		ok, err := a.Contains([]byte(k))
		require.NoError(t, err)
		require.True(t, ok, "%q", k)
	}
}

func TestGenerator_KeyOrder(t *testing.T) {
	t.Parallel()
	g := newGenerator(t, testConfig(t))
	require.NoError(t, g.Add([]byte("b")))
	require.ErrorIs(t, g.Add([]byte("a")), ErrKeyOrder)
	require.ErrorIs(t, g.Add([]byte("b")), ErrKeyOrder)
	require.NoError(t, g.Add([]byte("ba")))
	require.NoError(t, g.Add([]byte("c")))
	require.NoError(t, g.CloseFeeding())
	require.EqualValues(t, 3, g.NumberOfKeys())

	a := serialize(t, g, FormatKeyvi)
	ok, err := a.Contains([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenerator_Lifecycle(t *testing.T) {
	t.Parallel()
	g := newGenerator(t, testConfig(t))
	require.NoError(t, g.Add([]byte("a")))
	require.ErrorIs(t, g.Write(&bytes.Buffer{}), ErrNotFinalized)
	require.ErrorIs(t, g.WriteKeyvi(&bytes.Buffer{}), ErrNotFinalized)

	require.NoError(t, g.CloseFeeding())
	require.ErrorIs(t, g.Add([]byte("b")), ErrClosed)
	require.ErrorIs(t, g.CloseFeeding(), ErrClosed)

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	require.ErrorIs(t, g.Write(&bytes.Buffer{}), ErrClosed)
}

func TestGenerator_Values(t *testing.T) {
	t.Parallel()
	config := testConfig(t)
	config.ValueStore = IntValueStore{}
	g := newGenerator(t, config)

	require.NoError(t, g.AddEntry([]byte("apple"), Value{ID: 1}))
	require.ErrorIs(t, g.AddEntry([]byte("banana"), Value{ID: 1 << 60}), ErrValueTooLarge)
	require.NoError(t, g.AddEntry([]byte("banana"), Value{ID: 1<<60 - 1}))
	require.NoError(t, g.AddEntry([]byte("cherry"), Value{ID: 70_000}))
	require.NoError(t, g.CloseFeeding())

	a := serialize(t, g, FormatContainer)
	require.Equal(t, ValueStoreTypeInt, a.ValueStoreType())
	for key, want := range map[string]uint64{"apple": 1, "banana": 1<<60 - 1, "cherry": 70_000} {
		v, ok, err := a.Get([]byte(key))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, v, key)
	}
}

func TestGenerator_NoMinimizationKeepsStates(t *testing.T) {
	t.Parallel()
	config := testConfig(t)
	config.ValueStore = IntValueStore{}
	g := newGenerator(t, config)
	require.NoError(t, g.AddEntry([]byte("ab"), Value{ID: 3}))
	require.NoError(t, g.AddEntry([]byte("bb"), Value{ID: 3, NoMinimization: true}))
	require.NoError(t, g.CloseFeeding())
	// root, two states after the first byte, two final states
	require.EqualValues(t, 5, g.NumberOfStates())

	minimized := build(t, testConfig(t), "ab", "bb")
	// root, one shared state, one final state
	require.EqualValues(t, 3, minimized.NumberOfStates())
}

func TestGenerator_InnerWeights(t *testing.T) {
	t.Parallel()
	config := testConfig(t)
	config.ValueStore = IntValueStore{}
	config.InnerWeight = true
	g := newGenerator(t, config)
	require.NoError(t, g.AddEntry([]byte("abc"), Value{Weight: 5}))
	require.NoError(t, g.AddEntry([]byte("abd"), Value{Weight: 9}))
	require.NoError(t, g.AddEntry([]byte("b"), Value{Weight: 2}))
	require.NoError(t, g.CloseFeeding())

	a := serialize(t, g, FormatKeyvi)
	weight, err := a.InnerWeight(a.StartState())
	require.NoError(t, err)
	require.EqualValues(t, 9, weight)

	state, ok, err := a.Walk([]byte("ab"))
	require.NoError(t, err)
	require.True(t, ok)
	weight, err = a.InnerWeight(state)
	require.NoError(t, err)
	require.EqualValues(t, 9, weight)
}

func TestGenerator_Minimization(t *testing.T) {
	t.Parallel()
	var keys []string
	for i := 0; i < 20_000; i++ {
		keys = append(keys, fmt.Sprintf("aa%08d", i))
	}

	minimized := build(t, testConfig(t), keys...)
	config := testConfig(t)
	config.Minimize = false
	plain := build(t, config, keys...)

	require.Less(t, minimized.NumberOfStates()*10, plain.NumberOfStates())
	require.Greater(t, plain.NumberOfStates(), uint64(len(keys)))

	a := serialize(t, minimized, FormatKeyvi)
	for _, k := range keys {
		ok, err := a.Contains([]byte(k))
		require.NoError(t, err)
		require.True(t, ok, k)
	}
	ok, err := a.Contains([]byte("aa00020000"))
	require.NoError(t, err)
	require.False(t, ok)
}

func randomKey(r *rand.Rand, prefix string, n int) string {
	b := []byte(prefix)
	for range n {
		b = append(b, byte('a'+r.Intn(26)))
	}
	return string(b)
}

func TestGenerator_OverflowPointers(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(7))
	var keys []string
	for _, group := range []struct {
		prefix string
		n      int
	}{{"0", 10000}, {"a", 3}, {"b", 12000}} {
		seen := map[string]bool{}
		var part []string
		for len(part) < group.n {
			k := randomKey(r, group.prefix, 8)
			if !seen[k] {
				seen[k] = true
				part = append(part, k)
			}
		}
		slices.Sort(part)
		keys = append(keys, part...)
	}

	set := metrics.NewSet()
	config := testConfig(t)
	config.Metrics = set
	g := build(t, config, keys...)
	require.Positive(t, g.counters.OverflowPointers.Get())
	require.EqualValues(t, len(keys), set.GetOrCreateCounter("fsa_keys_added_total").Get())

	for _, format := range []Format{FormatKeyvi, FormatContainer} {
		a := serialize(t, g, format)
		for _, k := range keys {
			ok, err := a.Contains([]byte(k))
			require.NoError(t, err)
			require.True(t, ok, "%s: %q", format, k)
		}
	}
}

func TestGenerator_WriteFile(t *testing.T) {
	t.Parallel()
	g := build(t, testConfig(t), simpleKeys...)
	dir := t.TempDir()

	for _, format := range []Format{FormatKeyvi, FormatContainer} {
		path := filepath.Join(dir, format.String()+".kv")
		require.NoError(t, g.WriteFile(path, format))

		a, err := OpenFile(path)
		require.NoError(t, err)
		require.Equal(t, format, a.Format())
		ok, err := a.Contains([]byte("aabc"))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, a.Close())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Error(t, g.WriteFile(filepath.Join(dir, "missing", "x.kv"), FormatKeyvi))
}

func TestGenerator_MemReport(t *testing.T) {
	t.Parallel()
	g := newGenerator(t, testConfig(t))
	report := g.MemReport()
	require.Equal(t, "generator", report.Name)
	require.Len(t, report.Children, 2)
	require.Positive(t, report.TotalBytes)

	require.NoError(t, g.CloseFeeding())
	require.Len(t, g.MemReport().Children, 1)
}
