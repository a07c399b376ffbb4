// Package fsa builds minimized finite state automata from sorted keys and
// reads them back.
package fsa

import (
	"SparseFSA/errutil"
	"SparseFSA/logging"
	"SparseFSA/sparsearray"
	"SparseFSA/utils"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrKeyOrder      = errors.New("fsa: keys must be added in strictly increasing order")
	ErrValueTooLarge = sparsearray.ErrValueTooLarge
	ErrClosed        = errors.New("fsa: generator no longer accepts keys")
	ErrNotFinalized  = errors.New("fsa: generator not finalized")
)

// Config configures a Generator.
type Config struct {
	// MemoryLimit is split between the sparse array buffer and the
	// minimization cache.
	MemoryLimit uint64
	// TempDir receives the chunk files, os.TempDir if empty.
	TempDir      string
	Minimize     bool
	InnerWeight  bool
	StackSize    int
	WeightCutOff int
	ValueStore   ValueStore
	// Metrics receives the construction counters if set.
	Metrics *metrics.Set
}

func DefaultConfig() Config {
	return Config{
		MemoryLimit:  1_000_000,
		Minimize:     true,
		StackSize:    30,
		WeightCutOff: 30,
		ValueStore:   KeyOnlyValueStore{},
	}
}

type generatorState int

const (
	feeding generatorState = iota
	finalized
	closed
)

// Generator builds an automaton from keys added in strictly increasing
// byte order.
type Generator struct {
	config      Config
	persistence *sparsearray.Persistence
	builder     *sparsearray.Builder
	stack       *sparsearray.UnpackedStateStack

	lastKey        []byte
	highestStack   int
	numberOfKeys   uint64
	startState     uint64
	numberOfStates uint64

	state    generatorState
	err      error
	counters *sparsearray.Counters
	keys     *metrics.Counter
	log      *zap.SugaredLogger
}

func NewGenerator(config Config) (*Generator, error) {
	if config.ValueStore == nil {
		config.ValueStore = KeyOnlyValueStore{}
	}
	if config.MemoryLimit == 0 {
		config.MemoryLimit = DefaultConfig().MemoryLimit
	}

	g := &Generator{
		config: config,
		log:    logging.New("fsa"),
	}
	if config.Metrics != nil {
		g.counters = sparsearray.NewCounters(config.Metrics, "fsa")
		g.keys = config.Metrics.GetOrCreateCounter("fsa_keys_added_total")
	}

	p, err := sparsearray.NewPersistence(config.MemoryLimit, config.TempDir, g.counters)
	if err != nil {
		return nil, err
	}
	g.persistence = p
	g.builder = sparsearray.NewBuilder(config.MemoryLimit, p, config.InnerWeight, config.Minimize, g.counters)
	g.stack = sparsearray.NewUnpackedStateStack(p, config.StackSize, config.WeightCutOff)
	return g, nil
}

func (g *Generator) checkFeeding() error {
	switch {
	case g.err != nil:
		return g.err
	case g.state != feeding:
		return ErrClosed
	}
	return nil
}

// fail makes err sticky. A failed generator accepts no further work.
func (g *Generator) fail(err error) error {
	g.err = err
	g.log.Errorw("generator failed", "error", err)
	return err
}

// Add adds key without a value.
func (g *Generator) Add(key []byte) error {
	return g.AddEntry(key, Value{})
}

// AddEntry adds key with v. A key that is not greater than the previous
// one is rejected with ErrKeyOrder and leaves the generator usable.
func (g *Generator) AddEntry(key []byte, v Value) error {
	if err := g.checkFeeding(); err != nil {
		return err
	}
	if g.numberOfKeys > 0 && bytes.Compare(key, g.lastKey) <= 0 {
		return fmt.Errorf("%w: %q after %q", ErrKeyOrder, key, g.lastKey)
	}
	id, noMinimization, err := g.config.ValueStore.Value(v)
	if err != nil {
		return err
	}
	if id > sparsearray.MaxFinalValue {
		return fmt.Errorf("%w: %d", ErrValueTooLarge, id)
	}

	prefix := commonPrefixLength(key, g.lastKey)
	if err = g.consumeStack(prefix); err != nil {
		return g.fail(err)
	}
	g.feedStack(prefix, key)
	if err = g.stack.InsertFinalState(len(key), id, noMinimization); err != nil {
		return g.fail(err)
	}

	if weight := g.config.ValueStore.Weight(v); weight > 0 && g.config.InnerWeight {
		g.stack.UpdateWeights(0, len(key), weight)
	}

	g.numberOfKeys++
	if g.keys != nil {
		g.keys.Inc()
	}
	g.lastKey = append(g.lastKey[:0], key...)
	return nil
}

// AddAll adds every entry of it.
func (g *Generator) AddAll(it KeyIterator) error {
	for it.Next() {
		if err := g.AddEntry(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func commonPrefixLength(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func (g *Generator) feedStack(start int, key []byte) {
	for i := start; i < len(key); i++ {
		g.stack.Insert(i, key[i], 0)
	}
	g.highestStack = max(g.highestStack, len(key))
}

// consumeStack persists all states deeper than end.
func (g *Generator) consumeStack(end int) error {
	for g.highestStack > end {
		u := g.stack.Get(g.highestStack)
		pointer, err := g.builder.PersistState(u)
		if err != nil {
			return err
		}
		g.stack.PushTransitionPointer(g.highestStack-1, pointer, u.NoMinimizationCounter())
		g.stack.Erase(g.highestStack)
		g.highestStack--
	}
	return nil
}

// CloseFeeding persists the remaining states. No keys can be added
// afterwards.
func (g *Generator) CloseFeeding() error {
	if err := g.checkFeeding(); err != nil {
		return err
	}
	if err := g.consumeStack(0); err != nil {
		return g.fail(err)
	}
	errutil.BugOnNotEq("stack depth", g.highestStack, 0)
	start, err := g.builder.PersistState(g.stack.Get(0))
	if err != nil {
		return g.fail(err)
	}
	g.startState = start
	g.numberOfStates = g.builder.NumberOfStates()
	if err = g.persistence.Flush(); err != nil {
		return g.fail(err)
	}

	g.log.Infow("automaton finalized",
		"keys", g.numberOfKeys,
		"states", g.numberOfStates,
		"startState", g.startState,
		"size", g.persistence.HighestWritePosition(),
	)
	g.builder, g.stack = nil, nil
	g.state = finalized
	return nil
}

func (g *Generator) checkFinalized() error {
	switch {
	case g.err != nil:
		return g.err
	case g.state == closed:
		return ErrClosed
	case g.state != finalized:
		return ErrNotFinalized
	}
	return nil
}

func (g *Generator) header() Header {
	return Header{
		StartState:     g.startState,
		NumberOfKeys:   g.numberOfKeys,
		NumberOfStates: g.numberOfStates,
		ValueStoreType: g.config.ValueStore.Type(),
	}
}

// Write writes the automaton in container form.
func (g *Generator) Write(w io.Writer) error {
	if err := g.checkFinalized(); err != nil {
		return err
	}
	if err := writeContainerHeader(w, g.header()); err != nil {
		return err
	}
	return g.persistence.Write(w)
}

// WriteKeyvi writes the automaton in standalone form.
func (g *Generator) WriteKeyvi(w io.Writer) error {
	if err := g.checkFinalized(); err != nil {
		return err
	}
	if err := writeKeyviHeader(w, g.header()); err != nil {
		return err
	}
	return g.persistence.WriteKeyvi(w)
}

func (g *Generator) WriteTo(w io.Writer, format Format) error {
	switch format {
	case FormatKeyvi:
		return g.WriteKeyvi(w)
	case FormatContainer:
		return g.Write(w)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
}

// WriteFile writes the automaton to path. The file is written under a
// temporary name and renamed when complete.
func (g *Generator) WriteFile(path string, format Format) (err error) {
	if err = g.checkFinalized(); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("fsa: create %s: %w", path, err)
	}
	fileClosed := false
	defer func() {
		if err == nil {
			return
		}
		if !fileClosed {
			err = multierr.Append(err, f.Close())
		}
		err = multierr.Append(err, os.Remove(f.Name()))
	}()

	w := bufio.NewWriterSize(f, 1<<20)
	if err = g.WriteTo(w, format); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("fsa: write %s: %w", path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("fsa: sync %s: %w", path, err)
	}
	fileClosed = true
	if err = f.Close(); err != nil {
		return fmt.Errorf("fsa: close %s: %w", path, err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("fsa: rename %s: %w", path, err)
	}
	return nil
}

// Close releases the temporary files. Calling Close more than once is a
// no-op.
func (g *Generator) Close() error {
	if g.state == closed {
		return nil
	}
	g.state = closed
	g.builder, g.stack = nil, nil
	return g.persistence.Close()
}

func (g *Generator) NumberOfKeys() uint64 {
	return g.numberOfKeys
}

func (g *Generator) NumberOfStates() uint64 {
	if g.builder != nil {
		return g.builder.NumberOfStates()
	}
	return g.numberOfStates
}

func (g *Generator) StartState() uint64 {
	return g.startState
}

func (g *Generator) MemReport() utils.MemReport {
	children := []utils.MemReport{g.persistence.MemReport()}
	if g.builder != nil {
		children = append(children, g.builder.MemReport())
	}
	return utils.NewMemReport("generator", children...)
}
