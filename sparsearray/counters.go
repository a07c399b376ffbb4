package sparsearray

import (
	"github.com/VictoriaMetrics/metrics"
)

// Counters collects construction statistics. A nil *Counters is valid and
// counts nothing.
type Counters struct {
	StatesWritten      *metrics.Counter
	MinimizationHits   *metrics.Counter
	MinimizationMisses *metrics.Counter
	OverflowPointers   *metrics.Counter
	BufferFlushes      *metrics.Counter
}

// NewCounters registers the counters in set with names starting with
// prefix, e.g. "fsa_states_written_total".
func NewCounters(set *metrics.Set, prefix string) *Counters {
	if set == nil {
		set = metrics.NewSet()
	}
	return &Counters{
		StatesWritten:      set.GetOrCreateCounter(prefix + "_states_written_total"),
		MinimizationHits:   set.GetOrCreateCounter(prefix + "_minimization_hits_total"),
		MinimizationMisses: set.GetOrCreateCounter(prefix + "_minimization_misses_total"),
		OverflowPointers:   set.GetOrCreateCounter(prefix + "_overflow_pointers_total"),
		BufferFlushes:      set.GetOrCreateCounter(prefix + "_buffer_flushes_total"),
	}
}

func (c *Counters) stateWritten() {
	if c != nil {
		c.StatesWritten.Inc()
	}
}

func (c *Counters) minimization(hit bool) {
	switch {
	case c == nil:
	case hit:
		c.MinimizationHits.Inc()
	default:
		c.MinimizationMisses.Inc()
	}
}

func (c *Counters) overflowPointer() {
	if c != nil {
		c.OverflowPointers.Inc()
	}
}

func (c *Counters) bufferFlush() {
	if c != nil {
		c.BufferFlushes.Inc()
	}
}
