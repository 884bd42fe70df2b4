package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linchenxuan/runnermetrics/log"
)

// FlushMode decides what happens to recorded data once a flush snapshot is taken.
type FlushMode string

const (
	// RetainAfterFlush keeps every series after a flush, so a later flush on
	// the same aggregator sends them again.
	RetainAfterFlush FlushMode = "retain"
	// ResetAfterFlush starts a fresh store for every flush. Dimension schemas
	// are kept.
	ResetAfterFlush FlushMode = "reset"
)

// State is the flush lifecycle of an aggregator.
type State int32

const (
	StateRecording State = iota
	StateFlushPending
	StateFlushed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "Recording"
	case StateFlushPending:
		return "FlushPending"
	case StateFlushed:
		return "Flushed"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

// AggregatorCfg configures an Aggregator.
type AggregatorCfg struct {
	// Environment is the first part of the namespace.
	Environment string `mapstructure:"environment"`
	// FlushMode defaults to RetainAfterFlush.
	FlushMode FlushMode `mapstructure:"flushMode"`
	// Encoder bounds the produced requests.
	Encoder EncoderCfg `mapstructure:"encoder"`
	// Units overrides the suffix-based unit of individual metrics.
	Units map[string]Unit `mapstructure:"units"`
}

// Validate checks the configuration.
func (c *AggregatorCfg) Validate() error {
	switch c.FlushMode {
	case "", RetainAfterFlush, ResetAfterFlush:
	default:
		return fmt.Errorf("invalid flush mode %q, must be %q or %q", c.FlushMode, RetainAfterFlush, ResetAfterFlush)
	}
	if c.Encoder.MaxDatumsPerBatch < 0 || c.Encoder.MaxValuesPerDatum < 0 {
		return fmt.Errorf("encoder limits must be non-negative, got %d datums/%d values",
			c.Encoder.MaxDatumsPerBatch, c.Encoder.MaxValuesPerDatum)
	}
	return nil
}

// Aggregator accumulates observations for one logical run and flushes them
// through an Emitter. It is safe for concurrent use.
type Aggregator struct {
	component string
	cfg       AggregatorCfg
	emitter   *Emitter
	now       func() time.Time

	mu      sync.Mutex
	schemas *schemaRegistry
	store   *store
	units   map[string]Unit
	state   State

	flushMu sync.Mutex
}

// NewAggregator creates an aggregator for component. A nil cfg uses defaults.
func NewAggregator(component string, emitter *Emitter, cfg *AggregatorCfg) *Aggregator {
	a := &Aggregator{
		component: component,
		emitter:   emitter,
		now:       time.Now,
		schemas:   newSchemaRegistry(),
		store:     newStore(),
		units:     make(map[string]Unit),
	}
	if cfg != nil {
		a.cfg = *cfg
		for name, u := range cfg.Units {
			a.units[name] = u
		}
	}
	if a.cfg.FlushMode == "" {
		a.cfg.FlushMode = RetainAfterFlush
	}
	return a
}

// SetClock replaces the wall clock used for flush timestamps and runner ages.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// Component returns the component name.
func (a *Aggregator) Component() string {
	return a.component
}

// Namespace returns "{environment}-{component}-dim".
func (a *Aggregator) Namespace() string {
	return fmt.Sprintf("%s-%s-dim", a.cfg.Environment, a.component)
}

// RegisterUnit overrides the unit of one metric.
func (a *Aggregator) RegisterUnit(name string, u Unit) {
	a.mu.Lock()
	a.units[name] = u
	a.mu.Unlock()
}

// MetricUnit resolves the unit of name: explicit override first, then suffix.
func (a *Aggregator) MetricUnit(name string) Unit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metricUnitLocked(name)
}

func (a *Aggregator) metricUnitLocked(name string) Unit {
	if u, ok := a.units[name]; ok {
		return u
	}
	return unitBySuffix(name)
}

// CountEntry advances the counter (name, dims) by inc. The histogram keeps a
// single bucket holding the running total.
func (a *Aggregator) CountEntry(name string, inc Value, dims Dimension) error {
	if err := checkValue(name, inc); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	h, err := a.histogramLocked(name, dims)
	if err != nil {
		return err
	}
	h.count(inc)
	a.state = StateRecording
	return nil
}

// AddEntry records one observation of v for (name, dims).
func (a *Aggregator) AddEntry(name string, v Value, dims Dimension) error {
	if err := checkValue(name, v); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	h, err := a.histogramLocked(name, dims)
	if err != nil {
		return err
	}
	h.add(v)
	a.state = StateRecording
	return nil
}

func (a *Aggregator) histogramLocked(name string, dims Dimension) (*histogram, error) {
	sig, values, err := a.schemas.signature(name, dims)
	if err != nil {
		return nil, err
	}
	return a.store.getOrCreate(name, sig, values), nil
}

// Histogram returns a copy of the histogram of (name, dims), or nil if nothing
// was recorded for it.
func (a *Aggregator) Histogram(name string, dims Dimension) map[Value]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	sig, ok := a.schemas.lookup(name, dims)
	if !ok {
		return nil
	}
	h, ok := a.store.get(name, sig)
	if !ok {
		return nil
	}
	out := make(map[Value]int, h.len())
	h.copyTo(out)
	return out
}

// State returns the current flush lifecycle state.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Encode returns the batches a flush would send now, without sending them.
func (a *Aggregator) Encode() []Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store.empty() {
		return nil
	}
	return Encode(a.Namespace(), a.now(), a.store.snapshot(a.schemas), a.metricUnitLocked, &a.cfg.Encoder)
}

// SendMetrics flushes the store. An empty store makes no backend call.
// Flushes on the same aggregator never overlap.
func (a *Aggregator) SendMetrics(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if a.store.empty() {
		a.mu.Unlock()
		return nil
	}
	if a.emitter == nil {
		a.mu.Unlock()
		return ErrNoEmitter
	}
	a.state = StateFlushPending
	ts := a.now()
	snap := a.store.snapshot(a.schemas)
	if a.cfg.FlushMode == ResetAfterFlush {
		a.store = newStore()
	}
	units := make(map[string]Unit, len(snap))
	for _, s := range snap {
		units[s.Name] = a.metricUnitLocked(s.Name)
	}
	a.mu.Unlock()

	batches := Encode(a.Namespace(), ts, snap, func(name string) Unit { return units[name] }, &a.cfg.Encoder)
	log.Info().Str("namespace", a.Namespace()).Int("series", len(snap)).
		Int("batches", len(batches)).Msg("flushing metrics")

	err := a.emitter.Emit(ctx, batches)

	a.mu.Lock()
	if a.state == StateFlushPending {
		if err != nil {
			a.state = StateFailed
		} else {
			a.state = StateFlushed
		}
	}
	a.mu.Unlock()
	return err
}

// mustCount and mustAdd back the named recorders, whose metric names and
// dimension sets are fixed in this package. A schema mismatch there is a
// programming error and panics; an invalid value is logged and dropped.
func (a *Aggregator) mustCount(name string, inc Value, dims Dimension) {
	a.must(name, a.CountEntry(name, inc, dims))
}

func (a *Aggregator) mustAdd(name string, v Value, dims Dimension) {
	a.must(name, a.AddEntry(name, v, dims))
}

func (a *Aggregator) must(name string, err error) {
	if err == nil {
		return
	}
	log.Error().Err(err).Str("metric", name).Str("component", a.component).Msg("record metric")
	if errors.Is(err, ErrSchemaMismatch) {
		panic(err)
	}
}
