package metrics

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingSender keeps a copy of every batch it is given. fail, when set,
// decides the result of the n-th call (0-based).
type recordingSender struct {
	mu      sync.Mutex
	batches []Batch
	calls   int
	fail    func(n int) error
}

func (s *recordingSender) Send(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls
	s.calls++
	if s.fail != nil {
		if err := s.fail(n); err != nil {
			return err
		}
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *recordingSender) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Batch(nil), s.batches...)
}

func newTestAggregator(t *testing.T, cfg *AggregatorCfg) (*Aggregator, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	if cfg == nil {
		cfg = &AggregatorCfg{Environment: "test"}
	}
	a := NewAggregator("unit", NewEmitter(sender, nil, nil), cfg)
	a.SetClock(func() time.Time { return _testNow })
	return a, sender
}

func TestSingleCountFlush(t *testing.T) {
	a, sender := newTestAggregator(t, nil)
	require.NoError(t, a.CountEntry("x", 1, nil))
	require.NoError(t, a.SendMetrics(context.Background()))

	batches := sender.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "test-unit-dim", batches[0].Namespace)
	require.Len(t, batches[0].Data, 1)

	d := batches[0].Data[0]
	assert.Equal(t, "x", d.MetricName)
	assert.Equal(t, []float64{1}, d.Values)
	assert.Equal(t, []float64{1}, d.Counts)
	assert.Equal(t, UnitCount, d.Unit)
	assert.Equal(t, _testNow, d.Timestamp)
	assert.Empty(t, d.Dimensions)
}

func TestWallclockHistogramFlush(t *testing.T) {
	a, sender := newTestAggregator(t, nil)
	require.NoError(t, a.AddEntry("op.wallclock", 5, nil))
	require.NoError(t, a.AddEntry("op.wallclock", 5, nil))
	require.NoError(t, a.AddEntry("op.wallclock", 9, nil))

	assert.Equal(t, map[Value]int{5: 2, 9: 1}, a.Histogram("op.wallclock", nil))
	require.NoError(t, a.SendMetrics(context.Background()))

	batches := sender.Batches()
	require.Len(t, batches, 1)
	d := batches[0].Data[0]
	assert.Equal(t, UnitMilliseconds, d.Unit)
	assert.Equal(t, []float64{5, 9}, d.Values)
	assert.Equal(t, []float64{2, 1}, d.Counts)
}

func TestThirtyMetricsMakeTwoBatches(t *testing.T) {
	a, sender := newTestAggregator(t, nil)
	for i := range 30 {
		require.NoError(t, a.CountEntry("metric."+string(rune('a'+i)), 1, nil))
	}
	require.NoError(t, a.SendMetrics(context.Background()))

	batches := sender.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Data, 25)
	assert.Len(t, batches[1].Data, 5)
}

func TestCountEntrySumsIntoSingleBucket(t *testing.T) {
	a, _ := newTestAggregator(t, nil)
	dims := Dimension{DimOrg: "acme"}
	for _, inc := range []Value{1, 4, 2.5, 0, 3} {
		require.NoError(t, a.CountEntry("run.count", inc, dims))
	}
	assert.Equal(t, map[Value]int{10.5: 1}, a.Histogram("run.count", dims))

	// another signature of the same metric has its own counter
	require.NoError(t, a.CountEntry("run.count", 2, Dimension{DimOrg: "other"}))
	assert.Equal(t, map[Value]int{2: 1}, a.Histogram("run.count", Dimension{DimOrg: "other"}))
	assert.Equal(t, map[Value]int{10.5: 1}, a.Histogram("run.count", dims))
}

func TestAddEntryCountsOccurrences(t *testing.T) {
	a, _ := newTestAggregator(t, nil)
	values := []Value{3, 1, 3, 3, 7, 1}
	for _, v := range values {
		require.NoError(t, a.AddEntry("sizes", v, nil))
	}
	assert.Equal(t, map[Value]int{3: 3, 1: 2, 7: 1}, a.Histogram("sizes", nil))
	assert.Nil(t, a.Histogram("absent", nil))
}

func TestSchemaMismatch(t *testing.T) {
	a, _ := newTestAggregator(t, nil)
	require.NoError(t, a.CountEntry("m", 1, Dimension{DimRepo: "r", DimOwner: "o"}))

	// same names, other values
	require.NoError(t, a.CountEntry("m", 1, Dimension{DimRepo: "r2", DimOwner: "o2"}))
	require.NoError(t, a.AddEntry("m", 1, Dimension{DimOwner: "o3", DimRepo: "r3"}))

	err := a.CountEntry("m", 1, Dimension{DimRepo: "r"})
	require.ErrorIs(t, err, ErrSchemaMismatch)
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "m", mismatch.Metric)
	assert.Equal(t, []string{DimOwner, DimRepo}, mismatch.Expected)
	assert.Equal(t, []string{DimRepo}, mismatch.Got)

	assert.ErrorIs(t, a.AddEntry("m", 1, nil), ErrSchemaMismatch)
	assert.ErrorIs(t, a.AddEntry("m", 1, Dimension{DimRepo: "r", DimOwner: "o", DimOrg: "x"}), ErrSchemaMismatch)

	// a failed call records nothing
	assert.Equal(t, map[Value]int{1: 1}, a.Histogram("m", Dimension{DimRepo: "r", DimOwner: "o"}))
}

func TestInvalidValues(t *testing.T) {
	a, _ := newTestAggregator(t, nil)
	assert.ErrorIs(t, a.AddEntry("v", Value(math.NaN()), nil), ErrInvalidValue)
	assert.ErrorIs(t, a.CountEntry("v", Value(math.Inf(1)), nil), ErrInvalidValue)
	assert.Nil(t, a.Histogram("v", nil))
}

func TestDimensionsSortedInDatum(t *testing.T) {
	a, sender := newTestAggregator(t, nil)
	require.NoError(t, a.CountEntry("run.process", 1, Dimension{DimRepo: "runner", DimOwner: "acme"}))
	require.NoError(t, a.SendMetrics(context.Background()))

	d := sender.Batches()[0].Data[0]
	assert.Equal(t, []DimensionPair{
		{Name: DimOwner, Value: "acme"},
		{Name: DimRepo, Value: "runner"},
	}, d.Dimensions)
}

func TestMetricUnit(t *testing.T) {
	a, _ := newTestAggregator(t, &AggregatorCfg{
		Environment: "test",
		Units:       map[string]Unit{"run.custom": UnitSeconds},
	})
	assert.Equal(t, UnitCount, a.MetricUnit("run.count"))
	assert.Equal(t, UnitMilliseconds, a.MetricUnit("gh.calls.x.wallclock"))
	assert.Equal(t, UnitSeconds, a.MetricUnit("run.ec2runners.runningWallclock"))
	assert.Equal(t, UnitSeconds, a.MetricUnit("run.custom"))

	a.RegisterUnit("gh.calls.x.wallclock", UnitCount)
	assert.Equal(t, UnitCount, a.MetricUnit("gh.calls.x.wallclock"))
}

func TestNamespace(t *testing.T) {
	a := NewAggregator(ComponentScaleUp, nil, &AggregatorCfg{Environment: "prod"})
	assert.Equal(t, "prod-scaleUp-dim", a.Namespace())
	assert.Equal(t, ComponentScaleUp, a.Component())
}

func TestEmptyFlushSendsNothing(t *testing.T) {
	a, sender := newTestAggregator(t, nil)
	require.NoError(t, a.SendMetrics(context.Background()))
	assert.Zero(t, sender.calls)
	assert.Equal(t, StateRecording, a.State())
	assert.Nil(t, a.Encode())
}

func TestFlushWithoutEmitter(t *testing.T) {
	a := NewAggregator("unit", nil, nil)
	require.NoError(t, a.CountEntry("x", 1, nil))
	assert.ErrorIs(t, a.SendMetrics(context.Background()), ErrNoEmitter)
}

func TestRetainAfterFlush(t *testing.T) {
	a, sender := newTestAggregator(t, nil)
	require.NoError(t, a.CountEntry("x", 1, nil))
	require.NoError(t, a.SendMetrics(context.Background()))
	require.NoError(t, a.CountEntry("x", 2, nil))
	require.NoError(t, a.SendMetrics(context.Background()))

	batches := sender.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []float64{1}, batches[0].Data[0].Values)
	assert.Equal(t, []float64{3}, batches[1].Data[0].Values)
}

func TestResetAfterFlush(t *testing.T) {
	a, sender := newTestAggregator(t, &AggregatorCfg{Environment: "test", FlushMode: ResetAfterFlush})
	dims := Dimension{DimOrg: "acme"}
	require.NoError(t, a.CountEntry("x", 1, dims))
	require.NoError(t, a.SendMetrics(context.Background()))
	assert.Nil(t, a.Histogram("x", dims))

	// nothing recorded since the last flush
	require.NoError(t, a.SendMetrics(context.Background()))
	assert.Len(t, sender.Batches(), 1)

	// schemas survive the reset
	assert.ErrorIs(t, a.CountEntry("x", 1, nil), ErrSchemaMismatch)
	require.NoError(t, a.CountEntry("x", 2, dims))
	require.NoError(t, a.SendMetrics(context.Background()))

	batches := sender.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []float64{2}, batches[1].Data[0].Values)
}

func TestFlushStates(t *testing.T) {
	sender := &recordingSender{}
	a := NewAggregator("unit", NewEmitter(sender, nil, nil), nil)
	assert.Equal(t, StateRecording, a.State())

	require.NoError(t, a.CountEntry("x", 1, nil))
	require.NoError(t, a.SendMetrics(context.Background()))
	assert.Equal(t, StateFlushed, a.State())

	require.NoError(t, a.CountEntry("x", 1, nil))
	assert.Equal(t, StateRecording, a.State())

	sender.fail = func(int) error { return errors.New("unreachable") }
	err := a.SendMetrics(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, a.State())
	assert.Equal(t, "Failed", a.State().String())
}

func TestFlushPendingDuringSend(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	a := NewAggregator("unit", NewEmitter(SenderFunc(func(ctx context.Context, b Batch) error {
		close(entered)
		<-release
		return nil
	}), nil, nil), nil)
	require.NoError(t, a.CountEntry("x", 1, nil))

	done := make(chan error, 1)
	go func() { done <- a.SendMetrics(context.Background()) }()

	<-entered
	assert.Equal(t, StateFlushPending, a.State())
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateFlushed, a.State())
}

func TestConcurrentRecording(t *testing.T) {
	a, sender := newTestAggregator(t, nil)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				_ = a.CountEntry("total", 1, nil)
				_ = a.AddEntry("values", Value(j%10), Dimension{DimRunnerType: []string{"a", "b"}[i%2]})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, a.SendMetrics(context.Background()))

	assert.Equal(t, map[Value]int{800: 1}, a.Histogram("total", nil))
	assert.Equal(t, 40, a.Histogram("values", RunnerTypeDim("a"))[3])
	assert.Len(t, sender.Batches(), 1)
}

func TestAggregatorCfgValidate(t *testing.T) {
	assert.NoError(t, (&AggregatorCfg{}).Validate())
	assert.NoError(t, (&AggregatorCfg{FlushMode: ResetAfterFlush}).Validate())
	assert.Error(t, (&AggregatorCfg{FlushMode: "drop"}).Validate())
	assert.Error(t, (&AggregatorCfg{Encoder: EncoderCfg{MaxDatumsPerBatch: -1}}).Validate())
}
