// Package otel records metric batches into OpenTelemetry histograms.
package otel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/linchenxuan/runnermetrics/metrics"
)

// ErrNilMeter is returned when the sender is built without a meter.
var ErrNilMeter = errors.New("nil meter")

const _attrNamespace = "namespace"

// Cfg configures the OpenTelemetry sender.
type Cfg struct {
	Tag string `mapstructure:"tag"`
	// MeterName is the instrumentation scope name.
	MeterName string `mapstructure:"meterName"`
}

// Sender implements metrics.Sender by replaying every value/count pair of a
// datum into a Float64Histogram named after the metric.
type Sender struct {
	meter metric.Meter

	mu    sync.Mutex
	hists map[string]metric.Float64Histogram
}

// NewSender creates a Sender recording through meter.
func NewSender(meter metric.Meter) (*Sender, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	return &Sender{
		meter: meter,
		hists: map[string]metric.Float64Histogram{},
	}, nil
}

// Send records b. It never fails once every instrument exists.
func (s *Sender) Send(ctx context.Context, b metrics.Batch) error {
	for _, d := range b.Data {
		h, err := s.histogram(d.MetricName, d.Unit)
		if err != nil {
			return err
		}

		attrs := make([]attribute.KeyValue, 0, len(d.Dimensions)+1)
		attrs = append(attrs, attribute.String(_attrNamespace, b.Namespace))
		for _, dim := range d.Dimensions {
			attrs = append(attrs, attribute.String(dim.Name, dim.Value))
		}
		opt := metric.WithAttributeSet(attribute.NewSet(attrs...))

		for i, v := range d.Values {
			n := int(math.Round(d.Counts[i]))
			for range n {
				h.Record(ctx, v, opt)
			}
		}
	}
	return nil
}

func (s *Sender) histogram(name string, unit metrics.Unit) (metric.Float64Histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.hists[name]; ok {
		return h, nil
	}
	h, err := s.meter.Float64Histogram(name, metric.WithUnit(ucumUnit(unit)))
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", name, err)
	}
	s.hists[name] = h
	return h, nil
}

// FactoryName implements plugin.Plugin.
func (s *Sender) FactoryName() string {
	return _factoryName
}

func ucumUnit(u metrics.Unit) string {
	switch u {
	case metrics.UnitMilliseconds:
		return "ms"
	case metrics.UnitSeconds:
		return "s"
	default:
		return "1"
	}
}
