// Package prometheus folds metric batches into a Prometheus registry and
// pushes it to a push gateway, optionally exposing it for scraping as well.
package prometheus

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/linchenxuan/runnermetrics/log"
	"github.com/linchenxuan/runnermetrics/metrics"
	"github.com/linchenxuan/runnermetrics/retry"
)

const _labelNamespace = "namespace"

// Cfg contains configuration for the Prometheus sender.
type Cfg struct {
	Tag string `mapstructure:"tag"`
	// PushAddr is the push gateway URL. Empty disables pushing.
	PushAddr string `mapstructure:"pushAddr"`
	// PushJobName is the job label of pushed metrics.
	PushJobName string `mapstructure:"pushJobName"`
	// MetricPrefix is prepended to every exported metric name.
	MetricPrefix string `mapstructure:"metricPrefix"`
	// ExtLabels are added as push grouping labels.
	ExtLabels map[string]string `mapstructure:"extLabels"`
	// HTTPListenAddr, when set, serves the registry on MetricPath.
	HTTPListenAddr string `mapstructure:"httpListenAddr"`
	MetricPath     string `mapstructure:"metricPath"`
	// PushTimeout bounds one push. Zero means no bound.
	PushTimeout time.Duration `mapstructure:"pushTimeout"`
}

func (c *Cfg) setDefaults() {
	if c.PushJobName == "" {
		c.PushJobName = "runnermetrics"
	}
	if c.MetricPrefix == "" {
		c.MetricPrefix = "runnermetrics"
	}
	if c.MetricPath == "" {
		c.MetricPath = "/metrics"
	}
}

// accum holds the value/count pairs of one series for one flush timestamp,
// so a series split over several datums or batches is reported whole. Values
// are distinct within a flushed series, so setting a pair again is a no-op
// and a resent batch does not inflate the totals.
type accum struct {
	ts     time.Time
	counts map[float64]float64
}

func (a *accum) totals() (sum, count float64) {
	for v, c := range a.counts {
		sum += v * c
		count += c
	}
	return sum, count
}

// Sender implements metrics.Sender. Every series is exported as a pair of
// gauges, <name>_sum and <name>_count, labelled with the namespace and the
// series dimensions.
type Sender struct {
	cfg    Cfg
	reg    *prometheus.Registry
	pusher *push.Pusher
	srv    *http.Server
	addr   net.Addr

	mu     sync.Mutex
	sums   map[string]*prometheus.GaugeVec
	counts map[string]*prometheus.GaugeVec
	labels map[string][]string
	accums map[string]*accum
}

// NewSender creates a Sender with its own registry.
func NewSender(cfg *Cfg) *Sender {
	c := Cfg{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	s := &Sender{
		cfg:    c,
		reg:    prometheus.NewRegistry(),
		sums:   map[string]*prometheus.GaugeVec{},
		counts: map[string]*prometheus.GaugeVec{},
		labels: map[string][]string{},
		accums: map[string]*accum{},
	}
	if c.PushAddr != "" {
		s.pusher = push.New(c.PushAddr, c.PushJobName).Gatherer(s.reg)
		for k, v := range c.ExtLabels {
			s.pusher = s.pusher.Grouping(k, v)
		}
	}
	return s
}

// Registry returns the registry the sender writes to.
func (s *Sender) Registry() *prometheus.Registry {
	return s.reg
}

// Send folds b into the registry and pushes it when a push gateway is set.
func (s *Sender) Send(ctx context.Context, b metrics.Batch) error {
	if err := s.merge(b); err != nil {
		return err
	}
	if s.pusher == nil {
		return nil
	}
	if s.cfg.PushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PushTimeout)
		defer cancel()
	}
	if err := s.pusher.PushContext(ctx); err != nil {
		return retry.Retryable(fmt.Errorf("push to %s: %w", s.cfg.PushAddr, err))
	}
	return nil
}

func (s *Sender) merge(b metrics.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range b.Data {
		name := s.metricName(d.MetricName)
		labels := prometheus.Labels{_labelNamespace: b.Namespace}
		names := []string{_labelNamespace}
		for _, dim := range d.Dimensions {
			labels[dim.Name] = dim.Value
			names = append(names, dim.Name)
		}
		sort.Strings(names)

		sumVec, countVec, err := s.vecs(name, d.MetricName, names)
		if err != nil {
			return err
		}

		key := fullName(name, labels)
		acc, ok := s.accums[key]
		if !ok || !acc.ts.Equal(d.Timestamp) {
			acc = &accum{ts: d.Timestamp, counts: make(map[float64]float64, len(d.Values))}
			s.accums[key] = acc
		}
		for i, v := range d.Values {
			acc.counts[v] = d.Counts[i]
		}
		sum, count := acc.totals()
		sumVec.With(labels).Set(sum)
		countVec.With(labels).Set(count)
	}
	return nil
}

// vecs returns the gauge pair of name, registering it on first use.
func (s *Sender) vecs(name, help string, labelNames []string) (*prometheus.GaugeVec, *prometheus.GaugeVec, error) {
	if known, ok := s.labels[name]; ok {
		if strings.Join(known, ",") != strings.Join(labelNames, ",") {
			return nil, nil, fmt.Errorf("metric %s labels %v do not match registered %v", name, labelNames, known)
		}
		return s.sums[name], s.counts[name], nil
	}

	sumVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name + "_sum",
		Help: "Sum of observed values of " + help,
	}, labelNames)
	countVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name + "_count",
		Help: "Number of observations of " + help,
	}, labelNames)
	if err := s.reg.Register(sumVec); err != nil {
		return nil, nil, fmt.Errorf("register %s: %w", name, err)
	}
	if err := s.reg.Register(countVec); err != nil {
		s.reg.Unregister(sumVec)
		return nil, nil, fmt.Errorf("register %s: %w", name, err)
	}
	s.sums[name] = sumVec
	s.counts[name] = countVec
	s.labels[name] = labelNames
	return sumVec, countVec, nil
}

func (s *Sender) metricName(name string) string {
	return s.cfg.MetricPrefix + "_" + sanitize(name)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// fullName builds a unique key for a series from its name and labels.
func fullName(name string, labels prometheus.Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.Grow(128)
	sb.WriteString(name)
	sb.WriteString("*")
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(":")
		sb.WriteString(labels[k])
		sb.WriteString(",")
	}
	return sb.String()
}

// Serve exposes the registry over HTTP when HTTPListenAddr is set.
func (s *Sender) Serve() error {
	if s.cfg.HTTPListenAddr == "" {
		return nil
	}
	l, err := net.Listen("tcp", s.cfg.HTTPListenAddr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(s.cfg.MetricPath, promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.addr = l.Addr()
	go func() {
		if err := s.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("prometheus http server")
		}
	}()
	log.Info().Str("addr", l.Addr().String()).Str("path", s.cfg.MetricPath).Msg("prometheus http start listen on")
	return nil
}

// Addr returns the scrape listener address, or nil when not serving.
func (s *Sender) Addr() net.Addr {
	return s.addr
}

// Stop shuts the scrape listener down.
func (s *Sender) Stop() {
	if s.srv == nil {
		return
	}
	if err := s.srv.Close(); err != nil {
		log.Error().Err(err).Msg("stop prometheus http server")
	}
	s.srv = nil
}

// FactoryName implements plugin.Plugin.
func (s *Sender) FactoryName() string {
	return _factoryName
}
