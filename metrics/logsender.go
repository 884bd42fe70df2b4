package metrics

import (
	"context"

	"github.com/linchenxuan/runnermetrics/log"
)

// LogSender writes every batch to the log instead of a backend. It is used
// for dry runs and local debugging.
type LogSender struct {
	logger log.Logger
}

// NewLogSender creates a LogSender. A nil logger uses the package default.
func NewLogSender(logger log.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs b at info level.
func (s *LogSender) Send(_ context.Context, b Batch) error {
	e := log.Info()
	if s.logger != nil {
		e = s.logger.Info()
	}
	e.Str("namespace", b.Namespace).
		Int("datums", len(b.Data)).
		Int("values", b.ValueCount()).
		Any("metricData", b.Data).
		Msg("metrics batch")
	return nil
}

// FactoryName implements plugin.Plugin.
func (s *LogSender) FactoryName() string {
	return "log"
}
