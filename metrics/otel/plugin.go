package otel

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/linchenxuan/runnermetrics/plugin"
)

const (
	_factoryName      = "otel"
	_defaultMeterName = "github.com/linchenxuan/runnermetrics"
)

type factory struct{}

// NewFactory returns the plugin factory of the OpenTelemetry sender. Senders
// record through the global meter provider.
func NewFactory() plugin.Factory {
	return &factory{}
}

func (f *factory) Type() plugin.Type {
	return plugin.Sender
}

func (f *factory) Name() string {
	return _factoryName
}

func (f *factory) ConfigType() any {
	return &Cfg{}
}

func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*Cfg)
	if !ok {
		return nil, fmt.Errorf("otel setup: unexpected config type %T", cfgAny)
	}
	name := cfg.MeterName
	if name == "" {
		name = _defaultMeterName
	}
	s, err := NewSender(otel.GetMeterProvider().Meter(name))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (f *factory) Destroy(plugin.Plugin) {}
