package prometheus

import (
	"fmt"

	"github.com/linchenxuan/runnermetrics/plugin"
)

const _factoryName = "prometheus"

type factory struct{}

// NewFactory returns the plugin factory of the Prometheus sender.
func NewFactory() plugin.Factory {
	return &factory{}
}

// Type returns the plugin type.
func (f *factory) Type() plugin.Type {
	return plugin.Sender
}

// Name returns the name of the plugin implementation.
func (f *factory) Name() string {
	return _factoryName
}

// ConfigType returns an empty struct that represents the plugin's configuration.
func (f *factory) ConfigType() any {
	return &Cfg{}
}

// Setup creates a Sender and starts its scrape listener if configured.
func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*Cfg)
	if !ok {
		return nil, fmt.Errorf("prometheus setup: unexpected config type %T", cfgAny)
	}
	s := NewSender(cfg)
	if err := s.Serve(); err != nil {
		return nil, fmt.Errorf("prometheus setup: %w", err)
	}
	return s, nil
}

// Destroy stops the scrape listener.
func (f *factory) Destroy(p plugin.Plugin) {
	if s, ok := p.(*Sender); ok {
		s.Stop()
	}
}
