package cloudwatch

import (
	"context"
	"fmt"

	"github.com/linchenxuan/runnermetrics/log"
	"github.com/linchenxuan/runnermetrics/plugin"
)

const _factoryName = "cloudwatch"

type factory struct {
	newClient func(ctx context.Context, cfg *Cfg) (Client, error)
}

// NewFactory returns the plugin factory building CloudWatch senders from the
// default AWS configuration.
func NewFactory() plugin.Factory {
	return &factory{
		newClient: func(ctx context.Context, cfg *Cfg) (Client, error) {
			return NewClient(ctx, cfg)
		},
	}
}

// Type returns the plugin type.
func (f *factory) Type() plugin.Type {
	return plugin.Sender
}

// Name returns the name of the plugin implementation.
func (f *factory) Name() string {
	return _factoryName
}

// ConfigType returns an empty config populated by the manager.
func (f *factory) ConfigType() any {
	return &Cfg{}
}

// Setup builds a Sender from the decoded config.
func (f *factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*Cfg)
	if !ok {
		return nil, fmt.Errorf("cloudwatch setup: unexpected config type %T", cfgAny)
	}
	client, err := f.newClient(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("region", cfg.Region).Str("endpoint", cfg.Endpoint).Msg("cloudwatch sender ready")
	return NewSender(client, cfg.RequestTimeout), nil
}

// Destroy is a no-op; the SDK client holds no resources that need closing.
func (f *factory) Destroy(plugin.Plugin) {}
