package metrics

import (
	"fmt"

	"github.com/linchenxuan/runnermetrics/plugin"
)

// LogSenderCfg has no settings; a tag may still name the instance.
type LogSenderCfg struct {
	Tag string `mapstructure:"tag"`
}

type logSenderFactory struct{}

// NewLogSenderFactory returns the plugin factory of LogSender.
func NewLogSenderFactory() plugin.Factory {
	return &logSenderFactory{}
}

func (f *logSenderFactory) Type() plugin.Type { return plugin.Sender }
func (f *logSenderFactory) Name() string      { return "log" }
func (f *logSenderFactory) ConfigType() any   { return &LogSenderCfg{} }

func (f *logSenderFactory) Setup(cfgAny any) (plugin.Plugin, error) {
	if _, ok := cfgAny.(*LogSenderCfg); !ok {
		return nil, fmt.Errorf("log sender: unexpected config type %T", cfgAny)
	}
	return NewLogSender(nil), nil
}

func (f *logSenderFactory) Destroy(plugin.Plugin) {}

// SenderPlugin returns the sender instance named name from m.
func SenderPlugin(m *plugin.Manager, name string) (Sender, error) {
	p, err := m.GetPlugin(plugin.Sender, name)
	if err != nil {
		return nil, err
	}
	s, ok := p.(Sender)
	if !ok {
		return nil, fmt.Errorf("plugin %s:%s (%T) is not a metrics sender", plugin.Sender, name, p)
	}
	return s, nil
}
