package log

import (
	"fmt"
)

// LogCfg configures the logger. It is decoded from the "log" section of the
// application config.
type LogCfg struct {
	// Level is the minimum level written: trace, debug, info, warn, error or fatal.
	Level string `mapstructure:"level"`

	ConsoleAppender bool `mapstructure:"consoleAppender"`
	FileAppender    bool `mapstructure:"fileAppender"`
	// Path of the log file when FileAppender is set.
	Path string `mapstructure:"path"`
	// SplitMB rotates the log file once it grows past this size. Zero disables rotation.
	SplitMB int `mapstructure:"splitMB"`

	// IsAsync queues file writes and flushes them every AsyncWriteMillSec.
	IsAsync           bool `mapstructure:"isAsync"`
	AsyncCacheSize    int  `mapstructure:"asyncCacheSize"`
	AsyncWriteMillSec int  `mapstructure:"asyncWriteMillSec"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
	CallerSkip        int  `mapstructure:"callerSkip"`
}

// DefaultCfg logs info and above to the console.
func DefaultCfg() *LogCfg {
	return &LogCfg{
		Level:           "info",
		ConsoleAppender: true,
	}
}

// Validate checks cfg and fills in defaults for the async settings.
func (cfg *LogCfg) Validate() error {
	if _, ok := ParseLevel(cfg.Level); !ok {
		return fmt.Errorf("invalid log level %q", cfg.Level)
	}
	if !cfg.FileAppender && !cfg.ConsoleAppender {
		return fmt.Errorf("at least one appender (file or console) must be enabled")
	}
	if cfg.FileAppender && cfg.Path == "" {
		return fmt.Errorf("log path cannot be empty when file appender is enabled")
	}
	if cfg.SplitMB < 0 {
		return fmt.Errorf("file split size must be non-negative, got %dMB", cfg.SplitMB)
	}
	if cfg.CallerSkip < 0 {
		return fmt.Errorf("caller skip must be non-negative, got %d", cfg.CallerSkip)
	}
	if cfg.IsAsync {
		if cfg.AsyncCacheSize <= 0 {
			cfg.AsyncCacheSize = 1024
		}
		if cfg.AsyncWriteMillSec <= 0 {
			cfg.AsyncWriteMillSec = 200
		}
		if cfg.AsyncWriteMillSec < 10 {
			return fmt.Errorf("async write interval must be at least 10ms, got %dms", cfg.AsyncWriteMillSec)
		}
	}
	return nil
}
