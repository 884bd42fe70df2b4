// Package log is a small structured JSON logger with a chained field API:
//
//	log.Info().Str("namespace", ns).Int("datums", n).Msg("metrics batch sent")
//
// Events below the configured level are nil and every field method is a
// no-op on a nil event.
package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger creates log events at a given level.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
}

// JSONLogger writes one JSON object per event to its appenders.
type JSONLogger struct {
	appenders   []LogAppender
	minLevel    atomic.Int32
	callerInfo  bool
	callerSkip  int
	eventPool   sync.Pool
	callerCache sync.Map
}

// NewLogger creates a logger from cfg. A nil cfg uses DefaultCfg. cfg is
// expected to have passed Validate; an unknown level falls back to info.
func NewLogger(cfg *LogCfg) (*JSONLogger, error) {
	if cfg == nil {
		cfg = DefaultCfg()
	}
	l := &JSONLogger{
		callerInfo: cfg.EnabledCallerInfo,
		callerSkip: cfg.CallerSkip,
	}
	lv, _ := ParseLevel(cfg.Level)
	l.SetLevel(lv)
	l.eventPool.New = func() any { return newEvent(l) }

	if cfg.FileAppender {
		fa, err := NewFileAppender(cfg)
		if err != nil {
			return nil, err
		}
		l.AddAppender(fa)
	}
	if cfg.ConsoleAppender {
		l.AddAppender(NewConsoleAppender())
	}
	return l, nil
}

// SetLevel changes the minimum level. Safe for concurrent use.
func (x *JSONLogger) SetLevel(lv Level) {
	x.minLevel.Store(int32(lv))
}

// Level returns the minimum level.
func (x *JSONLogger) Level() Level {
	return Level(x.minLevel.Load())
}

// AddAppender adds an output. It must not race with logging.
func (x *JSONLogger) AddAppender(a LogAppender) {
	x.appenders = append(x.appenders, a)
}

// Refresh flushes every appender.
func (x *JSONLogger) Refresh() {
	for _, a := range x.appenders {
		_ = a.Refresh()
	}
}

// Close flushes and closes every appender.
func (x *JSONLogger) Close() {
	for _, a := range x.appenders {
		_ = a.Close()
	}
}

func (x *JSONLogger) Trace() *LogEvent { return x.log(TraceLevel) }
func (x *JSONLogger) Debug() *LogEvent { return x.log(DebugLevel) }
func (x *JSONLogger) Info() *LogEvent  { return x.log(InfoLevel) }
func (x *JSONLogger) Warn() *LogEvent  { return x.log(WarnLevel) }
func (x *JSONLogger) Error() *LogEvent { return x.log(ErrorLevel) }

// Fatal events panic after being written.
func (x *JSONLogger) Fatal() *LogEvent { return x.log(FatalLevel) }

func (x *JSONLogger) log(level Level) *LogEvent {
	if level < x.Level() {
		return nil
	}

	e := x.eventPool.Get().(*LogEvent)
	e.reset(level)
	t := time.Now()
	e.Time("time", t)
	e.Str("level", level.String())
	if x.callerInfo {
		e.Str("caller", x.caller())
	}
	return e
}

func (x *JSONLogger) write(e *LogEvent) {
	for _, a := range x.appenders {
		_, _ = a.Write(e.buf.Bytes())
	}
	fatal := e.level == FatalLevel
	x.eventPool.Put(e)
	if fatal {
		panic("fatal log event")
	}
}

// caller returns "dir/file.go:line func" for the code that created the event.
func (x *JSONLogger) caller() string {
	pc, file, line, ok := runtime.Caller(3 + x.callerSkip)
	if !ok {
		return "unknown"
	}
	if cached, found := x.callerCache.Load(pc); found {
		return cached.(string)
	}

	fn := runtime.FuncForPC(pc).Name()
	if i := strings.LastIndexByte(fn, '.'); i != -1 {
		fn = fn[i+1:]
	}
	if i := strings.LastIndexByte(file, '/'); i > 0 {
		if j := strings.LastIndexByte(file[:i], '/'); j >= 0 {
			file = file[j+1:]
		}
	}
	s := file + ":" + strconv.Itoa(line) + " " + fn
	x.callerCache.Store(pc, s)
	return s
}

var _defaultLogger atomic.Pointer[JSONLogger]

func init() {
	l, _ := NewLogger(DefaultCfg())
	_defaultLogger.Store(l)
}

// Initialize replaces the default logger with one built from cfg. The
// previous default logger is closed.
func Initialize(cfg *LogCfg) error {
	if cfg == nil {
		cfg = DefaultCfg()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	SetDefaultLogger(l)
	return nil
}

// SetDefaultLogger replaces the default logger and closes the previous one.
func SetDefaultLogger(l *JSONLogger) {
	if old := _defaultLogger.Swap(l); old != nil && old != l {
		old.Close()
	}
}

// Default returns the default logger.
func Default() *JSONLogger {
	return _defaultLogger.Load()
}

// Refresh flushes the default logger.
func Refresh() { Default().Refresh() }

// Close closes the default logger's appenders.
func Close() { Default().Close() }

// The package-level constructors call log directly so the caller frame depth
// matches the methods.

func Trace() *LogEvent { return Default().log(TraceLevel) }
func Debug() *LogEvent { return Default().log(DebugLevel) }
func Info() *LogEvent  { return Default().log(InfoLevel) }
func Warn() *LogEvent  { return Default().log(WarnLevel) }
func Error() *LogEvent { return Default().log(ErrorLevel) }
func Fatal() *LogEvent { return Default().log(FatalLevel) }
