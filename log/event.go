package log

import (
	"bytes"
	"fmt"
	"time"
)

// LogEvent accumulates the fields of one log line. A nil *LogEvent is a
// disabled event and all methods on it are no-ops.
type LogEvent struct {
	buf    *bytes.Buffer
	logger *JSONLogger
	level  Level
}

func newEvent(l *JSONLogger) *LogEvent {
	e := &LogEvent{logger: l, buf: &bytes.Buffer{}}
	e.buf.Grow(1024)
	return e
}

func (e *LogEvent) reset(level Level) {
	if e.buf.Cap() > 64<<10 {
		e.buf = &bytes.Buffer{}
		e.buf.Grow(1024)
	}
	e.buf.Reset()
	e.level = level
	AppendBeginMarker(e.buf)
}

// Time appends t as "2006-01-02 15:04:05.000" in local time.
func (e *LogEvent) Time(k string, t time.Time) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendTime(e.buf, t)
	return e
}

// Dur appends d in its String form, e.g. "1.5s".
func (e *LogEvent) Dur(k string, d time.Duration) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendString(e.buf, d.String())
	return e
}

func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInt64(e.buf, int64(v))
	return e
}

func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInt64(e.buf, v)
	return e
}

func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendUint64(e.buf, v)
	return e
}

func (e *LogEvent) Float64(k string, v float64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendFloat64(e.buf, v)
	return e
}

func (e *LogEvent) Float64s(k string, v []float64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendFloat64s(e.buf, v)
	return e
}

func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendBool(e.buf, v)
	return e
}

func (e *LogEvent) Str(k string, s string) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendString(e.buf, s)
	return e
}

func (e *LogEvent) Strs(k string, v []string) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendStrings(e.buf, v)
	return e
}

// Stringer appends v.String(), or null for a nil v.
func (e *LogEvent) Stringer(k string, v fmt.Stringer) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	if v == nil {
		AppendNil(e.buf)
		return e
	}
	AppendString(e.buf, v.String())
	return e
}

// Err appends err under "error"; a nil err is written as null.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, "error")
	if err == nil {
		AppendNil(e.buf)
		return e
	}
	AppendString(e.buf, err.Error())
	return e
}

// Any appends the JSON encoding of v.
func (e *LogEvent) Any(k string, v any) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInterface(e.buf, v)
	return e
}

// Msg adds the message and writes the event.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	e.Str("msg", msg)
	e.end()
}

// Msgf is Msg with fmt.Sprintf formatting.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}

// Send writes the event without a message.
func (e *LogEvent) Send() {
	if e == nil {
		return
	}
	e.end()
}

func (e *LogEvent) end() {
	AppendEndMarker(e.buf)
	AppendLineBreak(e.buf)
	e.logger.write(e)
}
