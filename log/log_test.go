package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level string) (*JSONLogger, *bytes.Buffer) {
	t.Helper()
	l, err := NewLogger(&LogCfg{Level: level})
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	l.AddAppender(NewWriterAppender(buf))
	return l, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestEventFieldsAreValidJSON(t *testing.T) {
	l, buf := newBufferLogger(t, "debug")

	l.Info().
		Str("namespace", "prod-scaleUp-dim").
		Int("datums", 25).
		Int64("big", 1<<40).
		Uint64("u", 7).
		Float64("ms", 12.5).
		Float64s("values", []float64{1, 2.5, math.NaN()}).
		Bool("ok", true).
		Strs("dims", []string{"Owner", "Repo"}).
		Dur("wait", 1500*time.Millisecond).
		Err(errors.New(`quoted "error"`)).
		Any("data", map[string]int{"a": 1}).
		Msg("line\twith\ttabs")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	m := lines[0]
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "prod-scaleUp-dim", m["namespace"])
	assert.Equal(t, float64(25), m["datums"])
	assert.Equal(t, float64(12.5), m["ms"])
	assert.Equal(t, []any{float64(1), 2.5, "NaN"}, m["values"])
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, "1.5s", m["wait"])
	assert.Equal(t, `quoted "error"`, m["error"])
	assert.Equal(t, map[string]any{"a": float64(1)}, m["data"])
	assert.Equal(t, "line\twith\ttabs", m["msg"])
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, "warn")

	assert.Nil(t, l.Debug())
	assert.Nil(t, l.Info())
	// chained calls on a disabled event are no-ops
	l.Info().Str("k", "v").Err(nil).Msg("dropped")
	l.Warn().Msg("kept")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])

	l.SetLevel(DebugLevel)
	l.Debug().Msg("now visible")
	assert.Len(t, decodeLines(t, buf), 2)
}

func TestFatalPanics(t *testing.T) {
	l, buf := newBufferLogger(t, "info")
	assert.Panics(t, func() { l.Fatal().Msg("bye") })
	assert.Contains(t, buf.String(), `"level":"FATAL"`)
}

func TestCallerInfo(t *testing.T) {
	l, err := NewLogger(&LogCfg{Level: "info", EnabledCallerInfo: true})
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	l.AddAppender(NewWriterAppender(buf))

	l.Info().Msg("where")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0]["caller"], "log/log_test.go:")
	assert.Contains(t, lines[0]["caller"], "TestCallerInfo")
}

func TestParseLevel(t *testing.T) {
	lv, ok := ParseLevel("Debug")
	assert.True(t, ok)
	assert.Equal(t, DebugLevel, lv)

	lv, ok = ParseLevel("")
	assert.True(t, ok)
	assert.Equal(t, InfoLevel, lv)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestCfgValidate(t *testing.T) {
	assert.NoError(t, DefaultCfg().Validate())
	assert.Error(t, (&LogCfg{Level: "loud", ConsoleAppender: true}).Validate())
	assert.Error(t, (&LogCfg{Level: "info"}).Validate())
	assert.Error(t, (&LogCfg{Level: "info", FileAppender: true}).Validate())

	cfg := &LogCfg{Level: "info", FileAppender: true, Path: "x.log", IsAsync: true}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.AsyncCacheSize)
	assert.Equal(t, 200, cfg.AsyncWriteMillSec)
}

func TestFileLogging(t *testing.T) {
	for _, async := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "logs", "runnermetrics.log")
		cfg := &LogCfg{
			Level:        "debug",
			FileAppender: true,
			Path:         path,
			IsAsync:      async,
		}
		require.NoError(t, cfg.Validate())
		l, err := NewLogger(cfg)
		require.NoError(t, err)

		l.Info().Bool("async", async).Msg("this is a test message")
		l.Refresh()
		l.Close()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "this is a test message")
		assert.Contains(t, string(content), `"level":"INFO"`)
	}
}

func TestFileRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotate.log")
	a, err := NewFileAppender(&LogCfg{Path: path, SplitMB: 1})
	require.NoError(t, err)
	defer a.Close()

	line := bytes.Repeat([]byte("x"), 600<<10)
	_, err = a.Write(line)
	require.NoError(t, err)
	_, err = a.Write(line)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestInitializeReplacesDefault(t *testing.T) {
	prev := Default()
	defer SetDefaultLogger(prev)

	require.NoError(t, Initialize(&LogCfg{Level: "error", ConsoleAppender: true}))
	assert.Equal(t, ErrorLevel, Default().Level())
	assert.Nil(t, Info())
	assert.Error(t, Initialize(&LogCfg{Level: "nope", ConsoleAppender: true}))
}
