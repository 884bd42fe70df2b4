package log

import (
	"io"
	"os"
	"sync"
)

// LogAppender is an output destination for formatted log lines.
// Implementations must be safe for concurrent use.
type LogAppender interface {
	Write(buf []byte) (n int, err error)
	// Refresh blocks until buffered lines reach the destination.
	Refresh() error
	Close() error
}

// WriterAppender writes every line to an io.Writer, serialized by a mutex.
type WriterAppender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterAppender creates an appender writing to w.
func NewWriterAppender(w io.Writer) *WriterAppender {
	return &WriterAppender{w: w}
}

// NewConsoleAppender creates an appender writing to stderr, keeping stdout
// free for command output.
func NewConsoleAppender() *WriterAppender {
	return NewWriterAppender(os.Stderr)
}

func (a *WriterAppender) Write(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.w.Write(buf)
}

func (a *WriterAppender) Refresh() error { return nil }

func (a *WriterAppender) Close() error { return nil }
