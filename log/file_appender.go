package log

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	_asyncBytesPerWrite = 1 << 20
	_fileMode           = 0o644
	_dirMode            = 0o755
)

// FileAppender appends log lines to a file, rotating it by size. In async
// mode lines are queued and written in batches by a background goroutine.
type FileAppender struct {
	path    string
	splitMB int

	lock sync.Mutex
	fd   *os.File
	size int64

	isAsync  bool
	interval time.Duration
	bufChan  chan *bytes.Buffer
	ntfChan  chan chan struct{}
	quit     chan struct{}
	done     chan struct{}
	batch    *bytes.Buffer
	pool     sync.Pool
	closed   bool
}

// NewFileAppender opens cfg.Path for appending, creating parent directories.
func NewFileAppender(cfg *LogCfg) (*FileAppender, error) {
	a := &FileAppender{
		path:    cfg.Path,
		splitMB: cfg.SplitMB,
		isAsync: cfg.IsAsync,
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	if a.isAsync {
		a.interval = time.Duration(cfg.AsyncWriteMillSec) * time.Millisecond
		if a.interval <= 0 {
			a.interval = 200 * time.Millisecond
		}
		size := cfg.AsyncCacheSize
		if size <= 0 {
			size = 1024
		}
		a.pool.New = func() any { return &bytes.Buffer{} }
		a.batch = bytes.NewBuffer(make([]byte, 0, _asyncBytesPerWrite))
		a.bufChan = make(chan *bytes.Buffer, size)
		a.ntfChan = make(chan chan struct{})
		a.quit = make(chan struct{})
		a.done = make(chan struct{})
		go a.asyncWriteLoop()
	}
	return a, nil
}

func (a *FileAppender) open() error {
	if err := os.MkdirAll(filepath.Dir(a.path), _dirMode); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	fd, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, _fileMode)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	a.fd = fd
	a.size = st.Size()
	return nil
}

// rotate renames the current file with a timestamp suffix and opens a new one.
func (a *FileAppender) rotate() error {
	if err := a.fd.Close(); err != nil {
		return err
	}
	a.fd = nil
	backup := a.path + "." + time.Now().Format("20060102-150405.000")
	if err := os.Rename(a.path, backup); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return a.open()
}

func (a *FileAppender) Write(buf []byte) (int, error) {
	if a.isAsync {
		b := a.pool.Get().(*bytes.Buffer)
		b.Reset()
		b.Write(buf)
		a.bufChan <- b
		return len(buf), nil
	}
	return a.writeSync(buf)
}

func (a *FileAppender) writeSync(buf []byte) (int, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.fd == nil {
		return 0, os.ErrClosed
	}
	if a.splitMB > 0 && a.size > 0 && a.size+int64(len(buf)) > int64(a.splitMB)<<20 {
		if err := a.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := a.fd.Write(buf)
	a.size += int64(n)
	return n, err
}

// Refresh waits for queued lines to be written and syncs the file.
func (a *FileAppender) Refresh() error {
	if a.isAsync {
		ack := make(chan struct{})
		select {
		case a.ntfChan <- ack:
			<-ack
		case <-a.done:
		}
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fd == nil {
		return nil
	}
	return a.fd.Sync()
}

// Close flushes pending lines and closes the file. It is idempotent.
func (a *FileAppender) Close() error {
	if a.isAsync {
		a.lock.Lock()
		closed := a.closed
		a.closed = true
		a.lock.Unlock()
		if !closed {
			close(a.quit)
			<-a.done
		}
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fd == nil {
		return nil
	}
	err := a.fd.Close()
	a.fd = nil
	return err
}

// drain moves every queued line into the batch buffer and writes it out.
func (a *FileAppender) drain() {
	for {
		select {
		case b := <-a.bufChan:
			if a.batch.Len()+b.Len() > _asyncBytesPerWrite {
				_, _ = a.writeSync(a.batch.Bytes())
				a.batch.Reset()
			}
			a.batch.Write(b.Bytes())
			a.pool.Put(b)
		default:
			if a.batch.Len() > 0 {
				_, _ = a.writeSync(a.batch.Bytes())
				a.batch.Reset()
			}
			return
		}
	}
}

func (a *FileAppender) asyncWriteLoop() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case ack := <-a.ntfChan:
			a.drain()
			close(ack)
		case <-a.quit:
			a.drain()
			return
		case <-ticker.C:
			a.drain()
		}
	}
}
