// Package bufsink provides a count/time buffered line writer.
//
// Writer accumulates rendered log lines and writes them to the underlying
// stream in one call once a line-count threshold is reached or a flush timer
// elapses. Batching only reduces write syscalls; output order is emit order.
package bufsink

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"relaylog/pkg/logx"
)

var (
	// ErrNoFlushTrigger is returned by New when neither BufferTime nor
	// BufferLines is set; such a writer would hold lines forever.
	ErrNoFlushTrigger = errors.New("bufsink: at least one of BufferTime or BufferLines must be set")

	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("bufsink: writer closed")
)

type Options struct {
	// BufferTime flushes pending lines every interval (0 disables the timer).
	BufferTime time.Duration
	// BufferLines flushes once this many lines are pending (0 disables).
	BufferLines int
	// Debug emits a diagnostic trace line per flush.
	Debug bool
	// Diag receives internal diagnostics. Zero value is silent.
	Diag logx.Logger
}

// Writer is a buffered line sink. Each Write call is treated as one line
// (a single trailing newline is trimmed). Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	buf []string

	bufferTime  time.Duration
	bufferLines int
	debug       bool
	diag        logx.Logger

	stop     chan struct{}
	stopOnce sync.Once
	closed   bool
}

// New creates a buffered Writer over out (stderr when out is nil).
// The background flush timer runs only when BufferTime > 0.
func New(out io.Writer, opts Options) (*Writer, error) {
	if opts.BufferTime <= 0 && opts.BufferLines <= 0 {
		return nil, ErrNoFlushTrigger
	}
	if out == nil {
		out = os.Stderr
	}
	w := &Writer{
		out:         out,
		bufferTime:  opts.BufferTime,
		bufferLines: opts.BufferLines,
		debug:       opts.Debug,
		diag:        opts.Diag,
		stop:        make(chan struct{}),
	}
	if w.bufferTime > 0 {
		go w.watcher()
	}
	return w, nil
}

// Write buffers one line; it flushes synchronously when the configured line
// threshold is reached.
func (w *Writer) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, line)
	if w.bufferLines > 0 && len(w.buf) >= w.bufferLines {
		if err := w.export(); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes any pending lines out immediately.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	return w.export()
}

// Close stops the flush timer and writes out any pending lines. Idempotent.
func (w *Writer) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.buf) == 0 {
		return nil
	}
	return w.export()
}

// export writes the whole buffer in a single call and clears it.
// Callers must hold w.mu.
func (w *Writer) export() error {
	n := len(w.buf)
	msg := strings.Join(w.buf, "\n") + "\n"
	w.buf = w.buf[:0]

	_, err := io.WriteString(w.out, msg)
	if err == nil {
		err = flushStream(w.out)
	}
	if w.debug {
		w.diag.Debug("bufsink flush", logx.Int("lines", n), logx.Err(err))
	}
	return err
}

// flushStream pushes buffered data down if the stream offers a way to.
func flushStream(out io.Writer) error {
	switch s := out.(type) {
	case interface{ Flush() error }:
		return s.Flush()
	case interface{ Sync() error }:
		return s.Sync()
	}
	return nil
}

// watcher periodically flushes a non-empty buffer. It sleeps first, then
// checks the stop flag, so Close latency is at most one BufferTime.
func (w *Writer) watcher() {
	if w.debug {
		w.diag.Debug("bufsink watcher started", logx.Duration("interval", w.bufferTime))
	}
	for {
		select {
		case <-w.stop:
			return
		case <-time.After(w.bufferTime):
		}

		w.mu.Lock()
		if !w.closed && len(w.buf) > 0 {
			_ = w.export()
		}
		w.mu.Unlock()
	}
}
