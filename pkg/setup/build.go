package setup

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"relaylog/pkg/bufsink"
	"relaylog/pkg/eventbus"
	"relaylog/pkg/logx"
	"relaylog/pkg/tgsink"
)

// Options carries the cross-cutting collaborators handed to every sink.
type Options struct {
	// Diag receives the sinks' internal diagnostics. Zero value is silent.
	Diag logx.Logger
	// Bus, when set, receives delivery lifecycle events from the Telegram
	// sink.
	Bus eventbus.Bus
	// ConsoleOut overrides the console stream (default os.Stdout).
	ConsoleOut io.Writer
}

// Pipeline owns the built sinks behind a hot-swappable handler, so a config
// reload replaces sinks without invalidating handed-out loggers.
type Pipeline struct {
	opts   Options
	atomic *atomicHandler
	logger *slog.Logger

	mu       sync.Mutex
	closers  []io.Closer
	telegram *tgsink.Sink
	cfg      Config
	closed   bool
}

// Build constructs the configured sinks and returns the owning Pipeline.
func Build(cfg Config, opts Options) (*Pipeline, error) {
	p := &Pipeline{opts: opts, atomic: &atomicHandler{}}
	p.logger = slog.New(p.atomic)
	if err := p.Apply(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// Logger returns the root logger. It stays valid across Apply calls.
func (p *Pipeline) Logger() *slog.Logger { return p.logger }

// Telegram returns the current Telegram sink, or nil when disabled.
func (p *Pipeline) Telegram() *tgsink.Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.telegram
}

// Config returns the last applied configuration.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Apply builds sinks for cfg, swaps them in atomically and closes the
// replaced ones. On error the previous sinks stay in place.
func (p *Pipeline) Apply(cfg Config) error {
	h, closers, tele, err := p.buildHandlers(cfg)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return err
	}

	p.mu.Lock()
	old := p.closers
	oldTele := p.telegram
	p.closers = closers
	p.telegram = tele
	p.cfg = cfg
	p.mu.Unlock()

	p.atomic.swap(h)

	if oldTele != nil {
		oldTele.Flush()
	}
	for _, c := range old {
		_ = c.Close()
	}
	return nil
}

// Close flushes and closes every sink. The pipeline logger becomes a no-op.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	closers := p.closers
	tele := p.telegram
	p.closers = nil
	p.telegram = nil
	p.mu.Unlock()

	p.atomic.swap(nil)

	if tele != nil {
		tele.Flush()
	}
	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *Pipeline) buildHandlers(cfg Config) (slog.Handler, []io.Closer, *tgsink.Sink, error) {
	level := parseSlogLevel(cfg.Level, slog.LevelInfo)
	hopts := &slog.HandlerOptions{Level: level}

	var (
		handlers []slog.Handler
		closers  []io.Closer
		tele     *tgsink.Sink
	)

	if cfg.Console.enabled() {
		out := p.opts.ConsoleOut
		if out == nil {
			out = os.Stdout
		}
		bufTime, err := parseDuration("console.buffer_time", cfg.Console.BufferTime)
		if err != nil {
			return nil, closers, nil, err
		}
		if bufTime > 0 || cfg.Console.BufferLines > 0 {
			bw, err := bufsink.New(out, bufsink.Options{
				BufferTime:  bufTime,
				BufferLines: cfg.Console.BufferLines,
				Diag:        p.opts.Diag,
			})
			if err != nil {
				return nil, closers, nil, err
			}
			closers = append(closers, bw)
			out = bw
		}
		handlers = append(handlers, slog.NewTextHandler(out, hopts))
	}

	if cfg.File.Enabled && cfg.File.Path != "" {
		// Parents are created so a fresh deployment can point at a log
		// directory that does not exist yet.
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, closers, nil, err
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, closers, nil, err
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, hopts))
	}

	if cfg.Journal.Enabled {
		handlers = append(handlers, newJournalHandler(level))
	}

	if cfg.Telegram.Enabled {
		checkInterval, err := parseDuration("telegram.check_interval", cfg.Telegram.CheckInterval)
		if err != nil {
			return nil, closers, nil, err
		}
		groupingInterval, err := parseDuration("telegram.grouping_interval", cfg.Telegram.GroupingInterval)
		if err != nil {
			return nil, closers, nil, err
		}
		tele, err = tgsink.New(tgsink.Options{
			Token:              cfg.Telegram.Token,
			EnvTokenKey:        cfg.Telegram.EnvTokenKey,
			Destinations:       cfg.Telegram.Destinations,
			EnvDestinationsKey: cfg.Telegram.EnvDestinationsKey,
			CheckInterval:      checkInterval,
			GroupingInterval:   groupingInterval,
			CacheSize:          cfg.Telegram.CacheSize,
			MinLevel:           parseSlogLevel(cfg.Telegram.MinLevel, slog.LevelWarn),
			RatePerSec:         cfg.Telegram.RatePerSec,
			Debug:              cfg.Telegram.Debug,
			Diag:               p.opts.Diag,
			Bus:                p.opts.Bus,
		})
		if err != nil {
			return nil, closers, nil, err
		}
		closers = append(closers, tele)
		handlers = append(handlers, tele)
	}

	if len(handlers) == 0 {
		out := p.opts.ConsoleOut
		if out == nil {
			out = os.Stdout
		}
		handlers = append(handlers, slog.NewTextHandler(out, hopts))
	}

	return fanout(handlers...), closers, tele, nil
}

// ---- Atomic handler (hot swap without replacing the slog.Logger) ----

type atomicHandler struct {
	mu sync.RWMutex
	h  slog.Handler
}

func (a *atomicHandler) swap(h slog.Handler) {
	a.mu.Lock()
	a.h = h
	a.mu.Unlock()
}

func (a *atomicHandler) cur() slog.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.h
}

func (a *atomicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h := a.cur()
	return h != nil && h.Enabled(ctx, level)
}

func (a *atomicHandler) Handle(ctx context.Context, r slog.Record) error {
	h := a.cur()
	if h == nil {
		return nil
	}
	return h.Handle(ctx, r)
}

func (a *atomicHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return a }
func (a *atomicHandler) WithGroup(name string) slog.Handler       { return a }

// ---- Fanout ----

type multiHandler struct{ hs []slog.Handler }

func fanout(h ...slog.Handler) slog.Handler { return &multiHandler{hs: h} }

func (f *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.hs {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r)
		}
	}
	return nil
}

func (f *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return f }
func (f *multiHandler) WithGroup(name string) slog.Handler       { return f }
