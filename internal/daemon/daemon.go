// Package daemon wires the logging pipeline, delivery journal and heartbeat
// into the relaylogd process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"relaylog/internal/storage"
	"relaylog/pkg/eventbus"
	"relaylog/pkg/logx"
	"relaylog/pkg/setup"
	"relaylog/pkg/tgsink"
)

type App struct {
	cfgPath string
	diag    logx.Logger
	bus     eventbus.Bus

	pipeline *setup.Pipeline
	store    storage.Store
	cron     *cron.Cron
	started  time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewApp loads cfgPath and builds the pipeline. Nothing runs until Start.
func NewApp(cfgPath, diagLevel string) (*App, error) {
	cfg, err := setup.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &App{
		cfgPath: cfgPath,
		diag:    logx.NewConsoleTo(os.Stderr, diagLevel),
		bus:     eventbus.New(),
	}

	a.pipeline, err = setup.Build(cfg, setup.Options{Diag: a.diag, Bus: a.bus})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	a.store, err = storage.Open(storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}, a.diag)
	if err != nil {
		_ = a.pipeline.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return a, nil
}

// Start launches the config watcher, journal consumer and heartbeat.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("already started")
	}
	a.started = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.pipeline.Watch(runCtx, a.cfgPath); err != nil {
			a.diag.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsub()
			a.consumeDeliveries(runCtx, events)
		}()
	}

	if spec := a.pipeline.Config().Heartbeat; spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, a.heartbeat); err != nil {
			cancel()
			a.cancel = nil
			return fmt.Errorf("heartbeat spec %q: %w", spec, err)
		}
		c.Start()
		a.cron = c
	}

	go func() {
		wg.Wait()
		close(a.done)
	}()

	// No-op outside a systemd unit.
	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyReady)
	a.diag.Info("relaylogd started", logx.String("config", a.cfgPath))
	return nil
}

// Stop flushes pending notifications and shuts everything down.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	err := a.pipeline.Close()
	if a.store != nil {
		if cerr := a.store.Close(); err == nil {
			err = cerr
		}
	}
	a.diag.Info("relaylogd stopped")
	return err
}

// Logger returns the pipeline's root logger.
func (a *App) Logger() *slog.Logger { return a.pipeline.Logger() }

func (a *App) consumeDeliveries(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			de, ok := ev.Data.(tgsink.DeliveryEvent)
			if !ok {
				continue
			}
			outcome, ok := outcomeFromEventType(ev.Type)
			if !ok {
				continue
			}
			err := a.store.AppendDelivery(ctx, storage.DeliveryEntry{
				At:       de.At,
				Dest:     de.Dest,
				ChatID:   de.ChatID,
				ThreadID: de.ThreadID,
				Outcome:  outcome,
				Error:    de.Error,
			})
			if err != nil {
				a.diag.Warn("delivery journal append failed", logx.Err(err))
			}
		}
	}
}

func outcomeFromEventType(typ string) (string, bool) {
	switch typ {
	case "tgsink.sent":
		return "sent", true
	case "tgsink.dropped":
		return "dropped", true
	case "tgsink.retry":
		return "retry", true
	case "tgsink.deduped":
		return "deduped", true
	default:
		return "", false
	}
}

func (a *App) heartbeat() {
	log := a.pipeline.Logger()
	if a.store == nil {
		log.Info("heartbeat", "uptime", time.Since(a.started).Round(time.Second).String())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := a.store.SummarizeSince(ctx, a.started)
	if err != nil {
		a.diag.Warn("heartbeat summary failed", logx.Err(err))
		return
	}
	log.Info("heartbeat",
		"uptime", time.Since(a.started).Round(time.Second).String(),
		"sent", sum.Sent,
		"dropped", sum.Dropped,
		"retried", sum.Retried,
		"deduped", sum.Deduped,
	)
}
