package setup

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"relaylog/pkg/logx"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads path into the pipeline whenever it changes. Editors commonly
// replace files via rename, so the parent directory is watched and events are
// matched by basename. Blocks until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	diag := p.opts.Diag

	var lastHash uint64
	if b, err := os.ReadFile(path); err == nil {
		lastHash = hashBytes(b)
	}

	// debounce to avoid partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			diag.Warn("config read failed", logx.String("path", path), logx.Err(err))
			return
		}
		h := hashBytes(raw)
		if h == lastHash {
			return
		}
		cfg, err := parse(path, raw)
		if err != nil {
			diag.Warn("config parse failed", logx.String("path", path), logx.Err(err))
			return
		}
		if err := p.Apply(cfg); err != nil {
			// Previous sinks stay in place on a bad reload.
			diag.Warn("config rejected", logx.String("path", path), logx.Err(err))
			return
		}
		lastHash = h
		diag.Info("config reloaded", logx.String("path", path))
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, reload)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	diag.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				diag.Warn("config watch error", logx.String("dir", dir), logx.Err(err))
			}
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
