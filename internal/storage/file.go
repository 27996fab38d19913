package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"relaylog/pkg/logx"
)

// fileStore is a dependency-free journal backend: an append-only JSON Lines
// file plus in-memory outcome counters rebuilt from it on open.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File

	// deliveries since open (or replay), newest last, pruned lazily.
	recent []deliveryRecord
}

type deliveryRecord struct {
	At       int64  `json:"at"` // unix milli
	Dest     string `json:"dest"`
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

// retention bound for the in-memory summary window.
const fileRetention = 24 * time.Hour

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	recent, err := replayJournal(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("delivery journal replay failed", logx.String("path", path), logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, file: f, recent: recent}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	rec := deliveryRecord{
		At:       e.At.UnixMilli(),
		Dest:     e.Dest,
		ChatID:   e.ChatID,
		ThreadID: e.ThreadID,
		Outcome:  e.Outcome,
		Error:    e.Error,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("delivery journal closed")
	}
	if err := json.NewEncoder(s.file).Encode(rec); err != nil {
		return err
	}
	s.recent = append(s.recent, rec)
	s.pruneLocked()
	return nil
}

func (s *fileStore) SummarizeSince(ctx context.Context, since time.Time) (Summary, error) {
	_ = ctx
	cutoff := since.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	var sum Summary
	for _, r := range s.recent {
		if r.At < cutoff {
			continue
		}
		switch r.Outcome {
		case "sent":
			sum.Sent++
		case "dropped":
			sum.Dropped++
		case "retry":
			sum.Retried++
		case "deduped":
			sum.Deduped++
		}
	}
	return sum, nil
}

func (s *fileStore) pruneLocked() {
	cutoff := time.Now().Add(-fileRetention).UnixMilli()
	i := 0
	for i < len(s.recent) && s.recent[i].At < cutoff {
		i++
	}
	if i > 0 {
		s.recent = append([]deliveryRecord(nil), s.recent[i:]...)
	}
}

func replayJournal(path string) ([]deliveryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cutoff := time.Now().Add(-fileRetention).UnixMilli()
	var out []deliveryRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r deliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.At < cutoff {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
