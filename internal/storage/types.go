package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the delivery journal.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records one delivery attempt outcome for a destination.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At       time.Time
	Dest     string
	ChatID   string
	ThreadID string
	Outcome  string // sent, dropped, retry, deduped
	Error    string
}

// Summary aggregates journal outcomes since a point in time.
type Summary struct {
	Sent    int64
	Dropped int64
	Retried int64
	Deduped int64
}
