package storage

// Package storage persists the daemon's delivery journal: one record per
// notification delivery outcome, plus aggregate summaries for the heartbeat.
