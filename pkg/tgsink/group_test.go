package tgsink

import (
	"log/slog"
	"testing"
	"time"
)

func rawAt(msg string, at time.Time) entry {
	return entry{rec: &pending{msg: msg, level: slog.LevelInfo, time: at}}
}

func newGroupingSink(t *testing.T, interval time.Duration) *Sink {
	t.Helper()
	s, err := New(Options{
		Token:            "TESTTOKEN",
		Destinations:     "100",
		GroupingInterval: interval,
		CheckInterval:    time.Hour,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGroupingMergesWindow(t *testing.T) {
	s := newGroupingSink(t, 10*time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	q := s.dests[0].cache
	q.push(rawAt("a", t0))
	q.push(rawAt("b", t0.Add(3*time.Second)))
	q.push(rawAt("c", t0.Add(9*time.Second)))
	q.push(rawAt("d", t0.Add(15*time.Second)))

	s.mu.Lock()
	s.groupMessages()
	s.mu.Unlock()

	got := q.drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %d: %v", len(got), got)
	}
	if got[0].win != t0.Unix() || got[0].text != "[INFO] a\n[INFO] b\n[INFO] c" {
		t.Fatalf("first bucket = (%d, %q)", got[0].win, got[0].text)
	}
	if got[1].win != t0.Add(15*time.Second).Unix() || got[1].text != "[INFO] d" {
		t.Fatalf("second bucket = (%d, %q)", got[1].win, got[1].text)
	}
}

func TestGroupingBoundaryStartsNewBucket(t *testing.T) {
	s := newGroupingSink(t, 10*time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	q := s.dests[0].cache
	q.push(rawAt("a", t0))
	// Exactly interval seconds later: just outside [t0, t0+10).
	q.push(rawAt("b", t0.Add(10*time.Second)))

	s.mu.Lock()
	s.groupMessages()
	s.mu.Unlock()

	got := q.drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(got))
	}
}

func TestGroupingCarriesGroupedEntriesUnchanged(t *testing.T) {
	s := newGroupingSink(t, 10*time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	q := s.dests[0].cache
	q.push(entry{win: t0.Unix() - 60, text: "[INFO] old-1\n[INFO] old-2"})
	q.push(rawAt("new", t0))

	s.mu.Lock()
	s.groupMessages()
	s.mu.Unlock()

	got := q.drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].text != "[INFO] old-1\n[INFO] old-2" || got[0].win != t0.Unix()-60 {
		t.Fatalf("carried entry changed: (%d, %q)", got[0].win, got[0].text)
	}
	if got[1].text != "[INFO] new" {
		t.Fatalf("new bucket = %q", got[1].text)
	}
}
