package bufsink

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingWriter captures each underlying Write call.
type recordingWriter struct {
	mu     sync.Mutex
	writes []string
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	r.writes = append(r.writes, string(p))
	r.mu.Unlock()
	return len(p), nil
}

func (r *recordingWriter) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func TestNewRequiresFlushTrigger(t *testing.T) {
	if _, err := New(&recordingWriter{}, Options{}); err != ErrNoFlushTrigger {
		t.Fatalf("expected ErrNoFlushTrigger, got %v", err)
	}
}

func TestLineThresholdFlush(t *testing.T) {
	out := &recordingWriter{}
	w, err := New(out, Options{BufferLines: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if got := out.snapshot(); len(got) != 0 {
		t.Fatalf("partial flush before threshold: %q", got)
	}

	if _, err := w.Write([]byte("last\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := out.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(got))
	}
	want := "line\nline\nline\nline\nlast\n"
	if got[0] != want {
		t.Fatalf("flush content = %q, want %q", got[0], want)
	}
}

func TestTimerFlush(t *testing.T) {
	out := &recordingWriter{}
	w, err := New(out, Options{BufferTime: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	_, _ = w.Write([]byte("a\n"))
	_, _ = w.Write([]byte("b\n"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if got := out.snapshot(); len(got) > 0 {
			if len(got) != 1 {
				t.Fatalf("expected one timer flush, got %d", len(got))
			}
			if got[0] != "a\nb\n" {
				t.Fatalf("flush content = %q", got[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timer flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	out := &recordingWriter{}
	w, err := New(out, Options{BufferLines: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _ = w.Write([]byte("x\n"))
	_, _ = w.Write([]byte("y\n"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := out.snapshot()
	if len(got) != 1 || got[0] != "x\ny\n" {
		t.Fatalf("close flush = %q", got)
	}

	if _, err := w.Write([]byte("late\n")); err != ErrClosed {
		t.Fatalf("Write after Close: err = %v, want ErrClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConcurrentWritersKeepLineIntegrity(t *testing.T) {
	out := &recordingWriter{}
	w, err := New(out, Options{BufferLines: 10, BufferTime: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	const writers, perWriter = 4, 50
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, _ = w.Write([]byte("entry\n"))
			}
		}()
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	total := 0
	for _, chunk := range out.snapshot() {
		for _, ln := range strings.Split(strings.TrimSuffix(chunk, "\n"), "\n") {
			if ln != "entry" {
				t.Fatalf("corrupted line %q", ln)
			}
			total++
		}
	}
	if total != writers*perWriter {
		t.Fatalf("lines flushed = %d, want %d", total, writers*perWriter)
	}
}
