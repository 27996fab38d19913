package setup

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestBuildFileSinkWritesJSONLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "app.log")
	cfg := Config{
		Level:   "debug",
		Console: ConsoleConfig{Enabled: boolPtr(false)},
		File:    FileConfig{Enabled: true, Path: logPath},
	}

	p, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p.Logger().Info("hello", "answer", 42)
	p.Logger().Debug("fine detail")
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	var lines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		lines++
		if lines == 1 {
			if rec["msg"] != "hello" || rec["answer"] != float64(42) {
				t.Fatalf("unexpected first record: %v", rec)
			}
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 records, got %d", lines)
	}
}

func TestBuildConsoleBufferFlushesOnClose(t *testing.T) {
	var out bytes.Buffer
	cfg := Config{
		Console: ConsoleConfig{BufferLines: 100},
	}
	p, err := Build(cfg, Options{ConsoleOut: &out})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p.Logger().Info("buffered line")
	if out.Len() != 0 {
		t.Fatalf("expected output held in buffer, got %q", out.String())
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.Contains(out.String(), "buffered line") {
		t.Fatalf("flush on close missing line: %q", out.String())
	}
}

func TestBuildBadTelegramConfigFails(t *testing.T) {
	cfg := Config{
		Console: ConsoleConfig{Enabled: boolPtr(false)},
		Telegram: TelegramConfig{
			Enabled:      true,
			Token:        "tok",
			Destinations: map[string]any{"bad": true},
		},
	}
	if _, err := Build(cfg, Options{}); err == nil {
		t.Fatal("expected error for unsupported destinations type")
	}
}

func TestApplyKeepsOldSinksOnError(t *testing.T) {
	var out bytes.Buffer
	p, err := Build(Config{}, Options{ConsoleOut: &out})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer p.Close()

	bad := Config{
		Console: ConsoleConfig{Enabled: boolPtr(false)},
		Telegram: TelegramConfig{
			Enabled:       true,
			Token:         "tok",
			Destinations:  "100",
			CheckInterval: "never",
		},
	}
	if err := p.Apply(bad); err == nil {
		t.Fatal("expected apply error for bad duration")
	}
	p.Logger().Info("still alive")
	if !strings.Contains(out.String(), "still alive") {
		t.Fatalf("old console sink should still receive records: %q", out.String())
	}
}

func TestApplySwapsLevel(t *testing.T) {
	var out bytes.Buffer
	p, err := Build(Config{Level: "error"}, Options{ConsoleOut: &out})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer p.Close()

	p.Logger().Info("dropped")
	if out.Len() != 0 {
		t.Fatalf("info should be below error level: %q", out.String())
	}
	if err := p.Apply(Config{Level: "debug"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	p.Logger().Info("kept")
	if !strings.Contains(out.String(), "kept") {
		t.Fatalf("reloaded level not in effect: %q", out.String())
	}
}

func TestJournalVarName(t *testing.T) {
	cases := map[string]string{
		"user.id":   "USER_ID",
		"_private":  "PRIVATE",
		"Spaces x":  "SPACESX",
		"req-count": "REQ_COUNT",
	}
	for in, want := range cases {
		if got := journalVarName(in); got != want {
			t.Errorf("journalVarName(%q) = %q, want %q", in, got, want)
		}
	}
}
