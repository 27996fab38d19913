package setup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJSONAndYAMLAgree(t *testing.T) {
	jsonPath := writeFile(t, "log.json", `{
  "level": "debug",
  "console": {"buffer_lines": 5, "buffer_time": "200ms"},
  "file": {"enabled": true, "path": "/tmp/app.log"},
  "telegram": {
    "enabled": true,
    "token": "tok",
    "destinations": "100;ops:200@7",
    "check_interval": "600s",
    "min_level": "error"
  }
}`)
	yamlPath := writeFile(t, "log.yaml", `
level: debug
console:
  buffer_lines: 5
  buffer_time: 200ms
file:
  enabled: true
  path: /tmp/app.log
telegram:
  enabled: true
  token: tok
  destinations: "100;ops:200@7"
  check_interval: 600s
  min_level: error
`)

	a, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	b, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	if a.Level != b.Level || a.Console != b.Console || a.File != b.File {
		t.Fatalf("json and yaml configs differ:\n%+v\n%+v", a, b)
	}
	if a.Telegram.Token != b.Telegram.Token ||
		a.Telegram.CheckInterval != b.Telegram.CheckInterval ||
		a.Telegram.MinLevel != b.Telegram.MinLevel {
		t.Fatalf("telegram sections differ:\n%+v\n%+v", a.Telegram, b.Telegram)
	}
	if a.Telegram.Destinations != "100;ops:200@7" {
		t.Fatalf("destinations = %v", a.Telegram.Destinations)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "log.json", `{"level": "info", "consoel": {}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	path := writeFile(t, "log.json", `{"level": "info"} {"level": "debug"}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadYAMLListDestinations(t *testing.T) {
	path := writeFile(t, "log.yaml", `
telegram:
  enabled: true
  destinations:
    - 100
    - ops:200@7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	list, ok := cfg.Telegram.Destinations.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("destinations = %#v", cfg.Telegram.Destinations)
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("f", " 250ms ")
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := parseDuration("f", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := parseDuration("f", "soon"); err == nil || !strings.Contains(err.Error(), "f:") {
		t.Fatalf("expected field-tagged error, got %v", err)
	}
	if _, err := parseDuration("f", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
