package setup

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is the on-disk logging configuration (JSON or YAML). Unknown fields
// are rejected at load time so typos fail fast.
type Config struct {
	// Level is the root log level: debug, info, warn or error.
	Level string `json:"level,omitempty"`

	Console  ConsoleConfig  `json:"console,omitempty"`
	File     FileConfig     `json:"file,omitempty"`
	Journal  JournalConfig  `json:"journal,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`

	// Heartbeat is a cron spec for relaylogd's periodic status line
	// (empty disables it).
	Heartbeat string `json:"heartbeat,omitempty"`

	// Storage configures relaylogd's delivery journal.
	Storage StorageConfig `json:"storage,omitempty"`
}

// ConsoleConfig drives the stdout sink. When either buffer knob is set the
// stream is wrapped in a count/time buffered writer.
type ConsoleConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"` // default true
	BufferLines int    `json:"buffer_lines,omitempty"`
	BufferTime  string `json:"buffer_time,omitempty"` // duration, e.g. "200ms"
}

func (c ConsoleConfig) enabled() bool { return c.Enabled == nil || *c.Enabled }

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type JournalConfig struct {
	Enabled bool `json:"enabled,omitempty"`
}

type TelegramConfig struct {
	Enabled bool `json:"enabled,omitempty"`

	Token       string `json:"token,omitempty"`
	EnvTokenKey string `json:"env_token_key,omitempty"`

	// Destinations accepts a semicolon-separated string, a single numeric
	// id, or a list of those.
	Destinations       any    `json:"destinations,omitempty"`
	EnvDestinationsKey string `json:"env_destinations_key,omitempty"`

	CheckInterval    string `json:"check_interval,omitempty"`    // duration, default 600s
	GroupingInterval string `json:"grouping_interval,omitempty"` // duration, default 0
	CacheSize        int    `json:"cache_size,omitempty"`
	MinLevel         string `json:"min_level,omitempty"` // default warn
	RatePerSec       int    `json:"rate_per_sec,omitempty"`
	Debug            bool   `json:"debug,omitempty"`
}

type StorageConfig struct {
	// Driver: "" or "none" disables, "file" appends jsonl, "sqlite" needs
	// the sqlite build tag.
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

func parseDuration(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

func parseSlogLevel(s string, def slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return def
	}
}
