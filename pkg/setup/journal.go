package setup

import (
	"context"
	"log/slog"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// journalHandler forwards records to the systemd journal. On hosts without a
// journal socket it degrades to a no-op.
type journalHandler struct {
	level slog.Level
}

func newJournalHandler(level slog.Level) slog.Handler {
	return &journalHandler{level: level}
}

func (j *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= j.level && journal.Enabled()
}

func (j *journalHandler) Handle(_ context.Context, r slog.Record) error {
	vars := map[string]string{}
	r.Attrs(func(a slog.Attr) bool {
		if k := journalVarName(a.Key); k != "" {
			vars[k] = a.Value.String()
		}
		return true
	})
	return journal.Send(r.Message, journalPriority(r.Level), vars)
}

func (j *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return j }
func (j *journalHandler) WithGroup(name string) slog.Handler       { return j }

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalVarName maps an attr key to a journal field name. The journal only
// accepts uppercase ASCII letters, digits and underscores, and the name must
// not start with an underscore.
func journalVarName(key string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(key) {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '_', c == '.', c == '-':
			b.WriteByte('_')
		}
	}
	s := strings.TrimLeft(b.String(), "_")
	return s
}
