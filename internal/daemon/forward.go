package daemon

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// ForwardLines reads r line by line and emits each non-empty line through the
// pipeline logger, so piped program output flows into every configured sink.
// A leading "DEBUG:", "INFO:", "WARN:" or "ERROR:" token selects the record
// level; anything else uses def. Returns when r is exhausted or ctx ends.
func (a *App) ForwardLines(ctx context.Context, r io.Reader, def slog.Level) error {
	log := a.pipeline.Logger()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		level, msg := splitLevelPrefix(line, def)
		log.Log(ctx, level, msg)
	}
	return sc.Err()
}

func splitLevelPrefix(line string, def slog.Level) (slog.Level, string) {
	head, rest, ok := strings.Cut(line, ":")
	if !ok {
		return def, line
	}
	var level slog.Level
	switch strings.ToUpper(strings.TrimSpace(head)) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		return def, line
	}
	return level, strings.TrimSpace(rest)
}
