// relaylogd tails stdin and fans each line out through the configured log
// sinks: console, file, systemd journal and Telegram.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"relaylog/internal/daemon"
	"relaylog/pkg/setup"
)

func main() {
	var (
		cfgPath    string
		diagLevel  string
		stdinLevel string
	)
	flag.StringVar(&cfgPath, "config", "./relaylog.yaml", "path to config file (json or yaml)")
	flag.StringVar(&diagLevel, "diag-level", "warn", "internal diagnostics level on stderr")
	flag.StringVar(&stdinLevel, "stdin-level", "info", "default level for forwarded stdin lines")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := daemon.NewApp(cfgPath, diagLevel)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	defer setup.CapturePanic(app.Logger())

	go func() {
		// stdin EOF means the feeding process is done; shut down cleanly.
		if err := app.ForwardLines(ctx, os.Stdin, forwardLevel(stdinLevel)); err != nil && ctx.Err() == nil {
			app.Logger().Warn("stdin forwarding stopped", slog.Any("err", err))
		}
		cancel()
	}()

	<-ctx.Done()
	_ = app.Stop(context.Background())
}

func forwardLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
