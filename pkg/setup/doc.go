// Package setup turns a JSON or YAML config file into a wired slog pipeline:
// console (optionally line/time buffered), JSON file, systemd journal and
// Telegram sinks behind a single hot-swappable handler. Reloading via Watch
// or Apply replaces sinks without invalidating loggers already handed out.
package setup
