package setup

import (
	"log/slog"
	"runtime/debug"
)

// CapturePanic logs a panic with its stack trace before re-raising it, so
// crashes reach every configured sink. Use it as a deferred call at the top
// of goroutines whose death would otherwise be silent:
//
//	defer setup.CapturePanic(log)
func CapturePanic(log *slog.Logger) {
	r := recover()
	if r == nil {
		return
	}
	if log != nil {
		log.Error("uncaught panic",
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())),
		)
	}
	panic(r)
}
