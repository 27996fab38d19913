// Package logx is relaylog's internal diagnostics logger.
//
// It is a small wrapper (logx.Logger) on top of zerolog. Sinks receive a
// Logger by injection; the zero value is a no-op, so diagnostics are strictly
// opt-in and the delivery path never depends on a global logger.
package logx
