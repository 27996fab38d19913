package tgsink

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

// DestKey is the attribute key carrying a destination hint. A record with
// dest="ops" is routed only to the destination whose label prefix is "ops";
// records without a hint are broadcast to every destination.
const DestKey = "dest"

// pending is a log record held in a destination cache until delivered.
// It is immutable once enqueued; annotation produces a copy.
type pending struct {
	msg   string
	level slog.Level
	time  time.Time

	file string
	line int
	fn   string

	attrs []slog.Attr

	dest   string // destination hint, "" = broadcast
	remark string // appended at render time
}

func newPending(r slog.Record) *pending {
	p := &pending{msg: r.Message, level: r.Level, time: r.Time}
	if r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		p.file, p.line, p.fn = f.File, f.Line, f.Function
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == DestKey {
			p.dest = a.Value.Resolve().String()
			return true
		}
		p.attrs = append(p.attrs, slog.Attr{Key: a.Key, Value: a.Value.Resolve()})
		return true
	})
	return p
}

func (p *pending) clone() *pending {
	cp := *p
	cp.attrs = append([]slog.Attr(nil), p.attrs...)
	return &cp
}

// equal reports whether two records are duplicates: identical message, level,
// source location and attributes. Timestamps are deliberately excluded.
func (p *pending) equal(q *pending) bool {
	if p == nil || q == nil {
		return false
	}
	if p.msg != q.msg || p.level != q.level ||
		p.file != q.file || p.line != q.line || p.fn != q.fn {
		return false
	}
	if len(p.attrs) != len(q.attrs) {
		return false
	}
	for i := range p.attrs {
		if !p.attrs[i].Equal(q.attrs[i]) {
			return false
		}
	}
	return true
}

// render produces the outbound message text: level tag, message, one line per
// attribute, then any repeat remark. URL escaping happens at request build.
func (p *pending) render() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(p.level.String())
	b.WriteString("] ")
	b.WriteString(p.msg)
	for _, a := range p.attrs {
		b.WriteString("\n- ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
	}
	b.WriteString(p.remark)
	return b.String()
}

func repeatRemark(n int) string {
	return fmt.Sprintf("\n (Message repeated %d times)", n)
}
