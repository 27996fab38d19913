package tgsink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"relaylog/pkg/eventbus"
	"relaylog/pkg/logx"
)

const (
	defaultCheckInterval = 600 * time.Second
	defaultCacheSize     = 100
	defaultRatePerSec    = 5
	defaultTimeout       = 8 * time.Second
	defaultBaseURL       = "https://api.telegram.org"

	// pushSlack is added to the grouping interval to form the pusher period,
	// so a window is always closed before it is pushed.
	pushSlack = 4 * time.Second
)

type Options struct {
	// Token is the bot token. EnvTokenKey, when set and the variable is
	// non-empty, overrides it.
	Token       string
	EnvTokenKey string

	// Destinations accepts the shapes ParseDestinations documents.
	// EnvDestinationsKey, when set and non-empty, overrides it with a
	// semicolon-separated list.
	Destinations       any
	EnvDestinationsKey string

	// CheckInterval is the watcher period (default 600s): resend of failed
	// payloads and flush of stale duplicate runs.
	CheckInterval time.Duration

	// GroupingInterval, when > 0, switches the sink from immediate sends to
	// windowed batching: records are merged per GroupingInterval-wide window
	// and pushed by a background interval pusher.
	GroupingInterval time.Duration

	// CacheSize bounds each destination's pending queue (default 100).
	CacheSize int

	// MinLevel is the minimum record level accepted (zero value: info).
	MinLevel slog.Level

	// RatePerSec paces outbound requests (default 5).
	RatePerSec int

	// BaseURL overrides the API endpoint (tests). HTTPClient overrides the
	// transport; the default client carries an 8s timeout so a hung request
	// cannot stall the delivery path indefinitely.
	BaseURL    string
	HTTPClient *http.Client

	// Debug enables lifecycle trace diagnostics.
	Debug bool
	// Diag receives internal diagnostics. Zero value is silent.
	Diag logx.Logger
	// Bus, when set, receives delivery lifecycle events.
	Bus eventbus.Bus
}

// Sink pushes log records to one or more Telegram chats with retry,
// duplicate collapsing and optional time-window grouping. It implements
// slog.Handler; see Handle for the emit path.
//
// A single mutex serializes producers and the background timers; delivery
// happens under the lock, so at most one request is in flight per sink.
type Sink struct {
	mu       sync.Mutex
	dests    []*dest
	lastRec  *pending
	dupCount int

	apiURL   string
	client   *http.Client
	limiter  *rate.Limiter
	minLevel slog.Level

	groupSecs     int64 // grouping window width in seconds, 0 = disabled
	pushInterval  time.Duration
	checkInterval time.Duration

	debug bool
	diag  logx.Logger
	bus   eventbus.Bus

	stop      chan struct{}
	stopOnce  sync.Once
	runCtx    context.Context
	runCancel context.CancelFunc
}

// New validates the configuration, resolves environment overrides and starts
// the background timers. All configuration errors fail here, never at
// delivery time.
func New(opts Options) (*Sink, error) {
	grouping := opts.GroupingInterval
	if grouping < 0 {
		grouping = 0
	}
	push := grouping + pushSlack
	check := opts.CheckInterval
	if check <= 0 {
		check = defaultCheckInterval
	}
	if grouping > 0 && check < 2*push {
		return nil, fmt.Errorf("tgsink: check interval %s too small for grouping; need at least %s", check, 2*push)
	}

	token := opts.Token
	if opts.EnvTokenKey != "" {
		if v := strings.TrimSpace(os.Getenv(opts.EnvTokenKey)); v != "" {
			token = v
		}
	}
	destsIn := opts.Destinations
	if opts.EnvDestinationsKey != "" {
		if v := strings.TrimSpace(os.Getenv(opts.EnvDestinationsKey)); v != "" {
			destsIn = v
		}
	}
	ids, err := ParseDestinations(destsIn)
	if err != nil {
		return nil, err
	}

	base := opts.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}

	s := &Sink{
		apiURL:        strings.TrimRight(base, "/") + "/bot" + token + "/sendMessage",
		client:        client,
		limiter:       rate.NewLimiter(rate.Limit(rps), rps),
		minLevel:      opts.MinLevel,
		groupSecs:     int64(grouping / time.Second),
		pushInterval:  push,
		checkInterval: check,
		debug:         opts.Debug,
		diag:          opts.Diag,
		bus:           opts.Bus,
		stop:          make(chan struct{}),
	}
	for _, id := range ids {
		s.dests = append(s.dests, &dest{
			Destination: parseDestination(id),
			cache:       newQueue(opts.CacheSize),
		})
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	go s.watcher()
	if s.groupSecs > 0 {
		go s.intervalPusher()
	}
	return s, nil
}

func (s *Sink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.minLevel
}

// WithAttrs and WithGroup return the sink unchanged: the sink owns background
// timers and shared caches, so it cannot be forked per logger.
func (s *Sink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *Sink) WithGroup(string) slog.Handler      { return s }

// Handle is the emit path. Consecutive records identical in message, level,
// source and attributes collapse into one annotated delivery; novel records
// are enqueued to their destination caches and, unless grouping is enabled,
// sent immediately. Delivery failures are never surfaced to the producer.
func (s *Sink) Handle(_ context.Context, r slog.Record) error {
	rec := newPending(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case rec.equal(s.lastRec):
		s.dupCount++
		s.publish("deduped", rec.dest, "")

	case s.dupCount > 0:
		// Run of duplicates just ended: flush one annotated copy of the
		// repeated record, then the new one.
		ann := s.lastRec.clone()
		ann.remark = repeatRemark(s.dupCount + 1)
		s.enqueue(ann)
		s.enqueue(rec)
		s.lastRec = rec
		s.dupCount = 0
		if s.groupSecs == 0 {
			s.send()
		}

	default:
		s.enqueue(rec)
		s.lastRec = rec
		if s.groupSecs == 0 {
			s.send()
		}
	}
	return nil
}

// Format renders a record the way the sink would deliver it.
func (s *Sink) Format(r slog.Record) string {
	return newPending(r).render()
}

// Flush groups (when enabled) and sends everything currently pending.
func (s *Sink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupSecs > 0 {
		s.groupMessages()
	}
	s.send()
}

// Close signals the background timers to stop and cancels any in-flight
// request pacing. Pending cache entries are not flushed; call Flush first
// when a best-effort drain is wanted.
func (s *Sink) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.runCancel()
	})
	return nil
}

// Feedback returns the last decoded response (or error diagnostics) for the
// given raw destination identifier.
func (s *Sink) Feedback(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dests {
		if d.Raw == id {
			return d.feedback
		}
	}
	return nil
}

// enqueue routes a record to its destination cache(s): hint-matched only, or
// broadcast when no hint is set. A hint with no matching label drops the
// record silently.
func (s *Sink) enqueue(rec *pending) {
	if rec.dest != "" {
		for _, d := range s.dests {
			if d.Label == rec.dest {
				d.cache.push(entry{rec: rec})
				return
			}
		}
		if s.debug {
			s.diag.Debug("no destination matches hint", logx.String("hint", rec.dest))
		}
		return
	}
	for _, d := range s.dests {
		d.cache.push(entry{rec: rec})
	}
}

func (s *Sink) anyPending() bool {
	for _, d := range s.dests {
		if d.cache.len() > 0 {
			return true
		}
	}
	return false
}

func (s *Sink) publish(typ, destHint, errText string) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{
		Type: "tgsink." + typ,
		Time: now,
		Data: DeliveryEvent{Dest: destHint, Error: errText, At: now},
	})
}

// DeliveryEvent is the payload of tgsink.* bus events.
type DeliveryEvent struct {
	Dest     string
	ChatID   string
	ThreadID string
	Error    string
	At       time.Time
}
