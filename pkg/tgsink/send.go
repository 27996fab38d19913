package tgsink

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"relaylog/pkg/eventbus"
	"relaylog/pkg/logx"
)

// floodPause is the short backoff after an HTTP 429 before the destination is
// left for the next watcher cycle.
const floodPause = time.Second

const maxResponseBytes = 1 << 20

type outcome int

const (
	outcomeDelivered outcome = iota // pop: accepted by the remote
	outcomeDropped                  // pop: permanently undeliverable
	outcomeRetry                    // keep: retry this destination later
)

// send drains each destination cache head-first. An entry is only popped once
// it is delivered or classified permanently undeliverable, so FIFO order is
// preserved across retries. A retry-later outcome stops draining only the
// current destination; later destinations still get their attempt.
// Callers must hold s.mu.
func (s *Sink) send() {
	for _, d := range s.dests {
	drain:
		for {
			e, ok := d.cache.head()
			if !ok {
				break
			}
			text := e.text
			if e.raw() {
				text = e.rec.render()
			}
			switch s.deliver(d, text) {
			case outcomeDelivered, outcomeDropped:
				d.cache.pop()
			case outcomeRetry:
				break drain
			}
		}
	}
}

// deliver performs one outbound request and classifies the result.
func (s *Sink) deliver(d *dest, text string) outcome {
	if err := s.limiter.Wait(s.runCtx); err != nil {
		// Sink is closing; keep the entry.
		return outcomeRetry
	}

	req, err := http.NewRequestWithContext(s.runCtx, http.MethodGet, s.requestURL(d.Destination, text), nil)
	if err != nil {
		s.diag.Error("telegram request build failed", logx.String("dest", d.Raw), logx.Err(err))
		return outcomeRetry
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Connection reset, timeout, DNS failure: all transient here.
		s.diag.Info("telegram send failed", logx.String("dest", d.Raw), logx.Err(err))
		s.publishDelivery("retry", d, err.Error())
		return outcomeRetry
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var fb map[string]any
		if err := json.Unmarshal(body, &fb); err != nil {
			// The remote accepted the request; a malformed body is recorded
			// as error feedback but the entry still counts as delivered.
			d.feedback = map[string]any{"error": err.Error(), "data": string(body)}
		} else {
			d.feedback = fb
		}
		s.publishDelivery("sent", d, "")
		return outcomeDelivered

	case resp.StatusCode == http.StatusForbidden:
		// The target blocked the bot. Not retried.
		s.diag.Error("destination blocked the bot", logx.String("dest", d.Raw), logx.Int("status", resp.StatusCode))
		s.publishDelivery("dropped", d, string(body))
		return outcomeDropped

	case resp.StatusCode == http.StatusTooManyRequests:
		s.diag.Info("telegram rate limit hit", logx.String("dest", d.Raw), logx.Int("status", resp.StatusCode))
		s.publishDelivery("retry", d, string(body))
		time.Sleep(floodPause)
		return outcomeRetry

	default:
		s.diag.Info("telegram send rejected", logx.String("dest", d.Raw), logx.Int("status", resp.StatusCode))
		s.publishDelivery("retry", d, string(body))
		return outcomeRetry
	}
}

// requestURL builds the sendMessage URL for one destination. Values.Encode
// percent-escapes the text and emits keys in sorted order: chat_id,
// message_thread_id, text.
func (s *Sink) requestURL(d Destination, text string) string {
	v := url.Values{}
	v.Set("chat_id", d.ChatID)
	if d.ThreadID != "" {
		v.Set("message_thread_id", d.ThreadID)
	}
	v.Set("text", text)
	return s.apiURL + "?" + v.Encode()
}

func (s *Sink) publishDelivery(typ string, d *dest, errText string) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{
		Type: "tgsink." + typ,
		Time: now,
		Data: DeliveryEvent{
			Dest:     d.Raw,
			ChatID:   d.ChatID,
			ThreadID: d.ThreadID,
			Error:    errText,
			At:       now,
		},
	})
}
