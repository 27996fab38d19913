package tgsink

import (
	"time"

	"relaylog/pkg/logx"
)

// watcher is the resend loop: every check interval it retries pending
// payloads (immediate-send mode) and flushes a duplicate run that never saw
// a following novel record. Sleeps first, then checks, so it never busy-loops
// and Close latency is bounded by one interval.
func (s *Sink) watcher() {
	if s.debug {
		s.diag.Debug("tgsink watcher started", logx.Duration("interval", s.checkInterval))
	}
	for {
		select {
		case <-s.stop:
			return
		case <-time.After(s.checkInterval):
		}

		s.mu.Lock()
		switch {
		case s.groupSecs == 0 && s.anyPending():
			if s.debug {
				s.diag.Debug("tgsink resending unsent messages")
			}
			s.send()
		case s.dupCount > 0:
			if s.debug {
				s.diag.Debug("tgsink flushing duplicate run", logx.Int("count", s.dupCount))
			}
			ann := s.lastRec.clone()
			ann.remark = repeatRemark(s.dupCount + 1)
			s.enqueue(ann)
			s.dupCount = 0
			s.send()
		}
		s.mu.Unlock()
	}
}

// intervalPusher runs only in grouping mode: every push interval (grouping
// interval plus slack) it merges pending records into window buckets and
// sends the merged payloads.
func (s *Sink) intervalPusher() {
	if s.debug {
		s.diag.Debug("tgsink interval pusher started", logx.Duration("interval", s.pushInterval))
	}
	for {
		select {
		case <-s.stop:
			return
		case <-time.After(s.pushInterval):
		}

		s.mu.Lock()
		if s.anyPending() {
			s.groupMessages()
			s.send()
		}
		s.mu.Unlock()
	}
}
