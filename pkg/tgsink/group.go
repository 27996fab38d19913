package tgsink

import "strings"

// groupMessages rebuckets each destination cache into fixed-width time
// windows and replaces the raw entries with one merged entry per window.
// A raw record opens a new window unless its second-timestamp falls inside
// the currently open one; entries grouped by a previous (failed) cycle are
// carried through unchanged as their own bucket. Callers must hold s.mu.
func (s *Sink) groupMessages() {
	for _, d := range s.dests {
		entries := d.cache.drain()
		if len(entries) == 0 {
			continue
		}

		type bucket struct {
			win   int64
			texts []string
		}
		var buckets []bucket
		open := -1 // index of the window raw records may still join

		for _, e := range entries {
			if !e.raw() {
				buckets = append(buckets, bucket{win: e.win, texts: []string{e.text}})
				continue
			}
			ts := e.rec.time.Unix()
			if open >= 0 && ts >= buckets[open].win && ts < buckets[open].win+s.groupSecs {
				buckets[open].texts = append(buckets[open].texts, e.rec.render())
				continue
			}
			buckets = append(buckets, bucket{win: ts, texts: []string{e.rec.render()}})
			open = len(buckets) - 1
		}

		for _, b := range buckets {
			d.cache.push(entry{win: b.win, text: strings.Join(b.texts, "\n")})
		}
	}
}
