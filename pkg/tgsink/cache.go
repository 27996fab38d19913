package tgsink

// entry is a tagged variant held in a destination cache: either a raw record
// awaiting rendering, or an already-grouped (window start, rendered text)
// pair carried over from a failed send.
type entry struct {
	rec  *pending // raw record; nil for grouped entries
	win  int64    // grouping window start, unix seconds
	text string   // rendered text, grouped entries only
}

func (e entry) raw() bool { return e.rec != nil }

// queue is a fixed-capacity FIFO. Pushing past capacity evicts exactly the
// oldest entry.
type queue struct {
	limit int
	items []entry
}

func newQueue(limit int) *queue {
	if limit <= 0 {
		limit = defaultCacheSize
	}
	return &queue{limit: limit}
}

func (q *queue) len() int { return len(q.items) }

func (q *queue) push(e entry) {
	if len(q.items) >= q.limit {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
	}
	q.items = append(q.items, e)
}

func (q *queue) head() (entry, bool) {
	if len(q.items) == 0 {
		return entry{}, false
	}
	return q.items[0], true
}

func (q *queue) pop() {
	if len(q.items) == 0 {
		return
	}
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
}

// drain empties the queue and returns its entries in FIFO order.
func (q *queue) drain() []entry {
	out := q.items
	q.items = nil
	return out
}
