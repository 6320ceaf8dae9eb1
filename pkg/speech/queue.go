package speech

import (
	"container/heap"
	"slices"
)

// RequestQueue holds pending speech items ordered by priority, together with
// the set of texts already dispatched (the spoken-set).
//
// Items of higher priority are dequeued first; items of equal priority are
// dequeued in insertion order. The spoken-set only gates admission: a text
// is checked on Enqueue, and the [Scheduler] adds it on dispatch. Clearing
// either side never touches the other, so dropping the queue does not make
// its texts speakable again.
//
// A RequestQueue is not safe for concurrent use. The [Scheduler] owns one
// and serialises all access.
type RequestQueue struct {
	pending pending
	next    uint64
	spoken  map[string]struct{}
}

// queued is an item stamped with its arrival order.
type queued struct {
	Item
	arrival uint64
}

// before reports whether a leaves the queue ahead of b.
func (a queued) before(b queued) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.arrival < b.arrival
}

// pending is the binary heap behind a [RequestQueue]; only
// container/heap calls Push and Pop.
type pending []queued

func (h pending) Len() int           { return len(h) }
func (h pending) Less(i, j int) bool { return h[i].before(h[j]) }
func (h pending) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pending) Push(x any)        { *h = append(*h, x.(queued)) }

func (h *pending) Pop() any {
	n := len(*h) - 1
	q := (*h)[n]
	(*h)[n] = queued{}
	*h = (*h)[:n]
	return q
}

// NewRequestQueue returns an empty queue with an empty spoken-set.
func NewRequestQueue() *RequestQueue {
	return &RequestQueue{spoken: make(map[string]struct{})}
}

// Enqueue inserts item and reports whether it was accepted. An item whose
// text is in the spoken-set is rejected unless it allows repeats.
func (q *RequestQueue) Enqueue(item Item) bool {
	if !item.AllowRepeat && q.HasSpoken(item.Text) {
		return false
	}
	heap.Push(&q.pending, queued{Item: item, arrival: q.next})
	q.next++
	return true
}

// DequeueHighest removes and returns the head of the queue.
func (q *RequestQueue) DequeueHighest() (Item, bool) {
	if len(q.pending) == 0 {
		return Item{}, false
	}
	return heap.Pop(&q.pending).(queued).Item, true
}

// Peek returns the head of the queue without removing it.
func (q *RequestQueue) Peek() (Item, bool) {
	if len(q.pending) == 0 {
		return Item{}, false
	}
	return q.pending[0].Item, true
}

// Clear removes every queued item. The spoken-set is left untouched.
func (q *RequestQueue) Clear() {
	clear(q.pending)
	q.pending = q.pending[:0]
}

// Len returns the number of queued items.
func (q *RequestQueue) Len() int { return len(q.pending) }

// Items returns the queued items in dequeue order.
func (q *RequestQueue) Items() []Item {
	sorted := slices.Clone(q.pending)
	slices.SortFunc(sorted, func(a, b queued) int {
		if a.before(b) {
			return -1
		}
		return 1
	})
	out := make([]Item, len(sorted))
	for i, e := range sorted {
		out[i] = e.Item
	}
	return out
}

// MarkSpoken records text in the spoken-set.
func (q *RequestQueue) MarkSpoken(text string) { q.spoken[text] = struct{}{} }

// HasSpoken reports whether text is in the spoken-set.
func (q *RequestQueue) HasSpoken(text string) bool {
	_, ok := q.spoken[text]
	return ok
}

// ClearSpoken empties the spoken-set. Queued items are left untouched.
func (q *RequestQueue) ClearSpoken() { clear(q.spoken) }

// SpokenCount returns the size of the spoken-set.
func (q *RequestQueue) SpokenCount() int { return len(q.spoken) }
