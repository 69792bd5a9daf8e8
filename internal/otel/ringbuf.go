package otel

import "sync"

// DefaultRingSize is the capacity used when none is given.
const DefaultRingSize = 1024

// RingBuffer keeps the most recent events for the live debug overlay.
// Fixed capacity; once full, each Push overwrites the oldest entry.
// Safe for concurrent Push and reads.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Event
	total uint64 // events ever pushed; buf[total % cap] is the next slot
}

// NewRingBuffer creates a ring buffer holding up to size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Push records an event, evicting the oldest when full. The Extra map is
// copied so a caller mutating it afterwards cannot corrupt the buffer.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		cp := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			cp[k] = v
		}
		e.Extra = cp
	}
	r.mu.Lock()
	r.buf[r.total%uint64(len(r.buf))] = e
	r.total++
	r.mu.Unlock()
}

// Snapshot returns every buffered event, oldest first. The slice is a
// copy; the caller may hold it without blocking writers.
func (r *RingBuffer) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLocked(len(r.buf))
}

// Last returns up to n of the most recent events, oldest first.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLocked(n)
}

func (r *RingBuffer) lastLocked(n int) []Event {
	count := int(r.total)
	if count > len(r.buf) {
		count = len(r.buf)
	}
	if count == 0 {
		return nil
	}
	if n > count {
		n = count
	}
	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (r.total - uint64(n) + uint64(i)) % uint64(len(r.buf))
		result[i] = r.buf[idx]
	}
	return result
}

// Len returns how many events are currently buffered.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total > uint64(len(r.buf)) {
		return len(r.buf)
	}
	return int(r.total)
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Stats counts buffered events by kind. Feeds the overlay's pipeline
// summary, so it walks the buffer under the lock rather than keeping
// running counters that could drift from evictions.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[EventKind]int)
	for _, e := range r.lastLocked(len(r.buf)) {
		counts[e.Kind]++
	}
	return counts
}
