package feed

import (
	"github.com/abelbrown/reelfeed/internal/post"
)

// Queue is the ordered, deduplicated, growable sequence of posts currently
// eligible for display. Insertion-ordered with unique-membership semantics:
// inserting an identity that is already present is a no-op.
//
// The queue is append-only for the life of a session. Server-side exclusion
// of already-seen posts is an optimization only; this set semantics is the
// authoritative dedup guard.
//
// NOT goroutine-safe on its own - the Controller guards it together with
// the backlog and cursor under one mutex.
type Queue struct {
	items []*post.Details
	index map[post.Identity]int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[post.Identity]int)}
}

// Insert appends d to the queue unless its identity is already present.
// Returns true if the post was actually added.
func (q *Queue) Insert(d *post.Details) bool {
	id := d.Identity()
	if _, ok := q.index[id]; ok {
		return false
	}
	q.index[id] = len(q.items)
	q.items = append(q.items, d)
	return true
}

// Len returns the number of unique posts queued.
func (q *Queue) Len() int {
	return len(q.items)
}

// At returns the post at index i, or nil if i is out of range.
func (q *Queue) At(i int) *post.Details {
	if i < 0 || i >= len(q.items) {
		return nil
	}
	return q.items[i]
}

// Contains reports whether the identity is already queued.
func (q *Queue) Contains(id post.Identity) bool {
	_, ok := q.index[id]
	return ok
}

// Identities returns the identities of all queued posts in order, for use
// as the "seen" exclusion set on fetches.
func (q *Queue) Identities() []post.Identity {
	ids := make([]post.Identity, len(q.items))
	for i, d := range q.items {
		ids[i] = d.Identity()
	}
	return ids
}

// EvictBefore is the eviction extension point. Entries are ~32 bytes of
// identity plus shared detail pointers, so a session's queue stays small
// and no GC is performed today. A future implementation may release
// entries below idx once scroll-back past them is impossible.
func (q *Queue) EvictBefore(idx int) {
	// Intentionally a no-op.
	_ = idx
}
