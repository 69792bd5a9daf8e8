package feed

import (
	"container/heap"

	"github.com/abelbrown/reelfeed/internal/post"
)

// Backlog holds ranked posts that have been fetched but not yet promoted
// into the visible queue. Entries are prioritized by (batch, intra-batch
// index): the most recently fetched batch wins, and within a batch the
// source's own order is preserved (earlier items rank higher).
//
// The backlog has no hard capacity - it is bounded by the refill policy
// (the Controller only fetches while the backlog is below its threshold).
//
// NOT goroutine-safe on its own - guarded by the Controller's mutex.
type Backlog struct {
	h       backlogHeap
	members map[post.Identity]bool
}

// NewBacklog returns an empty backlog.
func NewBacklog() *Backlog {
	return &Backlog{members: make(map[post.Identity]bool)}
}

// Push adds a post with the given priority key. A post already present in
// the backlog is not re-added (its original priority stands).
func (b *Backlog) Push(d *post.Details, batch, intraIdx int) {
	id := d.Identity()
	if b.members[id] {
		return
	}
	b.members[id] = true
	heap.Push(&b.h, backlogEntry{details: d, batch: batch, intraIdx: intraIdx})
}

// PopMax removes and returns the highest-priority entry: the numerically
// largest batch, ties broken by the smallest intra-batch index. Returns
// nil when the backlog is empty.
func (b *Backlog) PopMax() *post.Details {
	if b.h.Len() == 0 {
		return nil
	}
	e := heap.Pop(&b.h).(backlogEntry)
	delete(b.members, e.details.Identity())
	return e.details
}

// PopMin removes and returns the lowest-priority entry: the numerically
// smallest batch, ties broken by the largest intra-batch index. Returns
// nil when the backlog is empty.
//
// PopMin is the garbage-collection extension point, paired with
// Queue.EvictBefore: a future implementation may shed the stalest ranked
// entries when memory pressure matters. Nothing calls it during normal
// promotion, so it takes a linear scan rather than a second heap.
func (b *Backlog) PopMin() *post.Details {
	if b.h.Len() == 0 {
		return nil
	}
	min := 0
	for i := 1; i < len(b.h); i++ {
		if b.h.Less(min, i) {
			min = i
		}
	}
	e := heap.Remove(&b.h, min).(backlogEntry)
	delete(b.members, e.details.Identity())
	return e.details
}

// Len returns the number of buffered entries.
func (b *Backlog) Len() int {
	return b.h.Len()
}

// backlogEntry pairs a post with its priority key.
type backlogEntry struct {
	details  *post.Details
	batch    int
	intraIdx int
}

// backlogHeap is a max-heap on (batch asc, intraIdx desc) - see Less.
type backlogHeap []backlogEntry

func (h backlogHeap) Len() int { return len(h) }

// Less orders the heap so the root is the entry with the largest batch;
// within a batch, the smallest intra-batch index.
func (h backlogHeap) Less(i, j int) bool {
	if h[i].batch != h[j].batch {
		return h[i].batch > h[j].batch
	}
	return h[i].intraIdx < h[j].intraIdx
}

func (h backlogHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *backlogHeap) Push(x any) {
	*h = append(*h, x.(backlogEntry))
}

func (h *backlogHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
