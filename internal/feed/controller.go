package feed

import (
	"context"
	"log"
	"sync"

	"github.com/abelbrown/reelfeed/internal/post"
)

const (
	// refillThreshold is the backlog size below which a fetch is attempted.
	refillThreshold = 100

	// nearEndWindow is how close (in queue slots) the viewer must be to the
	// queue tail for incoming posts to bypass the backlog and promote
	// directly into the queue.
	nearEndWindow = 10

	// drainPerTick caps how many backlog entries are promoted per cycle.
	drainPerTick = 10

	// DefaultMaxQueue bounds queue admission for one session. Reaching it
	// signals the UI to restart the feed session.
	DefaultMaxQueue = 200
)

// Controller orchestrates the feed pipeline: it owns the queue, the
// backlog, and the fetch cursor, promotes backlog entries toward the
// viewer, and refills from the ranked source when the backlog runs low.
//
// All three structures are guarded as one unit by mu. Mutations happen
// either synchronously (promotion, cursor math) or at the completion of a
// fetch; the lock is never held across network I/O. The fetching flag
// makes the Idle -> Fetching transition exclusive, so two cycles can never
// both observe a low backlog and fetch twice.
type Controller struct {
	source RankedSource

	mu         sync.Mutex
	queue      *Queue
	backlog    *Backlog
	cursor     Cursor
	batchSeq   int
	currentIdx int
	queueEnd   bool
	fetching   bool
	fatalErr   error

	nsfwAllowed bool
	maxQueue    int

	obsMu     sync.Mutex
	observers []func()
}

// ControllerConfig carries construction options for a Controller.
type ControllerConfig struct {
	Source      RankedSource
	NSFWAllowed bool
	// MaxQueue bounds queue admission; 0 means DefaultMaxQueue.
	MaxQueue int
}

// NewController creates a Controller with an empty queue and backlog and a
// cursor at the start of the feed.
func NewController(cfg ControllerConfig) *Controller {
	maxQueue := cfg.MaxQueue
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	return &Controller{
		source:      cfg.Source,
		queue:       NewQueue(),
		backlog:     NewBacklog(),
		cursor:      NewCursor(),
		nsfwAllowed: cfg.NSFWAllowed,
		maxQueue:    maxQueue,
	}
}

// Subscribe registers a callback invoked after every state change that the
// rendering layer may care about (promotions, end-of-feed, fatal errors).
// Callbacks run outside the controller's lock.
func (c *Controller) Subscribe(fn func()) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) notify() {
	c.obsMu.Lock()
	obs := make([]func(), len(c.observers))
	copy(obs, c.observers)
	c.obsMu.Unlock()
	for _, fn := range obs {
		fn()
	}
}

// SeedInitial inserts the deep-linked post at the head of an empty queue
// so the session starts on the post the user navigated to. A no-op if the
// queue already has content (session recovery).
func (c *Controller) SeedInitial(d *post.Details) {
	c.mu.Lock()
	if c.queue.Len() > 0 {
		c.mu.Unlock()
		return
	}
	c.queue.Insert(d)
	c.cursor.Start = 1
	c.mu.Unlock()
	c.notify()
}

// SetCurrentIndex records the viewer's position. Called by the viewport
// tracker; the index steers the direct-promotion window.
func (c *Controller) SetCurrentIndex(idx int) {
	c.mu.Lock()
	if idx >= 0 && (idx < c.queue.Len() || c.queue.Len() == 0) {
		c.currentIdx = idx
	}
	c.mu.Unlock()
}

// QueueLen returns the number of posts promoted into the visible queue.
func (c *Controller) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// PostAt returns the queued post at idx, or nil.
func (c *Controller) PostAt(idx int) *post.Details {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.At(idx)
}

// QueueEnd reports whether the terminal end-of-feed marker has been set.
func (c *Controller) QueueEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueEnd
}

// BacklogLen returns the number of fetched-but-not-promoted posts.
func (c *Controller) BacklogLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backlog.Len()
}

// Err returns the fatal feed error, if a transport-level fetch failure has
// ended the session. Per-element errors never set this.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}

// AtCapacity reports whether queue admission has reached the session
// maximum; the UI restarts the feed session once the viewer gets there.
func (c *Controller) AtCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len() >= c.maxQueue
}

// Fetching reports whether a fetch cycle is in flight.
func (c *Controller) Fetching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetching
}

// FetchMore runs one feed cycle: drain the backlog toward the viewer, and
// if the backlog is below its threshold, fetch a chunk from the ranked
// source and classify each element as it arrives. Returns without work if
// a cycle is already in flight, the feed has ended and the backlog is
// empty, or a previous fetch failed fatally.
//
// A transport-level fetch error is terminal for the session (no automatic
// retry); per-element errors are dropped and logged.
func (c *Controller) FetchMore(ctx context.Context) {
	c.mu.Lock()
	if c.fetching || c.fatalErr != nil {
		c.mu.Unlock()
		return
	}
	promoted := c.drainBacklogLocked()

	if c.queueEnd || c.backlog.Len() >= refillThreshold {
		c.mu.Unlock()
		if promoted > 0 {
			c.notify()
		}
		return
	}
	c.fetching = true
	cursor := c.cursor
	seen := c.queue.Identities()
	nsfw := c.nsfwAllowed
	c.mu.Unlock()

	if promoted > 0 {
		c.notify()
	}

	chunk, err := c.source.FetchChunk(ctx, cursor, nsfw, seen)
	if err != nil {
		c.mu.Lock()
		c.fetching = false
		c.fatalErr = err
		c.mu.Unlock()
		log.Printf("feed: fetch failed: %v", err)
		c.notify()
		return
	}

	intraIdx := 0
	for res := range chunk.Posts {
		if res.Err != nil {
			// A single malformed element is dropped; the rest of the
			// chunk is still consumed.
			log.Printf("feed: dropping post from chunk: %v", res.Err)
			continue
		}
		c.mu.Lock()
		if c.queue.Len()-c.currentIdx <= nearEndWindow {
			if c.queue.Len() < c.maxQueue {
				c.queue.Insert(res.Details)
			}
		} else {
			c.backlog.Push(res.Details, c.batchSeq, intraIdx)
		}
		c.mu.Unlock()
		intraIdx++
	}

	c.mu.Lock()
	if chunk.Type == ResultFallback {
		// Fallback pagination contract: consume this page, reset the
		// page size to the default for subsequent calls.
		c.cursor.Advance()
		c.cursor.SetLimit(DefaultPageLimit)
	}
	if chunk.End {
		c.queueEnd = true
	}
	c.batchSeq++
	c.fetching = false
	c.mu.Unlock()
	c.notify()
}

// drainBacklogLocked promotes up to drainPerTick backlog entries into the
// queue, preserving priority order. Caller holds c.mu. Returns the number
// actually promoted.
func (c *Controller) drainBacklogLocked() int {
	promoted := 0
	for promoted < drainPerTick && c.queue.Len() < c.maxQueue {
		d := c.backlog.PopMax()
		if d == nil {
			break
		}
		if c.queue.Insert(d) {
			promoted++
		}
	}
	return promoted
}
