// Package coord provides background fetch coordination for reelfeed.
package coord

import (
	"context"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/reelfeed/internal/feed"
	"github.com/abelbrown/reelfeed/internal/otel"
	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/store"
	"github.com/abelbrown/reelfeed/internal/ui"
)

// fetchTimeout is the timeout for each fetch cycle.
const fetchTimeout = 30 * time.Second

// sender abstracts *tea.Program for testing.
type sender interface {
	Send(msg tea.Msg)
}

// Coordinator runs fetch cycles off the UI goroutine. The UI requests
// fetches; the coordinator executes them one at a time, persists newly
// queued posts, and sends queue snapshots back to the program.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	ctrl      *feed.Controller
	store     *store.Store // optional: nil to disable persistence
	logger    *otel.Logger
	wg        sync.WaitGroup
	requests  chan struct{}
	persisted int // queue high-water mark already written to the store
	reported  int // queue length already counted in promote events
}

// NewCoordinator creates a Coordinator. The store is optional (nil to
// disable the local cache); a nil logger discards events.
func NewCoordinator(ctrl *feed.Controller, st *store.Store, logger *otel.Logger) *Coordinator {
	if logger == nil {
		logger = otel.NewNullLogger()
	}
	return &Coordinator{
		ctrl:     ctrl,
		store:    st,
		logger:   logger,
		requests: make(chan struct{}, 1),
	}
}

// RequestFetch schedules a fetch cycle. Non-blocking; requests arriving
// while a cycle runs coalesce into one follow-up cycle.
func (c *Coordinator) RequestFetch() {
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// Start begins background fetching. Call with a cancellable context.
// Performs an initial fetch immediately, then one per request.
func (c *Coordinator) Start(ctx context.Context, program sender) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.fetchOnce(ctx, program)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.requests:
				c.fetchOnce(ctx, program)
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// fetchOnce runs one fetch cycle with timeout, persists new posts, and
// sends the resulting queue snapshot.
func (c *Coordinator) fetchOnce(ctx context.Context, program sender) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	c.logger.Emit(otel.Event{Kind: otel.KindFetchStart, Level: otel.LevelDebug, Comp: "coord"})

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	c.ctrl.FetchMore(fetchCtx)

	queueLen := c.ctrl.QueueLen()
	posts := make([]post.Details, 0, queueLen)
	for i := 0; i < queueLen; i++ {
		if p := c.ctrl.PostAt(i); p != nil {
			posts = append(posts, *p)
		}
	}

	if grown := len(posts) - c.reported; grown > 0 {
		c.logger.Emit(otel.Event{Kind: otel.KindFeedPromote, Level: otel.LevelDebug, Comp: "coord", Count: grown})
		c.reported = len(posts)
	}
	c.persistNew(posts)

	err := c.ctrl.Err()
	if err != nil {
		c.logger.Emit(otel.Event{Kind: otel.KindFetchError, Level: otel.LevelError, Comp: "coord", Err: err.Error()})
	} else {
		c.logger.Emit(otel.Event{Kind: otel.KindFetchComplete, Level: otel.LevelInfo, Comp: "coord", Count: queueLen, Dur: time.Since(start)})
	}
	if c.ctrl.QueueEnd() {
		c.logger.Emit(otel.Event{Kind: otel.KindFeedEnd, Level: otel.LevelInfo, Comp: "coord", Count: queueLen})
	}

	// Handle nil program gracefully for testing.
	if program != nil {
		program.Send(ui.FeedUpdated{
			Posts:      posts,
			End:        c.ctrl.QueueEnd(),
			Fetching:   c.ctrl.Fetching(),
			AtCapacity: c.ctrl.AtCapacity(),
			Err:        err,
		})
	}
}

// persistNew caches queue entries past the persisted high-water mark.
// Cache errors are logged, never surfaced: the feed works without the
// local cache.
func (c *Coordinator) persistNew(posts []post.Details) {
	if c.store == nil || c.persisted >= len(posts) {
		return
	}
	fresh := posts[c.persisted:]
	if _, err := c.store.SavePosts(fresh); err != nil {
		log.Printf("coord: failed to cache %d posts: %v", len(fresh), err)
		c.logger.Emit(otel.Event{Kind: otel.KindStoreError, Level: otel.LevelWarn, Comp: "coord", Err: err.Error()})
		return
	}
	c.persisted = len(posts)
}
