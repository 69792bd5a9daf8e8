package coord

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/reelfeed/internal/feed"
	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/store"
	"github.com/abelbrown/reelfeed/internal/ui"
)

// funcSource adapts a function to feed.RankedSource.
type funcSource struct {
	fn func(cursor feed.Cursor, seen []post.Identity) (*feed.Chunk, error)
}

func (s *funcSource) FetchChunk(_ context.Context, cursor feed.Cursor, _ bool, seen []post.Identity) (*feed.Chunk, error) {
	return s.fn(cursor, seen)
}

// chanSender captures program messages for assertions.
type chanSender struct {
	msgs chan tea.Msg
}

func newChanSender() *chanSender {
	return &chanSender{msgs: make(chan tea.Msg, 16)}
}

func (s *chanSender) Send(msg tea.Msg) {
	s.msgs <- msg
}

func (s *chanSender) next(t *testing.T) tea.Msg {
	t.Helper()
	select {
	case msg := <-s.msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for program message")
		return nil
	}
}

func chunkOf(n int, from uint64) *feed.Chunk {
	results := make([]feed.PostResult, n)
	for i := range results {
		results[i] = feed.PostResult{Details: &post.Details{
			CanisterID: "can-a",
			PostID:     from + uint64(i),
			VideoUID:   "vid",
			CreatedAt:  time.Now().Add(-time.Hour),
		}}
	}
	return feed.SliceChunk(results, feed.ResultMLFeed, false)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitialFetchSendsSnapshotAndPersists(t *testing.T) {
	src := &funcSource{fn: func(feed.Cursor, []post.Identity) (*feed.Chunk, error) {
		return chunkOf(3, 0), nil
	}}
	ctrl := feed.NewController(feed.ControllerConfig{Source: src})
	st := openTestStore(t)
	c := NewCoordinator(ctrl, st, nil)
	sender := newChanSender()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx, sender)

	msg := sender.next(t)
	updated, ok := msg.(ui.FeedUpdated)
	if !ok {
		t.Fatalf("message = %T, want ui.FeedUpdated", msg)
	}
	if len(updated.Posts) != 3 {
		t.Errorf("snapshot posts = %d, want 3", len(updated.Posts))
	}
	if updated.Err != nil {
		t.Errorf("snapshot err = %v", updated.Err)
	}

	count, err := st.PostCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("cached posts = %d, want 3", count)
	}

	cancel()
	c.Wait()
}

func TestRequestedFetchExtendsQueueWithoutRecaching(t *testing.T) {
	calls := 0
	src := &funcSource{fn: func(feed.Cursor, []post.Identity) (*feed.Chunk, error) {
		calls++
		return chunkOf(3, uint64(calls-1)*3), nil
	}}
	ctrl := feed.NewController(feed.ControllerConfig{Source: src})
	st := openTestStore(t)
	c := NewCoordinator(ctrl, st, nil)
	sender := newChanSender()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx, sender)

	sender.next(t) // initial snapshot
	c.RequestFetch()
	msg := sender.next(t)
	updated, ok := msg.(ui.FeedUpdated)
	if !ok {
		t.Fatalf("message = %T, want ui.FeedUpdated", msg)
	}
	if len(updated.Posts) != 6 {
		t.Errorf("snapshot posts = %d, want 6", len(updated.Posts))
	}

	count, err := st.PostCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 6 {
		t.Errorf("cached posts = %d, want 6", count)
	}

	cancel()
	c.Wait()
}

func TestFetchErrorSurfacesInSnapshot(t *testing.T) {
	src := &funcSource{fn: func(feed.Cursor, []post.Identity) (*feed.Chunk, error) {
		return nil, errors.New("feed cache unreachable")
	}}
	ctrl := feed.NewController(feed.ControllerConfig{Source: src})
	c := NewCoordinator(ctrl, nil, nil)
	sender := newChanSender()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx, sender)

	msg := sender.next(t)
	updated, ok := msg.(ui.FeedUpdated)
	if !ok {
		t.Fatalf("message = %T, want ui.FeedUpdated", msg)
	}
	if updated.Err == nil {
		t.Error("snapshot err = nil, want transport error")
	}
	if len(updated.Posts) != 0 {
		t.Errorf("snapshot posts = %d, want 0", len(updated.Posts))
	}

	cancel()
	c.Wait()
}

func TestRequestFetchNeverBlocks(t *testing.T) {
	ctrl := feed.NewController(feed.ControllerConfig{Source: &funcSource{
		fn: func(feed.Cursor, []post.Identity) (*feed.Chunk, error) {
			return chunkOf(1, 0), nil
		},
	}})
	c := NewCoordinator(ctrl, nil, nil)

	// No worker running: repeated requests coalesce into the buffered
	// slot instead of blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			c.RequestFetch()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestFetch blocked")
	}
}
