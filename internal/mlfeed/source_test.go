package mlfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"

	"github.com/abelbrown/reelfeed/internal/feed"
	"github.com/abelbrown/reelfeed/internal/post"
)

// fakeCache is an httptest server standing in for the feed cache service.
// Scripted fields are set before the server starts and never mutated after.
type fakeCache struct {
	rankedPosts    []postItem
	rankedStatus   int
	coldPosts      []postItem
	globalPosts    []postItem
	globalEnd      bool
	globalStatus   int
	missingDetails map[uint64]bool

	rankedCalls atomic.Int32
	coldCalls   atomic.Int32
	globalCalls atomic.Int32
	globalQuery atomic.Value // last raw query string seen by the global endpoint
}

func (f *fakeCache) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case strings.HasPrefix(req.URL.Path, "/api/v1/feed/coldstart/"):
			f.coldCalls.Add(1)
			json.NewEncoder(w).Encode(feedResponse{Posts: f.coldPosts})
		case strings.HasPrefix(req.URL.Path, "/api/v1/feed/"):
			f.rankedCalls.Add(1)
			if f.rankedStatus != 0 {
				http.Error(w, "ranking unavailable", f.rankedStatus)
				return
			}
			json.NewEncoder(w).Encode(feedResponse{Posts: f.rankedPosts})
		case req.URL.Path == "/api/v1/posts/global":
			f.globalCalls.Add(1)
			f.globalQuery.Store(req.URL.RawQuery)
			if f.globalStatus != 0 {
				http.Error(w, "global unavailable", f.globalStatus)
				return
			}
			json.NewEncoder(w).Encode(feedResponse{Posts: f.globalPosts, End: f.globalEnd})
		case strings.HasPrefix(req.URL.Path, "/api/v1/post/"):
			parts := strings.Split(req.URL.Path, "/")
			id, _ := strconv.ParseUint(parts[len(parts)-1], 10, 64)
			if f.missingDetails[id] {
				http.NotFound(w, req)
				return
			}
			json.NewEncoder(w).Encode(detailsResponse{
				CanisterID:    parts[len(parts)-2],
				PostID:        id,
				VideoUID:      fmt.Sprintf("vid-%d", id),
				CreatedAtSecs: 1_700_000_000,
			})
		default:
			t.Errorf("unexpected request: %s", req.URL.Path)
			http.NotFound(w, req)
		}
	})
}

func items(n int, from uint64) []postItem {
	out := make([]postItem, n)
	for i := range out {
		out[i] = postItem{CanisterID: "can-a", PostID: from + uint64(i)}
	}
	return out
}

func seenSet(n int) []post.Identity {
	out := make([]post.Identity, n)
	for i := range out {
		out[i] = post.Identity{CanisterID: "seen", PostID: uint64(i)}
	}
	return out
}

func drain(t *testing.T, c *feed.Chunk) []feed.PostResult {
	t.Helper()
	var out []feed.PostResult
	for r := range c.Posts {
		out = append(out, r)
	}
	return out
}

func newTestSource(t *testing.T, f *fakeCache) (*HybridSource, func()) {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	c := NewClient(server.URL)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return NewHybridSource(c, "user-1", nil), server.Close
}

func TestFetchChunkColdStart(t *testing.T) {
	f := &fakeCache{coldPosts: items(30, 0)}
	s, closeFn := newTestSource(t, f)
	defer closeFn()

	// A fresh session (fewer than ten posts seen) uses the cold-start page.
	chunk, err := s.FetchChunk(context.Background(), feed.NewCursor(), false, seenSet(3))
	if err != nil {
		t.Fatalf("FetchChunk() error: %v", err)
	}
	if chunk.Type != feed.ResultMLFeed {
		t.Errorf("type = %v, want ml_feed", chunk.Type)
	}
	results := drain(t, chunk)
	if len(results) != 30 {
		t.Fatalf("got %d results, want 30", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("results[%d] failed: %v", i, r.Err)
		}
		if r.Details.PostID != uint64(i) {
			t.Errorf("results[%d].PostID = %d, ranking order not preserved", i, r.Details.PostID)
		}
	}
	if f.rankedCalls.Load() != 0 {
		t.Error("ranked endpoint called during cold start")
	}
}

func TestFetchChunkRankedAfterWarmup(t *testing.T) {
	f := &fakeCache{rankedPosts: items(5, 100)}
	s, closeFn := newTestSource(t, f)
	defer closeFn()

	chunk, err := s.FetchChunk(context.Background(), feed.NewCursor(), false, seenSet(15))
	if err != nil {
		t.Fatalf("FetchChunk() error: %v", err)
	}
	if chunk.Type != feed.ResultMLFeed || chunk.End {
		t.Errorf("chunk = {type %v, end %v}", chunk.Type, chunk.End)
	}
	if got := len(drain(t, chunk)); got != 5 {
		t.Errorf("got %d results, want 5", got)
	}
	if f.coldCalls.Load() != 0 {
		t.Error("cold-start endpoint called after warmup")
	}
}

func TestFetchChunkDegradesToFallback(t *testing.T) {
	f := &fakeCache{
		rankedStatus: http.StatusServiceUnavailable,
		globalPosts:  items(4, 200),
		globalEnd:    true,
	}
	s, closeFn := newTestSource(t, f)
	defer closeFn()

	chunk, err := s.FetchChunk(context.Background(), feed.NewCursor(), false, seenSet(15))
	if err != nil {
		t.Fatalf("FetchChunk() error: %v", err)
	}
	if chunk.Type != feed.ResultFallback {
		t.Errorf("type = %v, want fallback", chunk.Type)
	}
	if !chunk.End {
		t.Error("end flag from the global page not propagated")
	}
	if got := len(drain(t, chunk)); got != 4 {
		t.Errorf("got %d results, want 4", got)
	}
}

func TestFallbackPageSizeFollowsCursor(t *testing.T) {
	f := &fakeCache{
		rankedStatus: http.StatusServiceUnavailable,
		globalPosts:  items(2, 400),
	}
	s, closeFn := newTestSource(t, f)
	defer closeFn()

	// The controller advances the cursor by its limit afterwards, so the
	// page fetched here must be exactly cursor.Limit wide.
	cursor := feed.Cursor{Start: 100, Limit: 30}
	chunk, err := s.FetchChunk(context.Background(), cursor, false, seenSet(15))
	if err != nil {
		t.Fatalf("FetchChunk() error: %v", err)
	}
	drain(t, chunk)

	query, _ := f.globalQuery.Load().(string)
	if !strings.Contains(query, "start=100") || !strings.Contains(query, "limit=30") {
		t.Errorf("global query = %q, want start=100 and limit=30", query)
	}
}

func TestFetchChunkEmptyRankingFallsBack(t *testing.T) {
	f := &fakeCache{globalPosts: items(2, 300)}
	s, closeFn := newTestSource(t, f)
	defer closeFn()

	chunk, err := s.FetchChunk(context.Background(), feed.NewCursor(), false, seenSet(15))
	if err != nil {
		t.Fatalf("FetchChunk() error: %v", err)
	}
	if chunk.Type != feed.ResultFallback {
		t.Errorf("empty ranking should degrade to fallback, got %v", chunk.Type)
	}
	if got := len(drain(t, chunk)); got != 2 {
		t.Errorf("got %d results, want 2", got)
	}
}

func TestFetchChunkBothSourcesFail(t *testing.T) {
	f := &fakeCache{
		rankedStatus: http.StatusServiceUnavailable,
		globalStatus: http.StatusBadGateway,
	}
	s, closeFn := newTestSource(t, f)
	defer closeFn()

	if _, err := s.FetchChunk(context.Background(), feed.NewCursor(), false, seenSet(15)); err == nil {
		t.Fatal("expected error when both sources fail")
	}
}

func TestFetchChunkDroppedDetails(t *testing.T) {
	f := &fakeCache{
		rankedPosts:    items(3, 400),
		missingDetails: map[uint64]bool{401: true},
	}
	s, closeFn := newTestSource(t, f)
	defer closeFn()

	chunk, err := s.FetchChunk(context.Background(), feed.NewCursor(), false, seenSet(15))
	if err != nil {
		t.Fatalf("FetchChunk() error: %v", err)
	}
	results := drain(t, chunk)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (failed elements stay in the stream)", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("healthy elements must not fail")
	}
	if results[1].Err == nil {
		t.Error("deleted post should surface as a per-element error")
	}
}
