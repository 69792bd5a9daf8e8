package mlfeed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/reelfeed/internal/feed"
	"github.com/abelbrown/reelfeed/internal/otel"
	"github.com/abelbrown/reelfeed/internal/post"
)

const (
	// coldStartQueueMin is the seen-set size below which a session is
	// still cold and the ranking service has nothing to personalize on.
	coldStartQueueMin = 10
	// coldStartLimit is the page size for cold-start fetches.
	coldStartLimit = 30
	// detailConcurrency bounds parallel detail resolution per chunk.
	detailConcurrency = 8
)

// HybridSource implements feed.RankedSource over the feed cache
// service. Each fetch tries the personalized ranking first (cold-start
// page for fresh sessions) and degrades to one deterministic global page
// when the ranking call fails or comes back empty.
type HybridSource struct {
	client    *Client
	principal string
	logger    *otel.Logger
}

// NewHybridSource creates a source fetching on behalf of principal.
// If logger is nil, events are discarded.
func NewHybridSource(client *Client, principal string, logger *otel.Logger) *HybridSource {
	if logger == nil {
		logger = otel.NewNullLogger()
	}
	return &HybridSource{client: client, principal: principal, logger: logger}
}

// FetchChunk fetches one chunk of post identities and resolves their
// details concurrently into the chunk's stream. Individual resolution
// failures become per-element errors; only a failure of both the ranked
// and the fallback identity fetch fails the whole chunk.
func (s *HybridSource) FetchChunk(ctx context.Context, cursor feed.Cursor, nsfwAllowed bool, seen []post.Identity) (*feed.Chunk, error) {
	start := time.Now()

	var (
		ids []post.Identity
		err error
	)
	if len(seen) < coldStartQueueMin {
		ids, err = s.client.ColdStart(ctx, s.principal, coldStartLimit, nsfwAllowed)
	} else {
		ids, err = s.client.Ranked(ctx, s.principal, cursor.Limit, seen, nsfwAllowed)
	}

	typ := feed.ResultMLFeed
	end := false
	if err != nil || len(ids) == 0 {
		if err != nil {
			s.logger.Emit(otel.Event{Kind: otel.KindFetchFallback, Level: otel.LevelWarn, Comp: "mlfeed", Err: err.Error()})
		} else {
			s.logger.Emit(otel.Event{Kind: otel.KindFetchFallback, Level: otel.LevelInfo, Comp: "mlfeed", Msg: "ranking returned no posts"})
		}
		typ = feed.ResultFallback
		// Page size follows the cursor so the controller's advance (by
		// cursor.Limit) matches exactly what this call consumed.
		ids, end, err = s.client.GlobalPage(ctx, cursor.Start, cursor.Limit, nsfwAllowed)
		if err != nil {
			return nil, fmt.Errorf("fallback page: %w", err)
		}
	}

	out := make(chan feed.PostResult, len(ids))
	go s.resolve(ctx, ids, nsfwAllowed, out, typ, start)
	return &feed.Chunk{Posts: out, Type: typ, End: end}, nil
}

// resolve fetches details for each identity with bounded parallelism and
// streams the results in the ranking's order.
func (s *HybridSource) resolve(ctx context.Context, ids []post.Identity, nsfwAllowed bool, out chan<- feed.PostResult, typ feed.ResultType, start time.Time) {
	defer close(out)

	results := make([]feed.PostResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			d, err := s.client.GetPostDetails(gctx, id)
			switch {
			case err != nil:
				results[i] = feed.PostResult{Err: fmt.Errorf("details %s: %w", id, err)}
			case !nsfwAllowed && d.NSFW:
				s.logger.Emit(otel.Event{Kind: otel.KindFeedDrop, Level: otel.LevelDebug, Comp: "mlfeed", Post: id.String(), Msg: "nsfw"})
				results[i] = feed.PostResult{Err: fmt.Errorf("details %s: filtered nsfw", id)}
			default:
				results[i] = feed.PostResult{Details: d}
			}
			// Per-element failures never abort the rest of the chunk.
			return nil
		})
	}
	_ = g.Wait()

	resolved := 0
	for _, r := range results {
		if r.Err == nil {
			resolved++
		}
		out <- r
	}
	s.logger.Emit(otel.Event{
		Kind:   otel.KindFetchComplete,
		Level:  otel.LevelInfo,
		Comp:   "mlfeed",
		Source: typ.String(),
		Count:  resolved,
		Dur:    time.Since(start),
	})
}
