package feed

import (
	"context"

	"github.com/abelbrown/reelfeed/internal/post"
)

// ResultType tags which source produced a chunk.
type ResultType int

const (
	// ResultMLFeed means the personalized ranking service produced the chunk.
	ResultMLFeed ResultType = iota
	// ResultFallback means the deterministic chain-cursor feed produced it
	// (the ranking service was exhausted or degraded). On receiving a
	// fallback chunk the caller must advance its cursor by the page size
	// and reset the page size to the default.
	ResultFallback
)

func (t ResultType) String() string {
	if t == ResultMLFeed {
		return "ml_feed"
	}
	return "fallback"
}

// PostResult is one element of a chunk's lazy stream. Each element may
// independently fail (network or decoding), in which case Err is set and
// Details is nil; a failed element does not abort the rest of the stream.
type PostResult struct {
	Details *post.Details
	Err     error
}

// Chunk is the response to one fetch call. Posts is a finite stream,
// closed by the producer when the chunk is exhausted.
type Chunk struct {
	Posts <-chan PostResult
	Type  ResultType
	End   bool
}

// RankedSource supplies chunks of posts from the hybrid ranked/fallback
// feed. The seen set is advisory - the source may use it for server-side
// exclusion, but callers must not rely on it for dedup.
type RankedSource interface {
	FetchChunk(ctx context.Context, cursor Cursor, nsfwAllowed bool, seen []post.Identity) (*Chunk, error)
}

// SliceChunk builds a Chunk whose stream yields the given results in
// order. Used by sources that buffer a whole page, and by tests.
func SliceChunk(results []PostResult, typ ResultType, end bool) *Chunk {
	ch := make(chan PostResult, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	return &Chunk{Posts: ch, Type: typ, End: end}
}
