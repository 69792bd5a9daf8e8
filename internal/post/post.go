// Package post defines the identity and metadata types for playable video
// items. An Identity is the unique key used for queue membership, cache
// lookups, and per-post game state throughout the pipeline.
package post

import (
	"fmt"
	"strings"
	"time"
)

// Identity uniquely identifies a playable video item: the canister (account)
// that hosts it plus the post's numeric id within that canister.
// Immutable and comparable - used directly as a map key.
type Identity struct {
	CanisterID string
	PostID     uint64
}

// String renders the identity as "canister/post-id", the form used in
// routes and log lines.
func (id Identity) String() string {
	return fmt.Sprintf("%s/%d", id.CanisterID, id.PostID)
}

// Less provides the total order (CanisterID, PostID) used for deterministic
// tie-breaking wherever identities must be sorted.
func (id Identity) Less(other Identity) bool {
	if c := strings.Compare(id.CanisterID, other.CanisterID); c != 0 {
		return c < 0
	}
	return id.PostID < other.PostID
}

// Details is the full metadata record for a post, associated 1:1 with an
// Identity. Immutable once fetched, except Views and Likes which may be
// refreshed (last-write-wins; counters are not correctness-critical).
type Details struct {
	CanisterID      string
	PostID          uint64
	VideoUID        string
	PosterPrincipal string
	Description     string
	Views           uint64
	Likes           uint64
	NSFW            bool
	NSFWProbability float64
	CreatedAt       time.Time
}

// Identity returns the unique key for this post.
func (d *Details) Identity() Identity {
	return Identity{CanisterID: d.CanisterID, PostID: d.PostID}
}
