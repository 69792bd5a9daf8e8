package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"
)

// fixturePost is one post the fake feed cache serves.
type fixturePost struct {
	CanisterID  string
	PostID      uint64
	Description string
}

var fixturePosts = []fixturePost{
	{CanisterID: "canister-a", PostID: 1, Description: "Fixture clip one"},
	{CanisterID: "canister-a", PostID: 2, Description: "Fixture clip two"},
	{CanisterID: "canister-b", PostID: 7, Description: "Fixture clip three"},
}

// startFeedFixture serves the ML feed cache API on loopback: the cold-start
// ranking returns the fixture posts, the ranked feed reports end-of-feed, and
// the detail endpoint fills in metadata for each identity.
func startFeedFixture() *httptest.Server {
	mux := http.NewServeMux()

	type item struct {
		CanisterID string `json:"canister_id"`
		PostID     uint64 `json:"post_id"`
	}

	mux.HandleFunc("/api/v1/feed/coldstart/clean", func(w http.ResponseWriter, r *http.Request) {
		items := make([]item, len(fixturePosts))
		for i, p := range fixturePosts {
			items[i] = item{CanisterID: p.CanisterID, PostID: p.PostID}
		}
		json.NewEncoder(w).Encode(map[string]any{"posts": items})
	})
	mux.HandleFunc("/api/v1/feed/clean", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"posts": []item{}, "end": true})
	})
	mux.HandleFunc("/api/v1/posts/global", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"posts": []item{}, "end": true})
	})
	mux.HandleFunc("/api/v1/post/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/post/"), "/")
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		for _, p := range fixturePosts {
			if p.CanisterID == parts[0] && fmt.Sprint(p.PostID) == parts[1] {
				json.NewEncoder(w).Encode(map[string]any{
					"canister_id":      p.CanisterID,
					"post_id":          p.PostID,
					"video_uid":        fmt.Sprintf("vid-%d", p.PostID),
					"poster_principal": "poster-principal",
					"description":      p.Description,
					"total_view_count": 1200,
					"like_count":       34,
					"nsfw_probability": 0.01,
					"created_at_secs":  time.Now().Add(-2 * time.Hour).Unix(),
				})
				return
			}
		}
		http.NotFound(w, r)
	})

	return httptest.NewServer(mux)
}

// startSettleFixture serves the settlement worker API: no prior
// participation on any post, so every round opens fresh.
func startSettleFixture() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/participation/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	})
	return httptest.NewServer(mux)
}
