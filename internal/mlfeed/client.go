// Package mlfeed talks to the feed cache service: the personalized
// ranking endpoint, the cold-start endpoint for fresh sessions, the
// deterministic global page used as a fallback, and per-post detail
// resolution.
package mlfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/reelfeed/internal/post"
)

// ErrPostNotFound marks a post that no longer exists (deleted by its
// author). Distinct from transport errors: callers drop the post rather
// than abort the chunk.
var ErrPostNotFound = errors.New("mlfeed: post not found")

// Client is an HTTP client for the feed cache service.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a feed cache client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// postItem is the wire identity of a post.
type postItem struct {
	CanisterID string `json:"canister_id"`
	PostID     uint64 `json:"post_id"`
}

// rankedRequest is the request body for the ranking endpoints.
type rankedRequest struct {
	UserPrincipal string     `json:"user_principal_id"`
	NumResults    uint64     `json:"num_results"`
	FilterResults []postItem `json:"filter_results"`
}

// feedResponse is the response body shared by the feed endpoints.
type feedResponse struct {
	Posts []postItem `json:"posts"`
	End   bool       `json:"end,omitempty"`
}

// detailsResponse is the wire form of a post's metadata.
type detailsResponse struct {
	CanisterID      string  `json:"canister_id"`
	PostID          uint64  `json:"post_id"`
	VideoUID        string  `json:"video_uid"`
	PosterPrincipal string  `json:"poster_principal"`
	Description     string  `json:"description"`
	Views           uint64  `json:"total_view_count"`
	Likes           uint64  `json:"like_count"`
	NSFWProbability float64 `json:"nsfw_probability"`
	CreatedAtSecs   int64   `json:"created_at_secs"`
}

// nsfwProbabilityThreshold classifies a post as NSFW for gating.
const nsfwProbabilityThreshold = 0.4

func convertDetails(wire detailsResponse) *post.Details {
	return &post.Details{
		CanisterID:      wire.CanisterID,
		PostID:          wire.PostID,
		VideoUID:        wire.VideoUID,
		PosterPrincipal: wire.PosterPrincipal,
		Description:     wire.Description,
		Views:           wire.Views,
		Likes:           wire.Likes,
		NSFW:            wire.NSFWProbability >= nsfwProbabilityThreshold,
		NSFWProbability: wire.NSFWProbability,
		CreatedAt:       time.Unix(wire.CreatedAtSecs, 0).UTC(),
	}
}

// Ranked fetches up to limit personalized post identities, excluding the
// already-seen set server-side.
func (c *Client) Ranked(ctx context.Context, principal string, limit uint64, exclude []post.Identity, nsfwAllowed bool) ([]post.Identity, error) {
	path := "/api/v1/feed/clean"
	if nsfwAllowed {
		path = "/api/v1/feed/nsfw"
	}
	req := rankedRequest{
		UserPrincipal: principal,
		NumResults:    limit,
		FilterResults: toItems(exclude),
	}
	var resp feedResponse
	if err := c.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return toIdentities(resp.Posts), nil
}

// ColdStart fetches a globally popular page for sessions with no history
// yet. No exclusion list: the caller has nothing to exclude.
func (c *Client) ColdStart(ctx context.Context, principal string, limit uint64, nsfwAllowed bool) ([]post.Identity, error) {
	path := "/api/v1/feed/coldstart/clean"
	if nsfwAllowed {
		path = "/api/v1/feed/coldstart/nsfw"
	}
	var resp feedResponse
	if err := c.postJSON(ctx, path, rankedRequest{UserPrincipal: principal, NumResults: limit}, &resp); err != nil {
		return nil, err
	}
	return toIdentities(resp.Posts), nil
}

// GlobalPage fetches one deterministic page of the global feed. The
// second return value reports whether the feed is exhausted past this
// page.
func (c *Client) GlobalPage(ctx context.Context, start, limit uint64, nsfwAllowed bool) ([]post.Identity, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("rate limiter: %w", err)
	}
	u := fmt.Sprintf("%s/api/v1/posts/global?start=%d&limit=%d&nsfw=%t", c.baseURL, start, limit, nsfwAllowed)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	var resp feedResponse
	if err := c.do(req, &resp); err != nil {
		return nil, false, err
	}
	return toIdentities(resp.Posts), resp.End, nil
}

// GetPostDetails resolves the metadata for one post. Returns
// ErrPostNotFound when the backend reports 404.
func (c *Client) GetPostDetails(ctx context.Context, id post.Identity) (*post.Details, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	u := fmt.Sprintf("%s/api/v1/post/%s/%d", c.baseURL, url.PathEscape(id.CanisterID), id.PostID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed cache error (status %d): %s", resp.StatusCode, string(body))
	}

	var wire detailsResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return convertDetails(wire), nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed cache error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func toItems(ids []post.Identity) []postItem {
	items := make([]postItem, len(ids))
	for i, id := range ids {
		items[i] = postItem{CanisterID: id.CanisterID, PostID: id.PostID}
	}
	return items
}

func toIdentities(items []postItem) []post.Identity {
	ids := make([]post.Identity, len(items))
	for i, it := range items {
		ids[i] = post.Identity{CanisterID: it.CanisterID, PostID: it.PostID}
	}
	return ids
}
