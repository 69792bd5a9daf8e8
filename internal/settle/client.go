// Package settle talks to the settlement worker: querying a user's
// existing participation on a post and submitting signed stakes to the
// v3 endpoint.
package settle

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

	"github.com/abelbrown/reelfeed/internal/bet"
	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/sign"
)

// ErrInsufficientFunds is the worker's rejection of a stake the user's
// server-side balance cannot cover. Distinct from transport errors: the
// stake is definitively rejected, not retryable as-is.
var ErrInsufficientFunds = errors.New("settle: insufficient funds")

// Client is an HTTP client for the settlement worker. Implements
// bet.SettlementClient.
type Client struct {
	baseURL string
	jwt     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a settlement client. The JWT authenticates every
// request to the worker.
func NewClient(baseURL, jwt string) *Client {
	return &Client{
		baseURL: baseURL,
		jwt:     jwt,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 2),
	}
}

// participationResponse is the wire form of an existing stake. The
// endpoint returns a JSON null body when the user has not participated.
type participationResponse struct {
	Direction uint8            `json:"direction"`
	Amount    uint64           `json:"vote_amount"`
	PlacedAt  int64            `json:"placed_at_secs"`
	Result    *outcomeResponse `json:"result,omitempty"`
}

// outcomeResponse is the wire form of a settled game result. Balance is
// the authoritative post-settlement balance, not a delta.
type outcomeResponse struct {
	Status         string `json:"status"` // "win" or "loss"
	Amount         uint64 `json:"amount"`
	UpdatedBalance uint64 `json:"updated_balance"`
}

// stakeEnvelope is the v3 submission body: the canonical request plus
// the sender's signature over its canonical byte encoding.
type stakeEnvelope struct {
	Request   sign.StakeRequest `json:"request"`
	Signature sign.Signature    `json:"signature"`
}

// workerError is the worker's structured rejection body.
type workerError struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

// Participation returns the user's existing stake on the post, or nil
// if the user has not participated in this round.
func (c *Client) Participation(ctx context.Context, principal string, id post.Identity) (*bet.Participation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	u := fmt.Sprintf("%s/v3/participation/%s/%s/%d",
		c.baseURL, url.PathEscape(principal), url.PathEscape(id.CanisterID), id.PostID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}

	var wire participationResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	p := &bet.Participation{
		Direction: sign.Direction(wire.Direction),
		Amount:    wire.Amount,
		PlacedAt:  time.Unix(wire.PlacedAt, 0).UTC(),
	}
	if wire.Result != nil {
		p.Outcome = convertOutcome(wire.Result)
	}
	return p, nil
}

// SubmitStake submits a signed stake. The worker settles synchronously
// and returns the outcome with the user's authoritative balance.
func (c *Client) SubmitStake(ctx context.Context, principal string, stakeReq sign.StakeRequest, sig sign.Signature) (*bet.Outcome, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	jsonBody, err := json.Marshal(stakeEnvelope{Request: stakeReq, Signature: sig})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	u := fmt.Sprintf("%s/v3/vote/%s", c.baseURL, url.PathEscape(principal))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var wire outcomeResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return convertOutcome(&wire), nil
}

// do executes the request and returns the response body. A 400 carrying
// the worker's insufficient-funds code maps to ErrInsufficientFunds.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var we workerError
	if json.Unmarshal(body, &we) == nil && we.Code == "insufficient_funds" {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, we.Msg)
	}
	return nil, fmt.Errorf("settlement worker error (status %d): %s", resp.StatusCode, string(body))
}

func convertOutcome(wire *outcomeResponse) *bet.Outcome {
	return &bet.Outcome{
		Won:            wire.Status == "win",
		Amount:         wire.Amount,
		UpdatedBalance: wire.UpdatedBalance,
	}
}
