// Package bet implements the per-post stake protocol: discovering whether
// a post's stake round is open, accepting the user's directional stake,
// signing and submitting the request, and reconciling the settled outcome
// exactly once.
package bet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/sign"
)

const (
	// StakeWindow is how long after a post's creation stakes are accepted.
	StakeWindow = 48 * time.Hour

	// MaxStakeAmount is the largest stake the worker accepts, in sats.
	MaxStakeAmount = 200
)

// State is the lifecycle of one (user, post) stake round.
type State int

const (
	// StateUnknown: the post has not been checked yet.
	StateUnknown State = iota
	// StateChecking: the participation query is in flight.
	StateChecking
	// StateClosed: the window expired with no participation. Terminal.
	StateClosed
	// StateOpen: no prior participation and the window is open.
	StateOpen
	// StateSubmitted: a stake submission is in flight, or a prior stake
	// awaits settlement. At most one submission per post at a time.
	StateSubmitted
	// StateResolved: the outcome is known and the balance reconciled.
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateSubmitted:
		return "submitted"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Outcome is a settled stake result. Amount is always non-negative: the
// amount won or lost. UpdatedBalance is the authoritative post-settlement
// balance, an absolute value the client trusts outright.
type Outcome struct {
	Won            bool
	Amount         uint64
	UpdatedBalance uint64
}

// Participation is a user's existing stake on a post, as reported by the
// settlement backend. Outcome is nil while settlement is pending.
type Participation struct {
	Direction sign.Direction
	Amount    uint64
	PlacedAt  time.Time
	Outcome   *Outcome
}

// SettlementClient is the boundary to the settlement worker.
type SettlementClient interface {
	// Participation returns the user's existing stake on the post, or
	// nil if the user has not participated.
	Participation(ctx context.Context, principal string, id post.Identity) (*Participation, error)
	// SubmitStake submits a signed stake and returns the settled outcome.
	SubmitStake(ctx context.Context, principal string, req sign.StakeRequest, sig sign.Signature) (*Outcome, error)
}

// SignFunc signs a stake request with the session identity's key.
type SignFunc func(sign.StakeRequest) (sign.Signature, error)

var (
	// ErrStakePending rejects a second direction-selection while a
	// submission for the same post is in flight. A guard, not a failure
	// reported to the backend.
	ErrStakePending = errors.New("bet: stake already submitted for this post")
	// ErrRoundClosed rejects stakes outside the post's window.
	ErrRoundClosed = errors.New("bet: stake round is closed")
	// ErrNotOpen rejects stakes on a post whose round state has not been
	// established yet.
	ErrNotOpen = errors.New("bet: stake round not open")
	// ErrStakeTooLarge rejects stakes above the worker maximum.
	ErrStakeTooLarge = errors.New("bet: stake exceeds maximum")
	// ErrInsufficientBalance rejects stakes the wallet cannot cover.
	ErrInsufficientBalance = errors.New("bet: insufficient balance")
)

// game is the state for one (user, post) round.
type game struct {
	state         State
	participation *Participation
}

// Session runs the stake protocol for one user across the posts they
// view. Collaborators arrive via the constructor; nothing is pulled from
// ambient state.
//
// Balance reconciliation is tied to the session, not to any view: a
// submission in flight when the UI moves on still settles and overwrites
// the wallet.
type Session struct {
	client    SettlementClient
	signFn    SignFunc
	principal string
	wallet    *Wallet
	now       func() time.Time

	mu    sync.Mutex
	games map[post.Identity]*game
}

// NewSession creates a stake session for principal. now may be nil for
// time.Now; tests inject a fixed clock.
func NewSession(client SettlementClient, signFn SignFunc, principal string, wallet *Wallet, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		client:    client,
		signFn:    signFn,
		principal: principal,
		wallet:    wallet,
		now:       now,
		games:     make(map[post.Identity]*game),
	}
}

// Wallet returns the session's wallet for read-only display.
func (s *Session) Wallet() *Wallet { return s.wallet }

// State returns the current round state for the post.
func (s *Session) State(id post.Identity) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[id]; ok {
		return g.state
	}
	return StateUnknown
}

// ParticipationFor returns the known participation record for the post,
// or nil.
func (s *Session) ParticipationFor(id post.Identity) *Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[id]; ok {
		return g.participation
	}
	return nil
}

// TimeRemaining returns how long the post's stake round stays open.
// Zero once the window has passed.
func (s *Session) TimeRemaining(d *post.Details) time.Duration {
	deadline := d.CreatedAt.Add(StakeWindow)
	remaining := deadline.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Check establishes the round state for a post that just became current:
// it queries existing participation and classifies the round as resolved,
// awaiting settlement, open, or closed. Idempotent - a post already past
// Unknown is returned as-is without re-querying.
//
// A transport error leaves the post in Unknown so the next viewing
// retries the check.
func (s *Session) Check(ctx context.Context, d *post.Details) (State, error) {
	id := d.Identity()

	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		g = &game{state: StateUnknown}
		s.games[id] = g
	}
	if g.state != StateUnknown {
		state := g.state
		s.mu.Unlock()
		return state, nil
	}
	g.state = StateChecking
	s.mu.Unlock()

	participation, err := s.client.Participation(ctx, s.principal, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		g.state = StateUnknown
		return StateUnknown, fmt.Errorf("participation check: %w", err)
	}
	switch {
	case participation != nil && participation.Outcome != nil:
		g.state = StateResolved
		g.participation = participation
		// A settled record always carries the authoritative balance,
		// including zero. The preload value is never trusted over it.
		s.wallet.Set(participation.Outcome.UpdatedBalance)
	case participation != nil:
		g.state = StateSubmitted
		g.participation = participation
	case s.now().Before(d.CreatedAt.Add(StakeWindow)):
		g.state = StateOpen
	default:
		g.state = StateClosed
	}
	return g.state, nil
}

// PlaceStake submits the user's directional stake on the post. Exactly
// one submission is permitted per post: a second call while one is in
// flight returns ErrStakePending. On a transport failure the round
// returns to Open and the optimistic deduction is refunded, so the user
// may retry with the same construction procedure. A signing failure is
// fatal to the attempt and is never retried internally.
//
// On success the wallet is overwritten with the authoritative balance
// from the settlement response.
func (s *Session) PlaceStake(ctx context.Context, d *post.Details, direction sign.Direction, amount uint64) (*Outcome, error) {
	if amount > MaxStakeAmount {
		return nil, fmt.Errorf("%w: %d > %d", ErrStakeTooLarge, amount, MaxStakeAmount)
	}
	id := d.Identity()

	s.mu.Lock()
	g, ok := s.games[id]
	if !ok || g.state == StateUnknown || g.state == StateChecking {
		s.mu.Unlock()
		return nil, ErrNotOpen
	}
	switch g.state {
	case StateSubmitted:
		s.mu.Unlock()
		return nil, ErrStakePending
	case StateClosed, StateResolved:
		s.mu.Unlock()
		return nil, ErrRoundClosed
	}
	// Open -> Submitted before any suspension: the transition itself is
	// the mutual-exclusion guard.
	g.state = StateSubmitted
	s.mu.Unlock()

	if !s.wallet.DeductOptimistic(amount) {
		s.setState(id, StateOpen)
		return nil, ErrInsufficientBalance
	}

	req := sign.StakeRequest{
		PublisherPrincipal: d.PosterPrincipal,
		PostID:             d.PostID,
		Amount:             amount,
		Direction:          direction,
	}
	sig, err := s.signFn(req)
	if err != nil {
		s.wallet.Refund(amount)
		s.setState(id, StateOpen)
		return nil, fmt.Errorf("stake signing: %w", err)
	}

	outcome, err := s.client.SubmitStake(ctx, s.principal, req, sig)
	if err != nil {
		s.wallet.Refund(amount)
		s.setState(id, StateOpen)
		return nil, fmt.Errorf("stake submission: %w", err)
	}

	s.mu.Lock()
	g.state = StateResolved
	g.participation = &Participation{
		Direction: direction,
		Amount:    amount,
		PlacedAt:  s.now(),
		Outcome:   outcome,
	}
	s.mu.Unlock()

	// Authoritative overwrite, never an increment.
	s.wallet.Set(outcome.UpdatedBalance)
	return outcome, nil
}

func (s *Session) setState(id post.Identity, state State) {
	s.mu.Lock()
	if g, ok := s.games[id]; ok {
		g.state = state
	}
	s.mu.Unlock()
}
