package bet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/sign"
)

// mockClient scripts participation and settlement responses.
type mockClient struct {
	mu sync.Mutex

	participation    *Participation
	participationErr error

	outcome   *Outcome
	submitErr error

	// gate, when non-nil, blocks SubmitStake until closed. Used to hold a
	// submission in flight.
	gate chan struct{}

	submissions int
}

func (m *mockClient) Participation(_ context.Context, _ string, _ post.Identity) (*Participation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participation, m.participationErr
}

func (m *mockClient) SubmitStake(_ context.Context, _ string, _ sign.StakeRequest, _ sign.Signature) (*Outcome, error) {
	m.mu.Lock()
	gate := m.gate
	m.submissions++
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome, m.submitErr
}

func (m *mockClient) submissionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions
}

func okSigner(req sign.StakeRequest) (sign.Signature, error) {
	return sign.Signature("sig"), nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func freshPost() *post.Details {
	return &post.Details{
		CanisterID:      "can-1",
		PostID:          7,
		PosterPrincipal: "poster-1",
		CreatedAt:       fixedNow().Add(-time.Hour),
	}
}

func newTestSession(client *mockClient) *Session {
	w := NewWallet("user-1")
	w.Set(1000)
	return NewSession(client, okSigner, "user-1", w, func() time.Time { return fixedNow() })
}

func TestCheckClassification(t *testing.T) {
	resolved := &Participation{Amount: 50, Outcome: &Outcome{Won: true, Amount: 40, UpdatedBalance: 900}}
	pending := &Participation{Amount: 50}

	tests := []struct {
		name          string
		participation *Participation
		createdAt     time.Time
		want          State
	}{
		{"prior resolved participation", resolved, fixedNow().Add(-time.Hour), StateResolved},
		{"prior pending participation", pending, fixedNow().Add(-time.Hour), StateSubmitted},
		{"no participation, window open", nil, fixedNow().Add(-time.Hour), StateOpen},
		{"no participation, window expired", nil, fixedNow().Add(-StakeWindow - time.Minute), StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(&mockClient{participation: tt.participation})
			d := freshPost()
			d.CreatedAt = tt.createdAt

			state, err := s.Check(context.Background(), d)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if state != tt.want {
				t.Errorf("Check = %v, want %v", state, tt.want)
			}
			// Idempotent: a second check returns the settled state.
			again, err := s.Check(context.Background(), d)
			if err != nil || again != tt.want {
				t.Errorf("second Check = %v, %v; want %v, nil", again, err, tt.want)
			}
		})
	}
}

func TestCheckTransportErrorLeavesUnknown(t *testing.T) {
	client := &mockClient{participationErr: errors.New("worker unreachable")}
	s := newTestSession(client)

	if _, err := s.Check(context.Background(), freshPost()); err == nil {
		t.Fatal("Check must surface transport errors")
	}
	if got := s.State(freshPost().Identity()); got != StateUnknown {
		t.Errorf("state after failed check = %v, want unknown (retryable)", got)
	}
}

func TestPlaceStakeResolvesAndOverwritesBalance(t *testing.T) {
	client := &mockClient{outcome: &Outcome{Won: true, Amount: 40, UpdatedBalance: 1040}}
	s := newTestSession(client)
	d := freshPost()

	if _, err := s.Check(context.Background(), d); err != nil {
		t.Fatalf("Check: %v", err)
	}
	outcome, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, 50)
	if err != nil {
		t.Fatalf("PlaceStake: %v", err)
	}
	if !outcome.Won || outcome.Amount != 40 {
		t.Errorf("outcome = %+v", outcome)
	}
	if got := s.Wallet().Balance(); got != 1040 {
		t.Errorf("balance = %d, want the authoritative 1040", got)
	}
	if got := s.State(d.Identity()); got != StateResolved {
		t.Errorf("state = %v, want resolved", got)
	}
}

// Balance reconciliation is absolute: two sequential outcomes must leave
// the wallet at the second response's balance, never a sum.
func TestBalanceReconciliationIsAbsolute(t *testing.T) {
	client := &mockClient{outcome: &Outcome{Won: true, Amount: 10, UpdatedBalance: 700}}
	s := newTestSession(client)

	first := freshPost()
	if _, err := s.Check(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PlaceStake(context.Background(), first, sign.DirectionHot, 10); err != nil {
		t.Fatal(err)
	}

	client.mu.Lock()
	client.outcome = &Outcome{Won: false, Amount: 20, UpdatedBalance: 680}
	client.mu.Unlock()

	second := freshPost()
	second.PostID = 8
	if _, err := s.Check(context.Background(), second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PlaceStake(context.Background(), second, sign.DirectionNot, 20); err != nil {
		t.Fatal(err)
	}

	if got := s.Wallet().Balance(); got != 680 {
		t.Errorf("balance = %d, want 680 (absolute overwrite, not accumulation)", got)
	}
}

func TestCheckReconcilesZeroBalance(t *testing.T) {
	// A settled loss can legitimately leave the wallet at zero; the
	// authoritative value must overwrite the preload even then.
	client := &mockClient{participation: &Participation{
		Amount:  25,
		Outcome: &Outcome{Won: false, Amount: 25, UpdatedBalance: 0},
	}}
	s := newTestSession(client)

	state, err := s.Check(context.Background(), freshPost())
	if err != nil {
		t.Fatal(err)
	}
	if state != StateResolved {
		t.Fatalf("state = %v, want resolved", state)
	}
	if got := s.Wallet().Balance(); got != 0 {
		t.Errorf("balance = %d, want 0 (authoritative zero must not be skipped)", got)
	}
}

func TestPlaceStakeMutualExclusion(t *testing.T) {
	gate := make(chan struct{})
	client := &mockClient{
		outcome: &Outcome{Won: true, Amount: 5, UpdatedBalance: 995},
		gate:    gate,
	}
	s := newTestSession(client)
	d := freshPost()
	if _, err := s.Check(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, 10)
		done <- err
	}()
	<-started
	// Wait for the first submission to reach the worker.
	for client.submissionCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// A second direction-selection while the first is in flight is
	// rejected without dispatching another submission.
	if _, err := s.PlaceStake(context.Background(), d, sign.DirectionNot, 10); !errors.Is(err, ErrStakePending) {
		t.Errorf("concurrent stake error = %v, want ErrStakePending", err)
	}
	if got := client.submissionCount(); got != 1 {
		t.Errorf("submissions dispatched = %d, want 1", got)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first stake failed: %v", err)
	}
}

func TestPlaceStakeTransportFailureIsRetryable(t *testing.T) {
	client := &mockClient{submitErr: errors.New("worker 502")}
	s := newTestSession(client)
	d := freshPost()
	if _, err := s.Check(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	before := s.Wallet().Balance()

	if _, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, 50); err == nil {
		t.Fatal("PlaceStake must surface the transport error")
	}
	if got := s.Wallet().Balance(); got != before {
		t.Errorf("balance = %d after failed submission, want rollback to %d", got, before)
	}
	if got := s.State(d.Identity()); got != StateOpen {
		t.Fatalf("state = %v after failure, want open for retry", got)
	}

	// The retry reuses the same construction procedure and succeeds.
	client.mu.Lock()
	client.submitErr = nil
	client.outcome = &Outcome{Won: false, Amount: 50, UpdatedBalance: 900}
	client.mu.Unlock()
	if _, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, 50); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := s.Wallet().Balance(); got != 900 {
		t.Errorf("balance = %d after retry, want 900", got)
	}
}

func TestPlaceStakeSigningFailureIsFatal(t *testing.T) {
	client := &mockClient{outcome: &Outcome{}}
	w := NewWallet("user-1")
	w.Set(100)
	s := NewSession(client, func(sign.StakeRequest) (sign.Signature, error) {
		return "", sign.ErrBadKey
	}, "user-1", w, func() time.Time { return fixedNow() })

	d := freshPost()
	if _, err := s.Check(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, 10); !errors.Is(err, sign.ErrBadKey) {
		t.Fatalf("error = %v, want wrapped ErrBadKey", err)
	}
	if got := client.submissionCount(); got != 0 {
		t.Errorf("submission dispatched despite signing failure")
	}
	if got := w.Balance(); got != 100 {
		t.Errorf("balance = %d, want optimistic deduction refunded", got)
	}
}

func TestPlaceStakeGuards(t *testing.T) {
	client := &mockClient{}
	s := newTestSession(client)
	d := freshPost()

	// Not yet checked.
	if _, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, 10); !errors.Is(err, ErrNotOpen) {
		t.Errorf("unchecked stake error = %v, want ErrNotOpen", err)
	}

	// Closed round.
	expired := freshPost()
	expired.PostID = 99
	expired.CreatedAt = fixedNow().Add(-StakeWindow - time.Hour)
	if _, err := s.Check(context.Background(), expired); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PlaceStake(context.Background(), expired, sign.DirectionHot, 10); !errors.Is(err, ErrRoundClosed) {
		t.Errorf("closed-round stake error = %v, want ErrRoundClosed", err)
	}

	// Over the worker maximum.
	if _, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, MaxStakeAmount+1); !errors.Is(err, ErrStakeTooLarge) {
		t.Errorf("oversized stake error = %v, want ErrStakeTooLarge", err)
	}

	// Insufficient funds.
	s.Wallet().Set(5)
	if _, err := s.Check(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PlaceStake(context.Background(), d, sign.DirectionHot, 10); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("underfunded stake error = %v, want ErrInsufficientBalance", err)
	}
	if got := s.State(d.Identity()); got != StateOpen {
		t.Errorf("state = %v after rejected stake, want open", got)
	}
}

func TestTimeRemaining(t *testing.T) {
	s := newTestSession(&mockClient{})
	d := freshPost() // created one hour ago
	if got := s.TimeRemaining(d); got != StakeWindow-time.Hour {
		t.Errorf("TimeRemaining = %v, want %v", got, StakeWindow-time.Hour)
	}
	d.CreatedAt = fixedNow().Add(-StakeWindow - time.Hour)
	if got := s.TimeRemaining(d); got != 0 {
		t.Errorf("TimeRemaining past window = %v, want 0", got)
	}
}
