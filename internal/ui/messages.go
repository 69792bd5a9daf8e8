// Package ui provides the Bubble Tea TUI for reelfeed.
package ui

import (
	"time"

	"github.com/abelbrown/reelfeed/internal/bet"
	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/sign"
)

// FeedUpdated is sent when a fetch cycle finishes and the queue changed.
// Carries a snapshot of the whole queue; the model never reads the
// controller directly.
type FeedUpdated struct {
	Posts    []post.Details
	End      bool
	Fetching bool
	// AtCapacity means queue admission hit the session maximum; the
	// viewer must restart the session to keep watching.
	AtCapacity bool
	Err        error
}

// RoundChecked is sent when the stake round state for a post has been
// established.
type RoundChecked struct {
	ID        post.Identity
	State     bet.State
	Remaining time.Duration
	Outcome   *bet.Outcome
	Err       error
}

// StakeResolved is sent when a stake submission settles (or fails).
type StakeResolved struct {
	ID        post.Identity
	Direction sign.Direction
	Amount    uint64
	Outcome   *bet.Outcome
	Balance   uint64
	Err       error
}

// BalanceLoaded is sent at startup with the wallet's current balance.
type BalanceLoaded struct {
	Balance uint64
}
