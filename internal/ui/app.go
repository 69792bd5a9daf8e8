package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/reelfeed/internal/bet"
	"github.com/abelbrown/reelfeed/internal/feed"
	"github.com/abelbrown/reelfeed/internal/otel"
	"github.com/abelbrown/reelfeed/internal/post"
	"github.com/abelbrown/reelfeed/internal/sign"
)

// roundView is the UI-side snapshot of one post's stake round.
type roundView struct {
	state     bet.State
	remaining time.Duration
	outcome   *bet.Outcome
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold the controller or the bet session. It
// receives queue snapshots and round states via messages; writes go
// through the injected command functions.
type App struct {
	viewport   *feed.Viewport
	checkRound func(d *post.Details) tea.Cmd
	placeStake func(d *post.Details, dir sign.Direction, amount uint64) tea.Cmd

	posts      []post.Details
	cursor     int
	end        bool
	fetching   bool
	atCapacity bool
	err        error

	rounds  map[post.Identity]roundView
	coin    bet.Coin
	balance uint64

	spin      spinner.Model
	ring      *otel.RingBuffer
	showDebug bool

	width  int
	height int
	ready  bool
}

// NewApp creates a new App.
// viewport: scroll tracker wired to the controller and fetch requests
// checkRound: returns a Cmd that establishes a post's round state
// placeStake: returns a Cmd that submits a stake
// ring: optional ring buffer for the debug overlay (nil to disable)
func NewApp(viewport *feed.Viewport, checkRound func(d *post.Details) tea.Cmd, placeStake func(d *post.Details, dir sign.Direction, amount uint64) tea.Cmd, ring *otel.RingBuffer) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return App{
		viewport:   viewport,
		checkRound: checkRound,
		placeStake: placeStake,
		rounds:     make(map[post.Identity]roundView),
		coin:       bet.DefaultCoinLoggedIn,
		spin:       sp,
		ring:       ring,
	}
}

// Init starts the spinner.
func (a App) Init() tea.Cmd {
	return a.spin.Tick
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case FeedUpdated:
		a.posts = msg.Posts
		a.end = msg.End
		a.fetching = msg.Fetching
		a.atCapacity = msg.AtCapacity
		if msg.Err != nil {
			a.err = msg.Err
		}
		if a.cursor >= len(a.posts) && len(a.posts) > 0 {
			a.cursor = len(a.posts) - 1
		}
		// The first snapshot establishes the round for the first post.
		if a.cursor < len(a.posts) {
			if _, checked := a.rounds[a.posts[a.cursor].Identity()]; !checked {
				return a, a.check(a.cursor)
			}
		}
		return a, nil

	case RoundChecked:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.rounds[msg.ID] = roundView{state: msg.State, remaining: msg.Remaining, outcome: msg.Outcome}
		return a, nil

	case StakeResolved:
		if msg.Err != nil {
			a.err = msg.Err
			// Round returned to open; allow retrying.
			if rv, ok := a.rounds[msg.ID]; ok {
				rv.state = bet.StateOpen
				a.rounds[msg.ID] = rv
			}
			return a, nil
		}
		a.rounds[msg.ID] = roundView{state: bet.StateResolved, outcome: msg.Outcome}
		a.balance = msg.Balance
		return a, nil

	case BalanceLoaded:
		a.balance = msg.Balance
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if otel.TraceEnabled() && a.ring != nil {
		a.ring.Push(otel.Event{
			Time: time.Now(), Level: otel.LevelDebug,
			Kind: otel.KindKeyPress, Comp: "ui", Msg: msg.String(),
		})
	}

	if a.err != nil {
		a.err = nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.cursor < len(a.posts)-1 {
			a.cursor++
			return a, a.onScroll()
		}
		return a, nil

	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
			return a, a.onScroll()
		}
		return a, nil

	case "g", "home":
		if a.cursor != 0 {
			a.cursor = 0
			return a, a.onScroll()
		}
		return a, nil

	case "h":
		return a, a.stake(sign.DirectionHot)

	case "n":
		return a, a.stake(sign.DirectionNot)

	case "+", "=":
		a.coin = a.coin.Next()
		return a, nil

	case "-", "_":
		a.coin = a.coin.Prev()
		return a, nil

	case "D":
		a.showDebug = !a.showDebug
		return a, nil
	}

	return a, nil
}

// onScroll reports the new viewport position and establishes the round
// state for the post that just became current.
func (a App) onScroll() tea.Cmd {
	if a.viewport != nil {
		a.viewport.OnIntersection(a.cursor)
	}
	if a.cursor < len(a.posts) {
		if _, checked := a.rounds[a.posts[a.cursor].Identity()]; !checked {
			return a.check(a.cursor)
		}
	}
	return nil
}

func (a App) check(idx int) tea.Cmd {
	if a.checkRound == nil || idx >= len(a.posts) {
		return nil
	}
	p := a.posts[idx]
	return a.checkRound(&p)
}

// stake submits a stake on the current post if its round is open.
func (a App) stake(dir sign.Direction) tea.Cmd {
	if a.placeStake == nil || a.cursor >= len(a.posts) {
		return nil
	}
	p := a.posts[a.cursor]
	rv, ok := a.rounds[p.Identity()]
	if !ok || rv.state != bet.StateOpen {
		return nil
	}
	// Optimistic transition so a second keypress before the result
	// arrives does nothing.
	rv.state = bet.StateSubmitted
	a.rounds[p.Identity()] = rv
	return a.placeStake(&p, dir, a.coin.Amount())
}

// View renders the feed strip, the stake panel for the current post,
// and the status bar.
func (a App) View() string {
	if !a.ready {
		return "Starting reelfeed..."
	}

	if a.showDebug {
		return debugOverlay(a.ring, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	// Reserve lines: bet panel (3 with border) + status bar (1).
	feedHeight := a.height - 5
	if (a.end || a.atCapacity) && a.cursor == len(a.posts)-1 {
		feedHeight--
	}
	if a.err != nil {
		feedHeight--
	}

	var toLoad func(int) bool
	if a.viewport != nil {
		toLoad = a.viewport.ToLoad
	}
	view := RenderFeed(a.posts, a.cursor, a.width, feedHeight, toLoad)

	if a.cursor < len(a.posts) {
		rv := a.rounds[a.posts[a.cursor].Identity()]
		view += RenderBetPanel(rv.state, a.coin, a.balance, rv.remaining, rv.outcome, a.width) + "\n"
	}

	if a.end && a.cursor == len(a.posts)-1 {
		view += EndBanner.Render("You have reached the end!") + "\n"
	} else if a.atCapacity && a.cursor == len(a.posts)-1 {
		view += EndBanner.Render("Session full. Restart reelfeed to keep watching.") + "\n"
	}

	if a.err != nil {
		view += ErrorStyle.Render("Error: "+a.err.Error()) + "\n"
	}

	view += RenderStatusBar(a.cursor, len(a.posts), a.width, a.fetching, a.spin.View())
	return view
}
