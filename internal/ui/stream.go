package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/reelfeed/internal/bet"
	"github.com/abelbrown/reelfeed/internal/post"
)

// RenderFeed renders the vertical post strip. Posts inside the load
// window carry a preload marker; the cursor row is highlighted.
// toLoad reports whether a given index is inside the preload window.
func RenderFeed(posts []post.Details, cursor, width, height int, toLoad func(int) bool) string {
	if len(posts) == 0 {
		return HelpStyle.Render("Loading your feed...")
	}

	var b strings.Builder
	renderedLines := 0

	availableHeight := height
	if availableHeight < 1 {
		availableHeight = 1
	}

	scrollOffset := 0
	if cursor >= availableHeight {
		scrollOffset = cursor - availableHeight + 1
	}

	for i, p := range posts {
		if i < scrollOffset {
			continue
		}
		if renderedLines >= availableHeight {
			break
		}
		line := renderPostLine(p, i == cursor, toLoad != nil && toLoad(i), width)
		b.WriteString(line)
		b.WriteString("\n")
		renderedLines++
	}

	return b.String()
}

// renderPostLine renders a single post row: preload marker, poster
// badge, description, and view/like/age metadata.
func renderPostLine(p post.Details, selected, preloading bool, width int) string {
	mark := " "
	if preloading {
		mark = PreloadMark.Render("▸")
	}

	badge := PosterBadge.Render(truncateRunes(p.PosterPrincipal, 12))
	badgeWidth := lipgloss.Width(badge)

	meta := fmt.Sprintf("%s  ♥%d  %s", formatCount(p.Views), p.Likes, formatAgeShort(p.CreatedAt))
	metaWidth := utf8.RuneCountInString(meta)

	descWidth := width - badgeWidth - metaWidth - 6
	if descWidth < 16 {
		descWidth = 16
	}
	desc := p.Description
	if desc == "" {
		desc = p.VideoUID
	}
	desc = truncateRunes(desc, descWidth)

	var descStyle lipgloss.Style
	if selected {
		descStyle = SelectedPost
	} else {
		descStyle = NormalPost
	}

	pad := descWidth - utf8.RuneCountInString(desc)
	if pad < 0 {
		pad = 0
	}
	return fmt.Sprintf("%s %s%s%s %s",
		mark, badge, descStyle.Render(desc), strings.Repeat(" ", pad), MetaText.Render(meta))
}

// RenderBetPanel renders the stake overlay for the current post.
func RenderBetPanel(state bet.State, coin bet.Coin, balance uint64, remaining time.Duration, outcome *bet.Outcome, width int) string {
	var body string
	switch state {
	case bet.StateUnknown, bet.StateChecking:
		body = MetaText.Render("checking round...")
	case bet.StateClosed:
		body = MetaText.Render("round closed")
	case bet.StateSubmitted:
		body = MetaText.Render("stake submitted, settling...")
	case bet.StateResolved:
		if outcome == nil {
			body = MetaText.Render("settled")
		} else if outcome.Won {
			body = WinStyle.Render(fmt.Sprintf("WON +%d sats", outcome.Amount)) +
				MetaText.Render(fmt.Sprintf("  balance %d", outcome.UpdatedBalance))
		} else {
			body = LossStyle.Render(fmt.Sprintf("LOST -%d sats", outcome.Amount)) +
				MetaText.Render(fmt.Sprintf("  balance %d", outcome.UpdatedBalance))
		}
	default: // open
		body = fmt.Sprintf("%s %s %s  %s  %s",
			StatusBarKey.Render("H")+StatusBarText.Render("ot / "),
			StatusBarKey.Render("N")+StatusBarText.Render("ot"),
			CoinStyle.Render(fmt.Sprintf("● %d", coin.Amount())),
			MetaText.Render(fmt.Sprintf("balance %d", balance)),
			MetaText.Render("ends in "+formatWindow(remaining)))
	}

	panelWidth := width - 2
	if panelWidth < 24 {
		panelWidth = 24
	}
	return BetPanel.Width(panelWidth).Render(body)
}

// RenderStatusBar renders the bottom status bar with key hints.
func RenderStatusBar(cursor, total int, width int, fetching bool, spin string) string {
	var position string
	if fetching {
		position = " " + spin + " fetching "
	} else {
		position = fmt.Sprintf(" %d/%d ", cursor+1, total)
	}

	keys := []string{
		StatusBarKey.Render("j/k") + StatusBarText.Render(":scroll"),
		StatusBarKey.Render("h/n") + StatusBarText.Render(":stake"),
		StatusBarKey.Render("+/-") + StatusBarText.Render(":coin"),
		StatusBarKey.Render("D") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	keyHints := strings.Join(keys, " ")

	leftWidth := lipgloss.Width(position)
	rightWidth := lipgloss.Width(keyHints)
	padding := width - leftWidth - rightWidth
	if padding < 0 {
		padding = 0
	}

	bar := position + strings.Repeat(" ", padding) + keyHints
	return StatusBar.Width(width).Render(bar)
}

func formatAgeShort(created time.Time) string {
	age := time.Since(created)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

// formatWindow renders the remaining stake window as h:mm.
func formatWindow(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%d:%02d", h, m)
}

func formatCount(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM views", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK views", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d views", n)
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
