package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorDanger    = lipgloss.Color("196") // Red
	colorGold      = lipgloss.Color("220") // Stake coin
)

// SelectedPost style for the post currently in the viewport.
var SelectedPost = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalPost style for posts outside the viewport.
var NormalPost = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// PreloadMark style for the marker on posts inside the load window.
var PreloadMark = lipgloss.NewStyle().
	Foreground(colorSuccess)

// PosterBadge style for the poster principal badge.
var PosterBadge = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Background(lipgloss.Color("236")).
	Padding(0, 1).
	MarginRight(1)

// MetaText style for views, likes, and age columns.
var MetaText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// BetPanel style for the stake overlay under the current post.
var BetPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(0, 1)

// CoinStyle for the selected stake preset.
var CoinStyle = lipgloss.NewStyle().
	Foreground(colorGold).
	Bold(true)

// WinStyle for won outcomes.
var WinStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// LossStyle for lost outcomes.
var LossStyle = lipgloss.NewStyle().
	Foreground(colorDanger)

// EndBanner style for the end-of-feed notice.
var EndBanner = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true).
	Padding(1, 2)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// DebugPanel style for the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorMuted).
	Padding(1, 2)

// DebugHeaderStyle for debug overlay section headers.
var DebugHeaderStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)
