package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wifibear/capvault/pkg/wifi"
)

var (
	// Colors
	colorVault  = lipgloss.Color("#FF6B35")
	colorGreen  = lipgloss.Color("#00B894")
	colorRed    = lipgloss.Color("#D63031")
	colorYellow = lipgloss.Color("#FDCB6E")
	colorBlue   = lipgloss.Color("#0984E3")
	colorCyan   = lipgloss.Color("#00CEC9")
	colorGray   = lipgloss.Color("#636E72")
	colorWhite  = lipgloss.Color("#DFE6E9")

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			PaddingRight(1)

	// Table styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			PaddingLeft(2)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite).
				Background(lipgloss.Color("#2D3436"))

	// Tabs
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorVault).
			Underline(true)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorGray)

	encWPA2Style = lipgloss.NewStyle().Foreground(colorGreen)
	encWPAStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	encWEPStyle  = lipgloss.NewStyle().Foreground(colorRed)
	encOpenStyle = lipgloss.NewStyle().Foreground(colorGray)

	// Handshake kinds
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	partialStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	progressStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	// Key bindings help
	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorVault)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)

// EncryptionColor returns styled encryption text. Combined labels take the
// colour of their strongest part.
func EncryptionColor(enc string) string {
	switch {
	case strings.HasPrefix(enc, "WPA2"):
		return encWPA2Style.Render(enc)
	case strings.HasPrefix(enc, "WPA"):
		return encWPAStyle.Render(enc)
	case enc == "WEP":
		return encWEPStyle.Render(enc)
	case enc == "Open":
		return encOpenStyle.Render(enc)
	default:
		return enc
	}
}

// HandshakeBadge returns a short styled marker for a capture kind.
func HandshakeBadge(kind wifi.HandshakeKind) string {
	switch kind {
	case wifi.PMKIDCapture:
		return successStyle.Render("PMKID")
	case wifi.HandshakeComplete:
		return successStyle.Render("FULL")
	case wifi.HandshakePartial:
		return partialStyle.Render("PART")
	default:
		return dimStyle.Render("-")
	}
}
