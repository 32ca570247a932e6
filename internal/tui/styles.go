package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ogctl/ogctl/internal/version"
)

const (
	AppName = "OGCTL"
	RepoURL = "github.com/ogctl/ogctl"
)

// Layout constants for responsive terminal width
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 120
	DefaultWidth     = 80
	DefaultHeight    = 24
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF5F5F") // Red

	TextColor      = lipgloss.Color("#FFFFFF")
	SubtleColor    = lipgloss.Color("#626262")
	BorderColor    = PrimaryColor
	HighlightColor = SecondaryColor
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			Padding(1, 0)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Width(12)

	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	DoorOpenStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	DoorClosedStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	StatusLineStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			PaddingLeft(2)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true).
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ErrorColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2).
			MarginLeft(2)
)

// RenderTitle renders a title with consistent styling
func RenderTitle(text string) string {
	return TitleStyle.Render(text)
}

// RenderSubtitle renders a subtitle with consistent styling
func RenderSubtitle(text string) string {
	return SubtitleStyle.Render(text)
}

// RenderError renders an error message
func RenderError(text string) string {
	return ErrorStyle.Render("✗ " + text)
}

// RenderField renders one "Label  value" row.
func RenderField(label, value string) string {
	return "  " + LabelStyle.Render(label) + ValueStyle.Render(value)
}

// RenderDoor renders the door state in its state colour.
func RenderDoor(open bool) string {
	if open {
		return DoorOpenStyle.Render("▲ OPEN")
	}
	return DoorClosedStyle.Render("▼ CLOSED")
}

// RenderHints renders troubleshooting tips as a bulleted block.
func RenderHints(tips []string) string {
	if len(tips) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("  Troubleshooting:\n")
	for _, tip := range tips {
		fmt.Fprintf(&b, "    • %s\n", tip)
	}
	return b.String()
}

func buildHeaderContent(device string) string {
	left := lipgloss.NewStyle().
		Foreground(TextColor).
		Bold(true).
		Render(AppName + " " + version.Short())

	right := lipgloss.NewStyle().
		Foreground(SubtleColor).
		Render(RepoURL)
	if device != "" {
		right = lipgloss.NewStyle().Foreground(HighlightColor).Render(device)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// RenderApplicationContainer wraps a screen in the shared frame: a header
// with the app name and current device, the screen content, and a footer
// with the context help.
func RenderApplicationContainer(device, content, footerText string, width, height int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	inner := width - 4

	header := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(BorderColor).
		Width(inner).
		Padding(0, 1).
		Render(buildHeaderContent(device))

	footer := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(BorderColor).
		Width(inner).
		Padding(0, 1).
		Foreground(SubtleColor).
		Render(footerText)

	body := lipgloss.NewStyle().Width(inner).Render(content)

	framed := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(width - 2).
		Height(height - 2).
		AlignVertical(lipgloss.Top).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, body, footer))

	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, framed)
}
