package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is the banner printed before a command's output.
type Header struct {
	Title   string   // e.g. "GARAGE"
	Command string   // e.g. "ogctl status"
	Params  []Detail // e.g. {"Connection", "IP 192.168.1.40"}
	Width   int
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params ...Detail) *Header {
	return &Header{Title: title, Command: command, Params: params, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command),
	)

	content := top
	if len(h.Params) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", width-6))

		params := make([]string, 0, len(h.Params))
		for _, p := range h.Params {
			params = append(params, HeaderParamKeyStyle.Render(p.Key+":")+" "+HeaderParamValueStyle.Render(p.Value))
		}
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, strings.Join(params, "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
