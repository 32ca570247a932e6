package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Detail is one key/value row in a result box.
type Detail struct {
	Key   string
	Value string
}

// Result is a bordered success, failure or warning box.
type Result struct {
	Type            ResultType
	Title           string
	Details         []Detail
	Error           error
	Troubleshooting []string
	Action          string // command suggested as the next step
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{Type: ResultFailure, Title: title, Error: err, Troubleshooting: troubleshooting, Width: GetTerminalWidth()}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a row.
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Detail{Key: key, Value: value})
	return r
}

// SetAction sets the suggested next command.
func (r *Result) SetAction(cmd string) *Result {
	r.Action = cmd
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := clampWidth(r.Width)

	var (
		color  lipgloss.Color
		title  string
		titleS lipgloss.Style
	)
	switch r.Type {
	case ResultFailure:
		color, titleS = ErrorColor, ErrorTitleStyle
		title = fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)
	case ResultWarning:
		color, titleS = WarningColor, WarningTitleStyle
		title = fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title)
	default:
		color, titleS = SuccessColor, SuccessTitleStyle
		title = fmt.Sprintf("   %s  %s", SuccessMarker, r.Title)
	}

	lines := []string{"", titleS.Render(title), ""}

	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(width), "")
	}

	if r.Action != "" {
		lines = append(lines, "   "+MutedStyle.Render("Next: ")+ActionStyle.Render(r.Action), "")
	}

	return boxStyle(color, width).Render(strings.Join(lines, "\n"))
}

func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	innerWidth := width - 12
	if innerWidth < 40 {
		innerWidth = 40
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(innerWidth).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
