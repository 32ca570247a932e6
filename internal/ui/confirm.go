package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Prompter asks the user questions on a terminal.
type Prompter struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool // answer yes to every confirmation (--yes)
	Width     int

	reader *bufio.Reader
}

// NewPrompter creates a prompter. Nil in/out default to stdin/stderr.
func NewPrompter(in io.Reader, out io.Writer, assumeYes bool) *Prompter {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	return &Prompter{In: in, Out: out, AssumeYes: assumeYes, Width: GetTerminalWidth()}
}

func (p *Prompter) lineReader() *bufio.Reader {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	return p.reader
}

func (p *Prompter) renderWarning(title string, warnings []string) {
	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("   %s  %s", WarningMarker, title)), ""}
	for _, w := range warnings {
		lines = append(lines, lipgloss.NewStyle().Foreground(TextColor).Render("   • "+w))
	}
	if len(warnings) > 0 {
		lines = append(lines, "")
	}
	_, _ = fmt.Fprintln(p.Out, boxStyle(WarningColor, clampWidth(p.Width)).Render(strings.Join(lines, "\n")))
}

// Confirm shows a warning box and asks for y/N. Anything but "y" or "yes"
// declines.
func (p *Prompter) Confirm(title string, warnings ...string) bool {
	if p.AssumeYes {
		return true
	}
	p.renderWarning(title, warnings)

	answer, err := p.Line("Continue? [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		_, _ = fmt.Fprintln(p.Out, MutedStyle.Render("  Cancelled."))
		return false
	}
}

// ConfirmTyped requires the user to type word exactly. Used for operations
// that cannot be undone, such as a factory reset.
func (p *Prompter) ConfirmTyped(title string, warnings []string, word string) bool {
	if p.AssumeYes {
		return true
	}
	p.renderWarning(title, warnings)

	answer, err := p.Line(fmt.Sprintf("To proceed, type %q and press Enter: ", word))
	if err != nil || answer != word {
		_, _ = fmt.Fprintln(p.Out, MutedStyle.Render("  Cancelled."))
		return false
	}
	return true
}

// Line prints prompt and reads one trimmed line.
func (p *Prompter) Line(prompt string) (string, error) {
	_, _ = fmt.Fprint(p.Out, WarningTitleStyle.Render(prompt))
	input, err := p.lineReader().ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		_, _ = fmt.Fprintln(p.Out)
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// Secret reads a value without echo when In is a terminal, otherwise it
// falls back to Line.
func (p *Prompter) Secret(prompt string) (string, error) {
	f, ok := p.In.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.Line(prompt)
	}

	_, _ = fmt.Fprint(p.Out, WarningTitleStyle.Render(prompt))
	b, err := term.ReadPassword(int(f.Fd()))
	_, _ = fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
