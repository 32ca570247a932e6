package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ogctl/ogctl/internal/controller"
)

// Printer writes styled output.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Width returns the width used for boxes.
func (p *Printer) Width() int {
	return p.width
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Detail) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// PrintWarning prints a warning box.
func (p *Printer) PrintWarning(title string, details ...Detail) {
	p.Println(NewWarningResult(title, details...).SetWidth(p.width).Render())
}

// PrintError prints a failure box with the troubleshooting hint for err and,
// when the error points at device configuration, the settings command to run.
func (p *Printer) PrintError(title string, err error) {
	r := NewFailureResult(title, shortError(err), hintLines(err)).SetWidth(p.width)
	r.SetAction(SettingsAction(err))
	p.Println(r.Render())
}

// PrintOutcome prints a write result. Failed outcomes render as an error box
// titled with the outcome title.
func (p *Printer) PrintOutcome(action string, o controller.Outcome) {
	if o.Success {
		p.PrintSuccess(action)
		return
	}
	p.PrintError(o.Title, controller.NewProtocolError(o))
}

// SettingsAction returns the command that fixes the device settings behind
// err, or "" when err is not a configuration problem.
func SettingsAction(err error) string {
	if !controller.SuggestsSettings(err) {
		return ""
	}
	if controller.IsAuthError(err) {
		return "ogctl device set --prompt-key"
	}
	return "ogctl device set --input <ip-address|OTC-token>"
}

type messageError string

func (e messageError) Error() string { return string(e) }

func shortError(err error) error {
	if err == nil {
		return nil
	}
	return messageError(controller.GetShortErrorMessage(err))
}

func hintLines(err error) []string {
	if err == nil {
		return nil
	}
	var tips []string
	for _, line := range strings.Split(controller.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
		if line != "" && line != "Troubleshooting:" {
			tips = append(tips, line)
		}
	}
	return tips
}
