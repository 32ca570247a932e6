package ui

import (
	"io"
	"os"
)

// Notifier shows registry alerts as warning boxes. It satisfies
// registry.Notifier.
type Notifier struct {
	printer *Printer
}

// NewNotifier writes alerts to w, or stderr when w is nil.
func NewNotifier(w io.Writer) *Notifier {
	if w == nil {
		w = os.Stderr
	}
	return &Notifier{printer: NewPrinter(w)}
}

// Alert prints title and message.
func (n *Notifier) Alert(title, message string) {
	n.printer.PrintWarning(title, Detail{Key: "Details", Value: message})
}
