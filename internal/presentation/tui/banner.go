package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// PrintBanner announces the capture server URL and the sessions it expects.
// Colors are only emitted when the output supports them.
func PrintBanner(w io.Writer, runID, serverURL string, sessions []string) {
	p := termenv.Ascii
	if f, ok := w.(*os.File); ok && IsTerminal(f) {
		p = termenv.ColorProfile()
	}
	title := p.String("Capture server on " + serverURL).Bold().Foreground(p.Color("#818cf8"))
	meta := p.String(fmt.Sprintf("run %s, sessions: %v", runID, sessions)).Foreground(p.Color("#a78bfa"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, meta)
	fmt.Fprintln(w)
}
