// Package infra implements infrastructure concerns (process running, cache
// parsing, console output, generator probing).
package infra

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ansiEscape matches OSC and CSI sequences plus single-character escapes.
// OSC and CSI come first: alternation is leftmost-first and the trailing
// class would otherwise swallow their introducers.
var ansiEscape = regexp.MustCompile(`\x1b(?:\][^\x07\x1b]*(?:\x07|\x1b\\)?|\[[0-?]*[ -/]*[@-~]|[@-Z\\-_])`)

// StripANSI removes terminal escape sequences from s. Captured log files
// are always written escape-free; console copies only when the console is
// not a terminal.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

const (
	ansiNormal = "\033[0m"
	ansiYellow = "\033[0;33m"
	ansiRed    = "\033[1;31m"
)

// Printer writes user-facing messages to stderr with colored highlighting.
// quiet is detected once at startup (shell completion in progress) and
// suppresses warnings only, never errors.
type Printer struct {
	out   io.Writer
	quiet bool
}

// NewPrinter creates a printer writing to stderr.
func NewPrinter(quiet bool) *Printer {
	return &Printer{out: os.Stderr, quiet: quiet}
}

// NewPrinterTo creates a printer writing to w (for tests).
func NewPrinterTo(w io.Writer, quiet bool) *Printer {
	return &Printer{out: w, quiet: quiet}
}

func (p *Printer) color(msg, color string) {
	fmt.Fprintf(p.out, "%s%s%s\n", color, msg, ansiNormal)
}

// Yellow prints a highlighted message, used for hints and warnings that
// must survive output redirection.
func (p *Printer) Yellow(msg string) {
	p.color(msg, ansiYellow)
}

// Red prints an error message.
func (p *Printer) Red(msg string) {
	p.color(msg, ansiRed)
}

// Warn prints msg unless a shell completion run is in progress.
func (p *Printer) Warn(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, msg)
}

// IsTerminal reports whether fd is an interactive terminal.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// TerminalWidth returns the column count of the terminal behind fd, or 0
// when fd is not a terminal.
func TerminalWidth(fd uintptr) int {
	w, _, err := term.GetSize(int(fd))
	if err != nil {
		return 0
	}
	return w
}

// FitToWidth elides the middle of s with "..." so it fits in width
// columns. Used by the progress redraw mode. Elision counts runes, not
// bytes, so a multi-byte character is never cut in half.
func FitToWidth(s string, width int) string {
	const dots = 3
	if width <= dots {
		if width < 0 {
			width = 0
		}
		return strings.Repeat(".", width)
	}
	runes := []rune(s)
	if len(runes) >= width {
		elide := (width - dots) / 2
		return string(runes[:elide]) + "..." + string(runes[len(runes)-elide:])
	}
	return s
}
