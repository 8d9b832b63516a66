// Package console prints the operator-facing progress lines of a run:
// green informational notes, bold red errors. Styling is dropped when the
// output is not a terminal so redirected output stays plain text.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ANSI palette indices, matching `tput setaf`.
const (
	colorRed    = lipgloss.Color("1")
	colorGreen  = lipgloss.Color("2")
	colorYellow = lipgloss.Color("3")
	colorGray   = lipgloss.Color("8")
)

// Console writes styled lines to a single writer. It is safe for
// concurrent use.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool

	info  lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	muted lipgloss.Style
}

// New creates a Console writing to out. Colors are enabled only when out
// is a terminal.
func New(out io.Writer) *Console {
	return newConsole(out, isTerminal(out))
}

// Stderr returns a Console on os.Stderr.
func Stderr() *Console {
	return New(os.Stderr)
}

// Plain returns a Console that never styles its output.
func Plain(out io.Writer) *Console {
	return newConsole(out, false)
}

func newConsole(out io.Writer, color bool) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:   out,
		color: color,
		info:  r.NewStyle().Foreground(colorGreen),
		warn:  r.NewStyle().Foreground(colorYellow),
		err:   r.NewStyle().Foreground(colorRed).Bold(true),
		muted: r.NewStyle().Foreground(colorGray),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Colored reports whether output is styled.
func (c *Console) Colored() bool { return c.color }

// Info prints an informational line.
func (c *Console) Info(msg string) { c.print(c.info, msg) }

// Infof prints a formatted informational line.
func (c *Console) Infof(format string, args ...any) { c.Info(fmt.Sprintf(format, args...)) }

// Warn prints a warning line.
func (c *Console) Warn(msg string) { c.print(c.warn, msg) }

// Warnf prints a formatted warning line.
func (c *Console) Warnf(format string, args ...any) { c.Warn(fmt.Sprintf(format, args...)) }

// Error prints an error line.
func (c *Console) Error(msg string) { c.print(c.err, msg) }

// Errorf prints a formatted error line.
func (c *Console) Errorf(format string, args ...any) { c.Error(fmt.Sprintf(format, args...)) }

// Muted prints a de-emphasized line.
func (c *Console) Muted(msg string) { c.print(c.muted, msg) }

func (c *Console) print(style lipgloss.Style, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.color {
		msg = style.Render(msg)
	}
	_, _ = fmt.Fprintln(c.out, msg)
}
