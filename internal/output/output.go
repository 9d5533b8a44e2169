// Package output provides CLI output formatting for docdex commands.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette, 256-color codes.
const (
	colorGreen  = "35"
	colorGray   = "245"
	colorRed    = "196"
	colorYellow = "220"
	colorWhite  = "255"
)

// Styles holds the text styles used by the writer.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorWhite)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
	}
}

// PlainStyles returns unstyled equivalents for non-TTY output.
func PlainStyles() Styles {
	return Styles{}
}

// Writer formats command output. Write errors to the console are ignored.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a Writer. Colors are enabled when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	w := &Writer{out: out, styles: PlainStyles()}
	if isTTY(out) && !noColor() {
		w.styles = DefaultStyles()
	}
	return w
}

// NewPlain creates a Writer with colors forced off.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out, styles: PlainStyles()}
}

// Printf writes a formatted line without any styling.
func (w *Writer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// Header writes an emphasized section heading.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(msg))
}

// Success writes a success line.
func (w *Writer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warning writes a warning line.
func (w *Writer) Warning(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Error writes an error line.
func (w *Writer) Error(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Dim writes a secondary detail line.
func (w *Writer) Dim(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(fmt.Sprintf(format, args...)))
}

// Field writes an aligned "label: value" detail line.
func (w *Writer) Field(label string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-14s %v\n", w.styles.Dim.Render(label+":"), value)
}

// Newline writes an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Table writes rows with columns padded to the widest cell.
func (w *Writer) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range header {
		fmt.Fprintf(&b, "%-*s  ", widths[i], h)
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(strings.TrimRight(b.String(), " ")))

	for _, row := range rows {
		b.Reset()
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
			}
		}
		_, _ = fmt.Fprintln(w.out, strings.TrimRight(b.String(), " "))
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func noColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}
