package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Console prints install progress. It implements runner.Reporter.
type Console struct {
	w io.Writer

	step    *color.Color
	success *color.Color
	warn    *color.Color
	fail    *color.Color
	dim     *color.Color
}

// NewConsole writes to w, coloring output when w is a terminal and NO_COLOR
// is unset.
func NewConsole(w io.Writer) *Console {
	c := &Console{
		w:       w,
		step:    color.New(color.FgCyan, color.Bold),
		success: color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
		dim:     color.New(color.FgHiBlack),
	}
	enabled := colorEnabledFor(w)
	for _, col := range []*color.Color{c.step, c.success, c.warn, c.fail, c.dim} {
		if enabled {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.w
}

func (c *Console) Step(format string, args ...any) {
	fmt.Fprintln(c.w, c.step.Sprint("==> ")+fmt.Sprintf(format, args...))
}

func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.w, c.success.Sprint("✓ ")+fmt.Sprintf(format, args...))
}

func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintln(c.w, c.warn.Sprint("⚠ ")+fmt.Sprintf(format, args...))
}

func (c *Console) Error(format string, args ...any) {
	fmt.Fprintln(c.w, c.fail.Sprint("✗ ")+fmt.Sprintf(format, args...))
}

func (c *Console) Info(format string, args ...any) {
	fmt.Fprintln(c.w, "  "+fmt.Sprintf(format, args...))
}

// Tail prints the captured output lines of a unit under a ruler.
func (c *Console) Tail(title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(c.w, c.dim.Sprint("── "+title+" "+strings.Repeat("─", max(0, 56-len(title)))))
	for _, line := range lines {
		fmt.Fprintln(c.w, c.dim.Sprint("│ ")+line)
	}
	fmt.Fprintln(c.w, c.dim.Sprint(strings.Repeat("─", 60)))
}

// colorEnabledFor reports whether ANSI codes should be written to w.
func colorEnabledFor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return writerIsTTY(w)
}
