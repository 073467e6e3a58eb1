// Package prompt asks the operator yes/no questions.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrAborted is returned when the operator cancels a prompt (Ctrl+C).
var ErrAborted = errors.New("prompt aborted")

// Prompter presents a yes/no question and blocks for the answer. An empty
// or negative answer is no.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// Line reads answers from a line-oriented reader, printing "[y/N]".
type Line struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLine creates a Line prompter. A nil in reads os.Stdin and a nil out
// writes to os.Stdout.
func NewLine(in io.Reader, out io.Writer) *Line {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Line{in: bufio.NewReader(in), out: out}
}

func (p *Line) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)

	response, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	if errors.Is(err, io.EOF) && response == "" {
		// Closed stdin answers no.
		fmt.Fprintln(p.out)
		return false, nil
	}

	return parseAnswer(response), nil
}

func parseAnswer(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "y" || s == "yes"
}

// runForm is swapped out in tests.
var runForm = func(form *huh.Form) error { return form.Run() }

// Form renders each question as a charmbracelet/huh confirm form.
type Form struct{}

func (Form) Confirm(question string) (bool, error) {
	var answer bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	)

	if err := runForm(form); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrAborted
		}
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return answer, nil
}

// Auto answers every question the same way without blocking. It backs
// --yes and other non-interactive runs.
type Auto struct {
	Answer bool
	// Out, when set, receives the question and the automatic answer.
	Out io.Writer
}

func (p Auto) Confirm(question string) (bool, error) {
	if p.Out != nil {
		answer := "no"
		if p.Answer {
			answer = "yes"
		}
		fmt.Fprintf(p.Out, "%s [auto: %s]\n", question, answer)
	}
	return p.Answer, nil
}

// Styles accepted by New.
const (
	StyleAuto = "auto"
	StyleLine = "line"
	StyleForm = "form"
)

// New returns the interactive prompter for style. "auto" picks the form
// prompter when stdin and stdout are terminals and the line prompter
// otherwise.
func New(style string) (Prompter, error) {
	switch style {
	case "", StyleAuto:
		if isTerminal(os.Stdin) && isTerminal(os.Stdout) {
			return Form{}, nil
		}
		return NewLine(nil, nil), nil
	case StyleLine:
		return NewLine(nil, nil), nil
	case StyleForm:
		return Form{}, nil
	default:
		return nil, fmt.Errorf("unknown prompt style %q (want auto, line or form)", style)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
