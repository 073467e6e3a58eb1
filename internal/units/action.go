// Package units turns catalog entries into runnable units: a probe plus a
// script action.
package units

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blackwell-systems/stackup/internal/runner"
	"github.com/blackwell-systems/stackup/internal/system"
)

// DefaultTailLines is how many trailing output lines are kept for the
// confirmation prompt.
const DefaultTailLines = 15

// ScriptAction runs a unit's install script with no arguments.
type ScriptAction struct {
	Cmd    system.Commander
	Unit   string
	Script string
	// Env is appended to the process environment.
	Env []string
	// LogDir receives a transcript per run. Empty disables transcripts.
	LogDir string
	// Stdin, Stdout and Stderr are attached to the script. Nil Stdout or
	// Stderr discards the stream; the transcript and tail still get it.
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	TailLines int
	Now       func() time.Time

	mu   sync.Mutex
	tail []string
}

// Run executes the script with extra appended to Env. A non-zero exit is
// returned as *runner.ActionError.
func (a *ScriptAction) Run(ctx context.Context, extra ...string) error {
	info, err := os.Stat(a.Script)
	if err != nil {
		return fmt.Errorf("install script for %s: %w", a.Unit, err)
	}
	if info.IsDir() {
		return fmt.Errorf("install script for %s is a directory: %s", a.Unit, a.Script)
	}

	tail := newTailBuffer(a.tailLines())
	out := []io.Writer{tail}
	errOut := []io.Writer{tail}

	var transcript string
	if a.LogDir != "" {
		f, path, err := a.openTranscript()
		if err != nil {
			return err
		}
		defer f.Close()
		transcript = path
		out = append(out, f)
		errOut = append(errOut, f)
	}
	if a.Stdout != nil {
		out = append(out, a.Stdout)
	}
	if a.Stderr != nil {
		errOut = append(errOut, a.Stderr)
	}

	code, err := a.Cmd.Stream(ctx, system.Spec{
		Path:   a.Script,
		Dir:    filepath.Dir(a.Script),
		Env:    append(append([]string(nil), a.Env...), extra...),
		Stdin:  a.Stdin,
		Stdout: io.MultiWriter(out...),
		Stderr: io.MultiWriter(errOut...),
	})

	a.mu.Lock()
	a.tail = tail.Lines()
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to run install script for %s: %w", a.Unit, err)
	}
	if code != 0 {
		return &runner.ActionError{Unit: a.Unit, ExitCode: code, Transcript: transcript}
	}
	return nil
}

// Tail returns the last output lines of the most recent run.
func (a *ScriptAction) Tail() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tail...)
}

func (a *ScriptAction) tailLines() int {
	if a.TailLines > 0 {
		return a.TailLines
	}
	return DefaultTailLines
}

func (a *ScriptAction) openTranscript() (*os.File, string, error) {
	if err := os.MkdirAll(a.LogDir, 0700); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	path := filepath.Join(a.LogDir, fmt.Sprintf("%s-%s.log", a.Unit, now().Format("20060102-150405")))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open transcript: %w", err)
	}
	return f, path, nil
}

// tailBuffer keeps the last n complete lines written to it, plus any
// trailing partial line.
type tailBuffer struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial []byte
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := append(t.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		t.push(string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	t.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (t *tailBuffer) push(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

// Lines returns the retained lines, including an unterminated last line.
func (t *tailBuffer) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := append([]string(nil), t.lines...)
	if len(t.partial) > 0 {
		lines = append(lines, string(t.partial))
		if len(lines) > t.n {
			lines = lines[len(lines)-t.n:]
		}
	}
	return lines
}
