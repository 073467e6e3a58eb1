// Package system wraps the external commands stackup runs: probe commands
// such as systemctl and docker, and unit install scripts.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited zero.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Spec describes a streamed command.
type Spec struct {
	Path string
	Args []string
	// Env entries are appended to the current environment.
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Commander runs external commands. A non-nil error means the command could
// not be run at all (missing binary, cancelled context); a non-zero exit is
// reported through the exit code.
type Commander interface {
	Output(ctx context.Context, name string, args ...string) (*Result, error)
	Stream(ctx context.Context, spec Spec) (int, error)
	LookPath(name string) (string, error)
}

// killGrace is how long a cancelled command gets between SIGTERM and SIGKILL.
const killGrace = 10 * time.Second

// Exec is the Commander backed by os/exec.
type Exec struct{}

// Output runs name and captures stdout and stderr.
func (Exec) Output(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code, err := wait(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}

	return &Result{
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Stream runs spec with its output attached to the given writers and
// returns the exit code. Cancelling ctx sends SIGTERM, then SIGKILL after
// a grace period.
func (Exec) Stream(ctx context.Context, spec Spec) (int, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	code, err := wait(ctx, cmd)
	if err != nil {
		return -1, fmt.Errorf("%s failed: %w", spec.Path, err)
	}
	return code, nil
}

// LookPath finds an executable on PATH.
func (Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func wait(ctx context.Context, cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
