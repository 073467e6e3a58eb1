package system

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Call records one command run through a Fake.
type Call struct {
	Name string
	Args []string
	Env  []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is a Commander for tests. Output answers are keyed by the full
// command line ("docker inspect -f ... n8n"); unknown commands exit 1.
// Binaries lists the names LookPath resolves.
type Fake struct {
	Results  map[string]*Result
	Errors   map[string]error
	Binaries map[string]bool

	// StreamFunc handles Stream; nil means exit 0 with no output.
	StreamFunc func(ctx context.Context, spec Spec) (int, error)

	mu    sync.Mutex
	calls []Call
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Results:  make(map[string]*Result),
		Errors:   make(map[string]error),
		Binaries: make(map[string]bool),
	}
}

// On registers the result for a command line.
func (f *Fake) On(cmdline string, r *Result) *Fake {
	f.Results[cmdline] = r
	return f
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) Output(ctx context.Context, name string, args ...string) (*Result, error) {
	c := Call{Name: name, Args: args}
	f.record(c)

	key := c.String()
	if err, ok := f.Errors[key]; ok {
		return nil, err
	}
	if r, ok := f.Results[key]; ok {
		return r, nil
	}
	return &Result{ExitCode: 1}, nil
}

func (f *Fake) Stream(ctx context.Context, spec Spec) (int, error) {
	f.record(Call{Name: spec.Path, Args: spec.Args, Env: spec.Env})
	if f.StreamFunc == nil {
		return 0, nil
	}
	return f.StreamFunc(ctx, spec)
}

func (f *Fake) LookPath(name string) (string, error) {
	if f.Binaries[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("exec: %q: %w", name, exec.ErrNotFound)
}
