// Package runner installs a unit after its required dependencies.
//
// For a requested unit the runner walks the required dependencies in
// declared order. A dependency that probes as installed is skipped; one
// that does not is installed recursively, and the operator is asked to
// confirm the result. Any failure stops the walk. Once the unit's own
// action succeeds, its optional dependencies are offered one at a time.
//
// Execution is sequential: one action or one prompt at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/logging"
	"github.com/blackwell-systems/stackup/internal/prompt"
	"github.com/blackwell-systems/stackup/internal/store"
)

// Unit is an installable piece of software.
type Unit interface {
	Name() string
	Description() string
	Dependencies() []string
	OptionalDependencies() []string
	// IsInstalled must not change the host.
	IsInstalled(ctx context.Context) (bool, error)
	// Install runs the unit's action. A non-zero exit is an *ActionError.
	Install(ctx context.Context) error
}

// Tailer is implemented by units that keep the last lines of their most
// recent action output.
type Tailer interface {
	Tail() []string
}

// Registry resolves unit names.
type Registry interface {
	Lookup(name string) (Unit, bool)
}

// Recorder persists the audit trail of a run. *store.Store implements it.
type Recorder interface {
	StartRun(run *store.Run) error
	RecordEvent(ev *store.InstallEvent) error
	FinishRun(id string, status store.RunStatus, errMsg string, finishedAt time.Time) error
}

// Reporter shows progress to the operator. *output.Console implements it.
type Reporter interface {
	Step(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Info(format string, args ...any)
	Tail(title string, lines []string)
}

// OptionalMode controls how optional dependencies are handled.
type OptionalMode int

const (
	// OptionalAsk offers each optional dependency through the Prompter.
	OptionalAsk OptionalMode = iota
	// OptionalAll installs every optional dependency without asking.
	OptionalAll
	// OptionalNone declines every optional dependency without asking.
	OptionalNone
)

// Options configures a Runner. Zero values are usable: prompts answer no
// and nothing is recorded or reported.
type Options struct {
	Prompter prompt.Prompter
	Recorder Recorder
	Reporter Reporter
	Optional OptionalMode
	// NoOverride stops at a failed dependency without asking whether to
	// continue anyway.
	NoOverride bool
	Now        func() time.Time
}

// Runner resolves and installs units.
type Runner struct {
	reg        Registry
	prompter   prompt.Prompter
	recorder   Recorder
	report     Reporter
	optional   OptionalMode
	noOverride bool
	now        func() time.Time
}

// New creates a Runner over reg.
func New(reg Registry, opts Options) *Runner {
	r := &Runner{
		reg:        reg,
		prompter:   opts.Prompter,
		recorder:   opts.Recorder,
		report:     opts.Reporter,
		optional:   opts.Optional,
		noOverride: opts.NoOverride,
		now:        opts.Now,
	}
	if r.prompter == nil {
		r.prompter = prompt.Auto{Answer: false}
	}
	if r.report == nil {
		r.report = nopReporter{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Result describes what an Install call did.
type Result struct {
	RunID string
	Unit  string

	// Installed lists units whose action ran successfully, in order. The
	// requested unit comes after its dependencies; accepted optional
	// units follow it.
	Installed []string
	// Skipped lists dependencies that already probed as installed.
	Skipped []string
	// Overridden lists dependencies whose action failed but the operator
	// chose to continue.
	Overridden []string

	OptionalInstalled []string
	OptionalDeclined  []string
	OptionalFailed    []string

	// FailedUnit names the unit where the run stopped. Empty on success.
	FailedUnit string
	Duration   time.Duration
}

// OK reports whether the run succeeded.
func (r *Result) OK() bool {
	return r.FailedUnit == ""
}

// session is the state of one Install call.
type session struct {
	result *Result
	logger *slog.Logger

	// satisfied holds units known to be present in this run: probed as
	// installed, installed and confirmed, or overridden.
	satisfied map[string]bool
	// stack is the chain of units currently being resolved.
	stack   []string
	onStack map[string]bool
}

// Install installs name after its required dependencies, then offers its
// optional dependencies. The requested unit is not probed: its action
// always runs.
func (r *Runner) Install(ctx context.Context, name string) (*Result, error) {
	start := r.now()
	res := &Result{RunID: uuid.NewString(), Unit: name}

	s := &session{
		result:    res,
		logger:    logging.FromContext(ctx).With("run_id", res.RunID, "unit", name),
		satisfied: make(map[string]bool),
		onStack:   make(map[string]bool),
	}

	u, ok := r.reg.Lookup(name)
	if !ok {
		res.FailedUnit = name
		return res, fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}

	r.startRun(s, start)
	s.logger.Info("install started")

	err := r.installUnit(ctx, s, u, "", false)
	if err == nil {
		r.offerOptional(ctx, s, u)
	} else if res.FailedUnit == "" {
		res.FailedUnit = name
	}

	res.Duration = r.now().Sub(start)
	r.finishRun(s, err)
	return res, err
}

// installUnit satisfies u's required dependencies, then runs u's action.
// asDependency enables the post-action confirmation and the
// continue-anyway override.
func (r *Runner) installUnit(ctx context.Context, s *session, u Unit, parent string, asDependency bool) error {
	name := u.Name()
	s.onStack[name] = true
	s.stack = append(s.stack, name)
	defer func() {
		s.stack = s.stack[:len(s.stack)-1]
		delete(s.onStack, name)
	}()

	for _, depName := range u.Dependencies() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.satisfied[depName] {
			continue
		}
		if s.onStack[depName] {
			cycle := &catalog.CycleError{Path: cyclePath(s.stack, depName)}
			r.record(s, name, parent, store.EventFail, 0, cycle.Error())
			s.result.FailedUnit = depName
			return cycle
		}

		dep, ok := r.reg.Lookup(depName)
		if !ok {
			r.record(s, depName, name, store.EventFail, 0, "no definition")
			s.result.FailedUnit = depName
			return fmt.Errorf("%s requires %s: %w", name, depName, ErrUnitNotFound)
		}

		if r.probe(ctx, s, dep, name) {
			r.report.Info("%s is already installed", depName)
			r.record(s, depName, name, store.EventSkip, 0, "already installed")
			s.satisfied[depName] = true
			s.result.Skipped = append(s.result.Skipped, depName)
			continue
		}

		r.report.Step("%s requires %s, which is not installed", name, depName)
		if err := r.installUnit(ctx, s, dep, name, true); err != nil {
			return err
		}
	}

	return r.runAction(ctx, s, u, parent, asDependency)
}

func (r *Runner) runAction(ctx context.Context, s *session, u Unit, parent string, asDependency bool) error {
	name := u.Name()
	log := s.logger.With("step", name)

	r.report.Step("Installing %s", name)
	log.Info("action started", "parent", parent)

	err := u.Install(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.record(s, name, parent, store.EventFail, -1, "interrupted")
		s.result.FailedUnit = name
		return fmt.Errorf("%s interrupted: %w", name, ctxErr)
	}

	var actionErr *ActionError
	switch {
	case err == nil:
		r.record(s, name, parent, store.EventInstall, 0, "")
		log.Info("action finished", "exit_code", 0)

		if asDependency {
			r.showTail(u)
			ok, perr := r.prompter.Confirm(fmt.Sprintf("Did %s install successfully?", name))
			if perr != nil {
				s.result.FailedUnit = name
				return fmt.Errorf("confirming %s: %w", name, perr)
			}
			if !ok {
				r.record(s, name, parent, store.EventFail, 0, "operator reported failure")
				log.Warn("operator rejected install")
				s.result.FailedUnit = name
				return fmt.Errorf("%s: %w", name, ErrRejected)
			}
			r.record(s, name, parent, store.EventConfirm, 0, "")
		}

		r.report.Success("%s installed", name)
		s.satisfied[name] = true
		s.result.Installed = append(s.result.Installed, name)
		return nil

	case errors.As(err, &actionErr):
		r.record(s, name, parent, store.EventFail, actionErr.ExitCode, actionErr.Error())
		log.Error("action failed", "exit_code", actionErr.ExitCode, "transcript", actionErr.Transcript)

		if asDependency && !r.noOverride {
			r.showTail(u)
			r.report.Warn("%s failed with exit code %d", name, actionErr.ExitCode)
			ok, perr := r.prompter.Confirm(fmt.Sprintf("%s failed. Continue anyway?", name))
			if perr != nil {
				s.result.FailedUnit = name
				return fmt.Errorf("confirming %s: %w", name, perr)
			}
			if ok {
				r.record(s, name, parent, store.EventOverride, actionErr.ExitCode, "operator chose to continue")
				log.Warn("operator overrode failed install")
				s.satisfied[name] = true
				s.result.Overridden = append(s.result.Overridden, name)
				return nil
			}
		}

		s.result.FailedUnit = name
		return err

	default:
		r.record(s, name, parent, store.EventFail, -1, err.Error())
		log.Error("action could not run", "error", err)
		s.result.FailedUnit = name
		return fmt.Errorf("failed to install %s: %w", name, err)
	}
}

// offerOptional offers u's optional dependencies that are not installed.
// Failures here are warnings and never change the run's outcome.
func (r *Runner) offerOptional(ctx context.Context, s *session, u Unit) {
	for _, name := range u.OptionalDependencies() {
		if ctx.Err() != nil {
			return
		}
		if s.satisfied[name] {
			continue
		}

		opt, ok := r.reg.Lookup(name)
		if !ok {
			r.report.Warn("optional %s has no definition", name)
			r.record(s, name, u.Name(), store.EventFail, 0, "no definition")
			s.result.OptionalFailed = append(s.result.OptionalFailed, name)
			continue
		}
		if r.probe(ctx, s, opt, u.Name()) {
			s.satisfied[name] = true
			continue
		}

		if !r.acceptOptional(s, opt, u.Name()) {
			r.record(s, name, u.Name(), store.EventDecline, 0, "")
			s.result.OptionalDeclined = append(s.result.OptionalDeclined, name)
			continue
		}

		if err := r.installUnit(ctx, s, opt, u.Name(), false); err != nil {
			r.report.Warn("optional %s was not installed: %v", name, err)
			s.logger.Warn("optional install failed", "optional", name, "error", err)
			s.result.OptionalFailed = append(s.result.OptionalFailed, name)
			s.result.FailedUnit = ""
			continue
		}
		s.result.OptionalInstalled = append(s.result.OptionalInstalled, name)
	}
}

func (r *Runner) acceptOptional(s *session, opt Unit, parent string) bool {
	switch r.optional {
	case OptionalAll:
		return true
	case OptionalNone:
		return false
	}

	if desc := opt.Description(); desc != "" {
		r.report.Info("Optional for %s: %s - %s", parent, opt.Name(), desc)
	}
	ok, err := r.prompter.Confirm(fmt.Sprintf("Install %s now?", opt.Name()))
	if err != nil {
		s.logger.Warn("optional prompt failed", "optional", opt.Name(), "error", err)
		return false
	}
	return ok
}

// probe reports whether u is installed. A probe error counts as not
// installed.
func (r *Runner) probe(ctx context.Context, s *session, u Unit, parent string) bool {
	ok, err := u.IsInstalled(ctx)
	if err != nil {
		r.report.Warn("could not check %s (%v); treating it as not installed", u.Name(), err)
		s.logger.Warn("probe failed", "probe_unit", u.Name(), "error", err)
		r.record(s, u.Name(), parent, store.EventProbe, 0, "probe error: "+err.Error())
		return false
	}

	msg := "not installed"
	if ok {
		msg = "installed"
	}
	s.logger.Debug("probe", "probe_unit", u.Name(), "installed", ok)
	r.record(s, u.Name(), parent, store.EventProbe, 0, msg)
	return ok
}

func (r *Runner) showTail(u Unit) {
	t, ok := u.(Tailer)
	if !ok {
		return
	}
	if lines := t.Tail(); len(lines) > 0 {
		r.report.Tail(fmt.Sprintf("last output of %s", u.Name()), lines)
	}
}

func (r *Runner) startRun(s *session, at time.Time) {
	if r.recorder == nil {
		return
	}
	run := &store.Run{ID: s.result.RunID, Unit: s.result.Unit, StartedAt: at, Status: store.RunRunning}
	if err := r.recorder.StartRun(run); err != nil {
		s.logger.Warn("failed to record run", "error", err)
	}
}

func (r *Runner) finishRun(s *session, err error) {
	status, msg := store.RunSucceeded, ""
	if err != nil {
		status, msg = store.RunFailed, err.Error()
		s.logger.Error("install failed", "failed_unit", s.result.FailedUnit, "error", err)
	} else {
		s.logger.Info("install finished", "installed", s.result.Installed, "duration", s.result.Duration)
	}

	if r.recorder == nil {
		return
	}
	if ferr := r.recorder.FinishRun(s.result.RunID, status, msg, r.now()); ferr != nil {
		s.logger.Warn("failed to record run result", "error", ferr)
	}
}

func (r *Runner) record(s *session, unit, parent string, kind store.EventKind, exitCode int, msg string) {
	if r.recorder == nil {
		return
	}
	ev := &store.InstallEvent{
		RunID:     s.result.RunID,
		Unit:      unit,
		Parent:    parent,
		Kind:      kind,
		ExitCode:  exitCode,
		Message:   msg,
		Timestamp: r.now(),
	}
	if err := r.recorder.RecordEvent(ev); err != nil {
		s.logger.Warn("failed to record event", "event", kind, "error", err)
	}
}

func cyclePath(stack []string, name string) []string {
	for i, s := range stack {
		if s == name {
			path := append([]string{}, stack[i:]...)
			return append(path, name)
		}
	}
	return []string{name, name}
}

type nopReporter struct{}

func (nopReporter) Step(string, ...any)    {}
func (nopReporter) Success(string, ...any) {}
func (nopReporter) Warn(string, ...any)    {}
func (nopReporter) Info(string, ...any)    {}
func (nopReporter) Tail(string, []string)  {}
