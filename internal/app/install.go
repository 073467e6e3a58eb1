package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/health"
	"github.com/blackwell-systems/stackup/internal/lock"
	"github.com/blackwell-systems/stackup/internal/output"
	"github.com/blackwell-systems/stackup/internal/prompt"
	"github.com/blackwell-systems/stackup/internal/runner"
)

var (
	installYes          bool
	installWithOptional bool
	installDryRun       bool
	installWait         bool

	installCmd = &cobra.Command{
		Use:   "install <unit>",
		Short: "Install a unit and its missing dependencies",
		Long: `Install a unit after installing any of its dependencies that are missing.

Each dependency is probed first. Dependencies that are already present are
skipped. After a dependency's script finishes you are asked whether it
installed successfully; answering no stops the install. If a dependency's
script fails you may continue anyway.

The requested unit's own script always runs. Once it succeeds, its optional
dependencies are offered one at a time.

Only one install runs at a time; a second one fails while the lock in
~/.stackup is held.`,
		Example: `  # Interactive install
  stackup install n8n

  # Show what would run
  stackup install n8n --dry-run

  # Answer yes to every confirmation, stop at the first failed dependency
  # and skip optional units
  stackup install n8n --yes

  # Answer yes and add every optional unit, then wait for the health check
  stackup install n8n --yes --with-optional --wait`,
		Args: cobra.ExactArgs(1),
		RunE: runInstall,
	}
)

func init() {
	installCmd.Flags().BoolVarP(&installYes, "yes", "y", false, "answer yes to every confirmation; a failed dependency still stops the install")
	installCmd.Flags().BoolVar(&installWithOptional, "with-optional", false, "install every optional dependency without asking")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "show the plan without running anything")
	installCmd.Flags().BoolVar(&installWait, "wait", false, "wait for the unit's health check after installing")

	RootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	name, err := e.unitName(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p, err := installPrompter(e.cfg.Prompt, out)
	if err != nil {
		return err
	}

	r := runner.New(e.units, runner.Options{
		Prompter:   p,
		Recorder:   e.store,
		Reporter:   output.NewConsole(out),
		Optional:   optionalMode(),
		NoOverride: installYes,
	})

	if installDryRun {
		plan, err := r.Plan(e.ctx, name)
		if err != nil {
			return fmt.Errorf("failed to plan %s: %w", name, err)
		}
		fmt.Fprint(out, output.RenderPlan(plan))
		return nil
	}

	ctx, stop := signal.NotifyContext(e.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *runner.Result
	err = lock.With(e.cfg.LockPath(), func() error {
		var installErr error
		res, installErr = r.Install(ctx, name)
		return installErr
	})
	if errors.Is(err, lock.ErrHeld) {
		return fmt.Errorf("another install is running: %w", err)
	}

	if res != nil {
		fmt.Fprintln(out)
		fmt.Fprint(out, output.RenderSummary(res))
	}
	if err != nil {
		return err
	}

	if installWait {
		return waitForHealth(ctx, e, out, name)
	}
	return nil
}

func optionalMode() runner.OptionalMode {
	switch {
	case installWithOptional:
		return runner.OptionalAll
	case installYes:
		return runner.OptionalNone
	default:
		return runner.OptionalAsk
	}
}

func installPrompter(style string, out io.Writer) (prompt.Prompter, error) {
	if installYes {
		return prompt.Auto{Answer: true, Out: out}, nil
	}
	return prompt.New(style)
}

func waitForHealth(ctx context.Context, e *env, out io.Writer, name string) error {
	targets, err := health.Targets(e.units, name)
	if err != nil {
		return err
	}
	target := targets[0]
	if target.Endpoint == "" {
		fmt.Fprintf(out, "%s has no health endpoint, not waiting\n", name)
		return nil
	}

	checker := health.NewChecker(e.cfg.Health.Timeout, 1)
	checker.Recorder = e.store

	spinner := output.NewSpinner(out, fmt.Sprintf("Waiting for %s at %s...", name, target.Endpoint))
	spinner.Start()
	result, err := checker.WaitHealthy(ctx, target, e.cfg.Install.WaitAttempts, time.Second, 15*time.Second)
	if err != nil {
		spinner.StopWithMessage(fmt.Sprintf("✗ %s is not healthy", name))
		return err
	}
	spinner.StopWithMessage(fmt.Sprintf("✓ %s is healthy (%s)", name, result.Detail))
	return nil
}
