package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/output"
	"github.com/blackwell-systems/stackup/internal/runner"
)

var planCmd = &cobra.Command{
	Use:   "plan <unit>",
	Short: "Show what installing a unit would run",
	Long: `Resolve a unit's dependencies and show which install scripts would run,
in order, followed by the full dependency chain whether installed or not.
Probes run, but no scripts and no prompts.`,
	Example: `  stackup plan n8n`,
	Args:    cobra.ExactArgs(1),
	RunE:    runPlan,
}

func init() {
	RootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	name, err := e.unitName(args[0])
	if err != nil {
		return err
	}

	plan, err := runner.New(e.units, runner.Options{}).Plan(e.ctx, name)
	if err != nil {
		return fmt.Errorf("failed to plan %s: %w", name, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderPlan(plan))
	if chain := e.catalog.DependencyChain(name); len(chain) > 0 {
		fmt.Fprintf(out, "Dependency chain: %s → %s\n", strings.Join(chain, " → "), name)
	}
	return nil
}
