package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/health"
	"github.com/blackwell-systems/stackup/internal/output"
)

var (
	healthHTML     string
	healthTextfile string

	healthCmd = &cobra.Command{
		Use:   "health [unit...]",
		Short: "Check that installed units are up",
		Long: `Probe each unit and, when it is installed and declares a health endpoint,
check the endpoint. HTTP endpoints must answer 2xx or 3xx; TCP endpoints
must accept a connection. Units are checked concurrently and results are
recorded in the database.

The results can also be written as an HTML report or as a Prometheus
textfile for node_exporter's textfile collector.`,
		Example: `  # Check every unit
  stackup health

  # Write reports
  stackup health --html /var/www/stackup.html --prom-textfile /var/lib/node_exporter/stackup.prom`,
		RunE: runHealth,
	}
)

func init() {
	healthCmd.Flags().StringVar(&healthHTML, "html", "", "write an HTML report to this file")
	healthCmd.Flags().StringVar(&healthTextfile, "prom-textfile", "", "write Prometheus metrics to this file")

	RootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	names, err := e.unitNames(args)
	if err != nil {
		return err
	}
	targets, err := health.Targets(e.units, names...)
	if err != nil {
		return err
	}

	checker := health.NewChecker(e.cfg.Health.Timeout, e.cfg.Health.Concurrency)
	checker.Recorder = e.store

	out := cmd.OutOrStdout()
	spinner := output.NewSpinner(out, fmt.Sprintf("Checking %d units...", len(targets)))
	spinner.Start()
	results, err := checker.CheckAll(e.ctx, targets)
	spinner.Stop()
	if err != nil {
		return err
	}

	fmt.Fprint(out, output.RenderHealthTable(results))

	if healthHTML != "" {
		if err := health.WriteHTMLFile(healthHTML, results, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "HTML report written to %s\n", healthHTML)
	}
	if healthTextfile != "" {
		if err := health.WriteTextfile(healthTextfile, results); err != nil {
			return err
		}
		fmt.Fprintf(out, "Metrics written to %s\n", healthTextfile)
	}

	for _, r := range results {
		if r.Status == health.StatusUnhealthy || r.Status == health.StatusUnreachable {
			return fmt.Errorf("%w: %s", health.ErrUnhealthy, r.Unit)
		}
	}
	return nil
}
