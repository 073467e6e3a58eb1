package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/output"
	"github.com/blackwell-systems/stackup/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status [unit...]",
	Short: "Show which units are installed",
	Long: `Probe every unit in the catalog, or the named units, and show whether it
is installed and when stackup last installed it.

Probes only inspect the host; they never start services.`,
	Example: `  # All units
  stackup status

  # Selected units
  stackup status postgres nginx`,
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	names := e.catalog.Names()
	if len(args) > 0 {
		if names, err = e.unitNames(args); err != nil {
			return err
		}
	}

	last, err := e.store.LastInstalled()
	if err != nil {
		return fmt.Errorf("failed to read install history: %w", err)
	}

	rows := make([]output.UnitStatus, 0, len(names))
	for _, name := range names {
		u, _ := e.units.Get(name)
		row := output.UnitStatus{
			Name:          name,
			Description:   u.Description(),
			LastInstalled: last[name],
			Dependencies:  u.Dependencies(),
		}
		installed, err := u.IsInstalled(e.ctx)
		if err != nil {
			row.ProbeError = err.Error()
			e.logger.Warn("probe failed", "unit", name, "error", err)
		}
		row.Installed = installed
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderStatusTable(rows))

	running, err := watcher.IsDaemonRunning(e.cfg.PIDPath())
	if err == nil {
		fmt.Fprintln(out)
		if running {
			pid, _ := watcher.ReadPID(e.cfg.PIDPath())
			fmt.Fprintf(out, "Health watcher: running (PID %d)\n", pid)
		} else {
			fmt.Fprintln(out, "Health watcher: stopped")
		}
	}
	return nil
}
