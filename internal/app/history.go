package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/output"
	"github.com/blackwell-systems/stackup/internal/store"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past install runs",
		Long: `Without arguments, list recent install runs. With a run ID, or the first
characters of one, show every step of that run: probes, installs,
confirmations, overrides and optional offers.`,
		Example: `  stackup history
  stackup history 3f2a9c1e`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list (0 for all)")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(getDBPath(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		runs, err := st.ListRuns(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		fmt.Fprint(out, output.RenderHistoryTable(runs))
		return nil
	}

	run, err := findRun(st, args[0])
	if err != nil {
		return err
	}
	events, err := st.GetEvents(run.ID)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}

	fmt.Fprintf(out, "Run %s: %s %s\n\n", run.ID, run.Unit, run.Status)
	fmt.Fprint(out, output.RenderEventTable(events))
	if run.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", run.Error)
	}
	return nil
}

// findRun resolves a full run ID or a unique prefix of one.
func findRun(st *store.Store, id string) (*store.Run, error) {
	if run, err := st.GetRun(id); err == nil {
		return run, nil
	}

	runs, err := st.ListRuns(0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var matches []*store.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("run %s not found\n\nRun 'stackup history' to see recent runs", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("run ID %s is ambiguous (%d matches)", id, len(matches))
	}
}
