package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the catalog for errors",
	Long: `Check every unit definition: required fields, probe settings, health
endpoints, dependencies on unknown units, and dependency cycles. Each
problem is printed on its own line.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	RootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The catalog is loaded directly: building units would stop at the
	// first bad probe.
	c, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	out := cmd.OutOrStdout()
	problems := c.Problems()
	if len(problems) == 0 {
		fmt.Fprintf(out, "✓ Catalog OK: %d units in %s\n", c.Len(), cfg.CatalogDir)
		return nil
	}

	for _, p := range problems {
		fmt.Fprintf(out, "✗ %v\n", p)
	}
	return fmt.Errorf("catalog has %d problem(s)", len(problems))
}
