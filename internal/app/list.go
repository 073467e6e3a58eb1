package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the units in the catalog",
	Long: `List every unit in the catalog with its probe, required dependencies and
optional dependencies, and the units that require it. Aliases defined in ~/.stackup/aliases are listed
after the table.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	if e.catalog.Len() == 0 {
		fmt.Fprintf(out, "No units in catalog %s.\n", e.cfg.CatalogDir)
		fmt.Fprintln(out, "Run 'stackup init' to create a sample catalog.")
		return nil
	}

	fmt.Fprint(out, output.RenderCatalogTable(e.catalog))

	if aliases := e.aliases.Names(); len(aliases) > 0 {
		pairs := make([]string, 0, len(aliases))
		for _, a := range aliases {
			pairs = append(pairs, a+" → "+e.aliases.Resolve(a))
		}
		fmt.Fprintf(out, "\nAliases: %s\n", strings.Join(pairs, ", "))
	}
	return nil
}
