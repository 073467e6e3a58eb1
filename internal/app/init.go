package app

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/store"
)

//go:embed sample
var sampleCatalog embed.FS

var (
	initForce bool

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the config, database and a sample catalog",
		Long: `Set up ~/.stackup for first use:

  1. Write config.yaml with default settings
  2. Create the database
  3. Write a sample catalog for an n8n stack (docker-engine, nginx,
     certbot, postgres, ollama, n8n) unless the catalog already has units

Existing files are kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
)

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing sample files")

	RootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Step 1/3: Config")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  ✓ %s\n\n", configFilePath())

	fmt.Fprintln(out, "Step 2/3: Database")
	st, err := store.Open(getDBPath(cfg))
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	st.Close()
	fmt.Fprintf(out, "  ✓ %s\n\n", getDBPath(cfg))

	fmt.Fprintln(out, "Step 3/3: Catalog")
	existing, err := catalog.Load(cfg.CatalogDir)
	if err == nil && existing.Len() > 0 && !initForce {
		fmt.Fprintf(out, "  ✓ %s already has %d units, leaving it alone\n\n", cfg.CatalogDir, existing.Len())
	} else {
		written, err := writeSample(cfg.CatalogDir, initForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  ✓ Wrote %d sample files to %s\n\n", written, cfg.CatalogDir)
	}

	fmt.Fprintln(out, "Setup complete!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  • Review the catalog: stackup list")
	fmt.Fprintln(out, "  • Check it: stackup validate")
	fmt.Fprintln(out, "  • Preview an install: stackup plan n8n")
	return nil
}

// writeSample copies the embedded sample catalog into dir, skipping files
// that exist unless force is set. Scripts are made executable.
func writeSample(dir string, force bool) (int, error) {
	written := 0
	err := fs.WalkDir(sampleCatalog, "sample", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, "sample"), "/")
		target := filepath.Join(dir, filepath.FromSlash(rel))

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		if _, err := os.Stat(target); err == nil && !force {
			return nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		data, err := sampleCatalog.ReadFile(path)
		if err != nil {
			return err
		}
		mode := os.FileMode(0644)
		if strings.HasSuffix(path, ".sh") {
			mode = 0755
		}
		if err := os.WriteFile(target, data, mode); err != nil {
			return err
		}
		if err := os.Chmod(target, mode); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("failed to write sample catalog: %w", err)
	}
	return written, nil
}
