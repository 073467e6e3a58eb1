package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/config"
	"github.com/blackwell-systems/stackup/internal/credentials"
	"github.com/blackwell-systems/stackup/internal/logging"
	"github.com/blackwell-systems/stackup/internal/store"
	"github.com/blackwell-systems/stackup/internal/units"
)

// env is what most commands need: config, database, credentials, the
// loaded catalog and the audit logger.
type env struct {
	cfg     *config.Config
	store   *store.Store
	creds   credentials.Store
	catalog *catalog.Catalog
	units   *units.Registry
	aliases *config.Aliases
	logger  *slog.Logger
	ctx     context.Context

	closers []io.Closer
}

// loadConfig loads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if catalogDir != "" {
		abs, err := filepath.Abs(catalogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve catalog directory: %w", err)
		}
		cfg.CatalogDir = abs
	}
	return cfg, nil
}

// getDBPath returns the database path, using the flag value or the config
func getDBPath(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.DBPath()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openEnv loads config, opens the database and audit log, and builds the
// unit registry from the catalog.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}

	logger, closer, err := logging.Open(cfg.LogPath(), verbose)
	if err != nil {
		return nil, err
	}
	e.logger = logger
	e.closers = append(e.closers, closer)
	e.ctx = logging.WithLogger(commandContext(cmd), logger)

	st, err := store.Open(getDBPath(cfg))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.store = st
	e.closers = append(e.closers, st)

	e.creds = credentialBackend(cfg, st)

	e.catalog, err = catalog.Load(cfg.CatalogDir)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	e.units, err = units.NewRegistry(e.catalog, units.Options{
		Credentials:    e.creds,
		Home:           cfg.Home,
		CredentialsDir: cfg.Credentials.Dir,
		LogDir:         cfg.LogsDir,
		TailLines:      cfg.Install.TranscriptLines,
		Stdin:          scriptStdin(os.Stdin, installYes),
		Stdout:         cmd.OutOrStdout(),
		Stderr:         cmd.ErrOrStderr(),
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to build units: %w", err)
	}

	e.aliases, err = config.LoadAliases(cfg.Home)
	if err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// Close releases the database and log file.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i].Close()
	}
	e.closers = nil
}

// unitName resolves an alias and checks the unit exists.
func (e *env) unitName(arg string) (string, error) {
	name := e.aliases.Resolve(arg)
	if _, ok := e.catalog.Lookup(name); !ok {
		return "", fmt.Errorf("%w: %s\n\nRun 'stackup list' to see available units", catalog.ErrUnitNotFound, arg)
	}
	if name != arg {
		e.logger.Debug("alias resolved", "alias", arg, "unit", name)
	}
	return name, nil
}

// unitNames resolves each argument with unitName.
func (e *env) unitNames(args []string) ([]string, error) {
	names := make([]string, 0, len(args))
	for _, arg := range args {
		name, err := e.unitName(arg)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// scriptStdin returns the input install scripts read. Piped stdin belongs to
// the line prompter unless answers are automatic, so scripts then get none.
func scriptStdin(in *os.File, autoAnswer bool) io.Reader {
	if autoAnswer || term.IsTerminal(int(in.Fd())) {
		return in
	}
	return nil
}

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// credentialBackend returns the store selected by credentials.backend.
func credentialBackend(cfg *config.Config, st *store.Store) credentials.Store {
	if cfg.Credentials.Backend == "sqlite" {
		return st
	}
	return credentials.NewFileStore(cfg.Credentials.Dir)
}
