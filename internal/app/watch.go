package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/config"
	"github.com/blackwell-systems/stackup/internal/health"
	"github.com/blackwell-systems/stackup/internal/logging"
	"github.com/blackwell-systems/stackup/internal/output"
	"github.com/blackwell-systems/stackup/internal/store"
	"github.com/blackwell-systems/stackup/internal/units"
	"github.com/blackwell-systems/stackup/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool
	watchInterval    time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Run health checks on an interval",
		Long: `Check every unit's health on an interval and record the results.

The catalog is reloaded when catalog.toml or dependencies.conf changes, so
new units are picked up without a restart.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process tracked by a PID file
  • Stop: Stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  stackup watch

  # Run as background daemon
  stackup watch --daemon

  # Stop running daemon
  stackup watch --stop`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.stackup/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.stackup/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "check interval (default: health.interval from config)")

	watchCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchPIDFile == "" {
		watchPIDFile = cfg.PIDPath()
	}
	if watchLogFile == "" {
		watchLogFile = filepath.Join(cfg.Home, "watch.log")
	}

	switch {
	case watchStop:
		return stopWatchDaemon(cmd)
	case watchDaemon:
		return startWatchDaemon(cmd)
	case watchDaemonChild:
		return runWatchDaemonChild(cmd, cfg)
	default:
		return runWatchForeground(cmd, cfg)
	}
}

func stopWatchDaemon(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner(out, "Stopping daemon...")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile, 10*time.Second); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command) error {
	childArgs := []string{"watch", "--daemon-child", "--pid-file", watchPIDFile}
	if configPath != "" {
		childArgs = append(childArgs, "--config", configPath)
	}
	if dbPath != "" {
		childArgs = append(childArgs, "--db", dbPath)
	}
	if catalogDir != "" {
		childArgs = append(childArgs, "--catalog", catalogDir)
	}
	if watchInterval > 0 {
		childArgs = append(childArgs, "--interval", watchInterval.String())
	}
	if verbose {
		childArgs = append(childArgs, "--verbose")
	}

	out := cmd.OutOrStdout()
	spinner := output.NewSpinner(out, "Starting daemon...")
	spinner.Start()
	pid, err := watcher.StartDaemon(watchPIDFile, watchLogFile, childArgs...)
	if err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage(fmt.Sprintf("✓ Daemon started (PID %d)", pid))

	fmt.Fprintf(out, "\nHealth watcher started\n")
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: stackup watch --stop\n")
	return nil
}

// newMonitor builds a watcher whose targets come from reloading the catalog.
func newMonitor(cfg *config.Config, st *store.Store) *watcher.Watcher {
	checker := health.NewChecker(cfg.Health.Timeout, cfg.Health.Concurrency)
	if st != nil {
		checker.Recorder = st
	}

	interval := cfg.Health.Interval
	if watchInterval > 0 {
		interval = watchInterval
	}

	return watcher.New(checker, cfg.CatalogDir, interval, func(ctx context.Context) ([]health.Target, error) {
		return loadTargets(cfg, st)
	})
}

func loadTargets(cfg *config.Config, st *store.Store) ([]health.Target, error) {
	c, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		return nil, err
	}
	reg, err := units.NewRegistry(c, units.Options{Credentials: credentialBackend(cfg, st), Home: cfg.Home})
	if err != nil {
		return nil, err
	}
	return health.Targets(reg)
}

func runWatchDaemonChild(cmd *cobra.Command, cfg *config.Config) error {
	// Stdout and stderr are the daemon log file.
	logger := logging.New(cmd.ErrOrStderr(), verbose)
	ctx := logging.WithLogger(commandContext(cmd), logger)

	st, err := store.Open(getDBPath(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	w := newMonitor(cfg, st)
	return watcher.RunDaemon(ctx, watchPIDFile, w.Run)
}

func runWatchForeground(cmd *cobra.Command, cfg *config.Config) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err == nil && running {
		return fmt.Errorf("daemon already running (PID file: %s), stop it with 'stackup watch --stop'", watchPIDFile)
	}

	logger, closer, err := logging.Open(cfg.LogPath(), verbose)
	if err != nil {
		return err
	}
	defer closer.Close()

	st, err := store.Open(getDBPath(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(logging.WithLogger(commandContext(cmd), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := output.NewConsole(cmd.OutOrStdout())
	w := newMonitor(cfg, st)
	w.OnResults = func(results []*health.Result) {
		up := 0
		for _, r := range results {
			if r.Up() {
				up++
			} else if r.Status != health.StatusNotInstalled {
				console.Warn("%s %s: %s", r.Unit, r.Status, r.Detail)
			}
		}
		console.Info("%s  %d of %d healthy", time.Now().Format("15:04:05"), up, len(results))
	}

	console.Step("Watching %s (press Ctrl+C to stop)", cfg.CatalogDir)
	if err := w.Run(ctx); err != nil {
		return err
	}
	console.Success("%s", stoppedMessage(w))
	return nil
}

func stoppedMessage(w *watcher.Watcher) string {
	return fmt.Sprintf("Watcher stopped after %d check round(s), %d catalog reload(s)", w.Rounds(), w.Reloads())
}
