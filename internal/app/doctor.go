package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/config"
	"github.com/blackwell-systems/stackup/internal/lock"
	"github.com/blackwell-systems/stackup/internal/store"
	"github.com/blackwell-systems/stackup/internal/watcher"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common setup problems",
	Long: `Runs diagnostic checks on your stackup installation.

Checks:
  • Config file loads and is valid
  • Catalog loads without problems and every install script is executable
  • Database is accessible
  • Tools used by probes are on PATH
  • Credentials directory is private
  • Install lock and health watcher state`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// probeTools maps probe kinds to the executables they call.
var probeTools = map[catalog.ProbeKind]string{
	catalog.ProbeService:   "systemctl",
	catalog.ProbeContainer: "docker",
	catalog.ProbePackage:   "dpkg-query",
}

// doctorReport counts critical issues and warnings as checks print.
type doctorReport struct {
	out      io.Writer
	critical int
	warnings int
}

func (r *doctorReport) ok(format string, args ...any) {
	fmt.Fprintf(r.out, "✓ "+format+"\n", args...)
}

func (r *doctorReport) fail(action, format string, args ...any) {
	fmt.Fprintf(r.out, "✗ "+format+"\n", args...)
	if action != "" {
		fmt.Fprintf(r.out, "  Action: %s\n", action)
	}
	r.critical++
}

func (r *doctorReport) warn(action, format string, args ...any) {
	fmt.Fprintf(r.out, "⚠ "+format+"\n", args...)
	if action != "" {
		fmt.Fprintf(r.out, "  Action: %s\n", action)
	}
	r.warnings++
}

func runDoctor(cmd *cobra.Command, args []string) error {
	r := &doctorReport{out: cmd.OutOrStdout()}
	fmt.Fprintln(r.out, "Running stackup diagnostics...")
	fmt.Fprintln(r.out)

	// Check 1: config
	cfg, err := loadConfig()
	if err != nil {
		r.fail("Fix the file or delete it to restore defaults", "Config: %v", err)
		return r.finish()
	}
	r.ok("Config loaded: %s", configFilePath())

	// Check 2: catalog
	c, err := catalog.Load(cfg.CatalogDir)
	switch {
	case err != nil:
		r.fail("Run 'stackup validate' for details", "Catalog: %v", err)
	case c.Len() == 0:
		r.warn("Run 'stackup init' to create a sample catalog", "Catalog %s has no units", cfg.CatalogDir)
	default:
		if problems := c.Problems(); len(problems) > 0 {
			r.fail("Run 'stackup validate' for details", "Catalog has %d problem(s)", len(problems))
		} else {
			r.ok("Catalog valid: %d units", c.Len())
		}
		checkScripts(r, c)
		checkProbeTools(r, c)
	}

	// Check 3: database
	if st, err := store.Open(getDBPath(cfg)); err != nil {
		r.fail("Check permissions on "+cfg.Home, "Database: %v", err)
	} else {
		runs, err := st.ListRuns(0)
		st.Close()
		if err != nil {
			r.fail("", "Database unreadable: %v", err)
		} else {
			r.ok("Database accessible: %d install run(s) recorded", len(runs))
		}
	}

	// Check 4: credentials directory permissions, warning only
	if cfg.Credentials.Backend == "file" {
		checkCredentialsDir(r, cfg)
	}

	// Check 5: install lock, warning only
	if pid, held := lock.Held(cfg.LockPath()); held {
		r.warn("Wait for it to finish", "Install lock held by PID %d", pid)
	} else {
		r.ok("No install in progress")
	}

	// Check 6: health watcher, warning only
	running, err := watcher.IsDaemonRunning(cfg.PIDPath())
	switch {
	case err != nil:
		r.warn("", "Failed to check health watcher: %v", err)
	case !running:
		r.warn("Run 'stackup watch --daemon'", "Health watcher not running")
	default:
		pid, _ := watcher.ReadPID(cfg.PIDPath())
		r.ok("Health watcher running (PID %d)", pid)
	}

	return r.finish()
}

func checkScripts(r *doctorReport, c *catalog.Catalog) {
	bad := 0
	for _, u := range c.Units() {
		info, err := os.Stat(u.Script)
		switch {
		case err != nil:
			r.fail("", "%s: install script %s missing", u.Name, u.Script)
			bad++
		case info.Mode()&0111 == 0:
			r.fail("chmod +x "+u.Script, "%s: install script is not executable", u.Name)
			bad++
		}
	}
	if bad == 0 {
		r.ok("All install scripts present and executable")
	}
}

func checkProbeTools(r *doctorReport, c *catalog.Catalog) {
	needed := make(map[string][]string)
	for _, u := range c.Units() {
		if tool, ok := probeTools[u.Probe.Kind]; ok {
			needed[tool] = append(needed[tool], u.Name)
		}
	}

	tools := make([]string, 0, len(needed))
	for tool := range needed {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			r.warn("", "%s not on PATH, probes for %v will report not installed", tool, needed[tool])
			continue
		}
		r.ok("%s found", tool)
	}
}

func checkCredentialsDir(r *doctorReport, cfg *config.Config) {
	info, err := os.Stat(cfg.Credentials.Dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.ok("No credentials stored yet")
	case err != nil:
		r.warn("", "Credentials directory: %v", err)
	case info.Mode().Perm()&0077 != 0:
		r.warn("chmod 700 "+cfg.Credentials.Dir, "Credentials directory is readable by other users")
	default:
		r.ok("Credentials directory is private")
	}
}

func (r *doctorReport) finish() error {
	fmt.Fprintln(r.out)
	if r.critical == 0 && r.warnings == 0 {
		fmt.Fprintln(r.out, "✓ All checks passed!")
		return nil
	}
	if r.critical > 0 {
		fmt.Fprintf(r.out, "Found %d critical issue(s) and %d warning(s).\n", r.critical, r.warnings)
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Fprintf(r.out, "Found %d warning(s). stackup is functional but not fully configured.\n", r.warnings)
	return nil
}
