package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/stackup/internal/backup"
	"github.com/blackwell-systems/stackup/internal/lock"
	"github.com/blackwell-systems/stackup/internal/output"
	"github.com/blackwell-systems/stackup/internal/prompt"
)

var (
	backupReason  string
	backupYes     bool
	backupMaxDays int

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Create and restore backups of credentials and unit data",
		Long: `A backup is a JSON archive of each selected unit's credentials and
installed state. Units whose catalog entry has a backup script also get a
directory next to the archive, filled by that script.

Restoring writes the credentials back. Units that were installed when the
backup was taken but are missing now are listed so they can be
reinstalled.`,
	}

	backupCreateCmd = &cobra.Command{
		Use:   "create [unit...]",
		Short: "Back up the named units, or every installed unit",
		Example: `  stackup backup create
  stackup backup create postgres n8n --reason "before upgrade"`,
		RunE: runBackupCreate,
	}

	backupListCmd = &cobra.Command{
		Use:   "list",
		Short: "List backups",
		Args:  cobra.NoArgs,
		RunE:  runBackupList,
	}

	backupRestoreCmd = &cobra.Command{
		Use:   "restore <backup-id | latest>",
		Short: "Restore credentials from a backup",
		Example: `  stackup backup restore latest
  stackup backup restore 42 --yes`,
		Args: cobra.ExactArgs(1),
		RunE: runBackupRestore,
	}

	backupCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than the retention period",
		Args:  cobra.NoArgs,
		RunE:  runBackupCleanup,
	}
)

func init() {
	backupCreateCmd.Flags().StringVar(&backupReason, "reason", "manual", "note stored with the backup")
	backupRestoreCmd.Flags().BoolVarP(&backupYes, "yes", "y", false, "skip confirmation prompt")
	backupCleanupCmd.Flags().IntVar(&backupMaxDays, "older-than", 0, "age in days (default: backup.retention_days from config)")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupCleanupCmd)
	RootCmd.AddCommand(backupCmd)
}

func openBackups(cmd *cobra.Command) (*env, *backup.Manager, error) {
	e, err := openEnv(cmd)
	if err != nil {
		return nil, nil, err
	}
	return e, backup.New(e.store, e.creds, e.units, nil, e.cfg.Backup.Dir), nil
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	e, mgr, err := openBackups(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	names, err := e.unitNames(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	spinner := output.NewSpinner(out, "Creating backup...")
	spinner.Start()
	id, err := mgr.Create(e.ctx, names, backupReason)
	if err != nil {
		spinner.Stop()
		return err
	}
	spinner.StopWithMessage(fmt.Sprintf("✓ Backup %d created", id))

	b, err := e.store.GetBackup(id)
	if err == nil {
		fmt.Fprintf(out, "  %d unit(s) in %s\n", b.UnitCount, b.Path)
	}
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	e, mgr, err := openBackups(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	backups, err := mgr.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, output.RenderBackupTable(backups))
	if len(backups) > 0 {
		fmt.Fprintf(out, "\nRestore with: stackup backup restore <id>\n")
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	e, mgr, err := openBackups(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := backupID(mgr, args[0])
	if err != nil {
		return err
	}

	b, err := e.store.GetBackup(id)
	if err != nil {
		return fmt.Errorf("backup %d not found\n\nRun 'stackup backup list' to see available backups", id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backup %d\n", b.ID)
	fmt.Fprintf(out, "  Created: %s\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Reason:  %s\n", b.Reason)
	fmt.Fprintf(out, "  Units:   %d\n\n", b.UnitCount)

	if !backupYes {
		p, err := prompt.New(e.cfg.Prompt)
		if err != nil {
			return err
		}
		ok, err := p.Confirm(fmt.Sprintf("Restore credentials from backup %d?", id))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Restore cancelled.")
			return nil
		}
	}

	var res *backup.RestoreResult
	err = lock.With(e.cfg.LockPath(), func() error {
		var restoreErr error
		res, restoreErr = mgr.Restore(e.ctx, id)
		return restoreErr
	})
	if res != nil {
		fmt.Fprintf(out, "✓ Restored %d credential(s) from backup %d\n", res.Credentials, id)
		if len(res.Missing) > 0 {
			fmt.Fprintf(out, "\n⚠ Installed at backup time but missing now: %s\n", strings.Join(res.Missing, ", "))
			fmt.Fprintf(out, "  Reinstall with: stackup install %s\n", res.Missing[0])
		}
	}
	return err
}

// backupID parses a numeric id or "latest".
func backupID(mgr *backup.Manager, arg string) (int64, error) {
	if strings.EqualFold(arg, "latest") {
		backups, err := mgr.List()
		if err != nil {
			return 0, err
		}
		if len(backups) == 0 {
			return 0, fmt.Errorf("no backups available\n\nCreate one with 'stackup backup create'")
		}
		return backups[0].ID, nil
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid backup ID: %s (must be a number or 'latest')", arg)
	}
	return id, nil
}

func runBackupCleanup(cmd *cobra.Command, args []string) error {
	e, mgr, err := openBackups(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	maxAge := e.cfg.Retention()
	if backupMaxDays > 0 {
		maxAge = daysToDuration(backupMaxDays)
	}

	removed, err := mgr.Cleanup(e.ctx, maxAge)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d backup(s) older than %d days\n", removed, int(maxAge.Hours()/24))
	return nil
}
