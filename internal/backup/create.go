package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/logging"
	"github.com/blackwell-systems/stackup/internal/store"
	"github.com/blackwell-systems/stackup/internal/system"
	"github.com/blackwell-systems/stackup/internal/units"
)

// Create backs up the named units and returns the backup ID. With no names,
// every unit that currently probes as installed is backed up.
func (m *Manager) Create(ctx context.Context, names []string, reason string) (int64, error) {
	log := logging.FromContext(ctx)

	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return 0, fmt.Errorf("failed to create backup directory: %w", err)
	}

	selected, err := m.selectUnits(ctx, names)
	if err != nil {
		return 0, err
	}

	createdAt := m.Now()
	stamp := createdAt.Format("2006-01-02-150405")
	archivePath, err := m.reservePath(stamp)
	if err != nil {
		return 0, err
	}
	filesDir := strings.TrimSuffix(archivePath, ".json")

	host, _ := os.Hostname()
	archive := &Archive{
		CreatedAt: createdAt,
		Reason:    reason,
		Host:      host,
		Units:     make([]*UnitState, 0, len(selected)),
	}

	for _, u := range selected {
		state := &UnitState{Name: u.Name()}

		installed, err := u.IsInstalled(ctx)
		if err != nil {
			log.Warn("probe failed during backup", "unit", u.Name(), "error", err)
		}
		state.Installed = installed && err == nil

		creds, err := m.creds.Load(u.Name())
		if err != nil {
			os.Remove(archivePath)
			return 0, fmt.Errorf("failed to load credentials for %s: %w", u.Name(), err)
		}
		if len(creds) > 0 {
			state.Credentials = creds
		}

		if script := u.Definition().Backup; script != "" && state.Installed {
			dir := filepath.Join(filesDir, u.Name())
			if err := m.runScript(ctx, u, script, dir, creds); err != nil {
				os.Remove(archivePath)
				return 0, err
			}
			state.Files = dir
		}

		archive.Units = append(archive.Units, state)
	}

	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		os.Remove(archivePath)
		return 0, fmt.Errorf("failed to marshal backup: %w", err)
	}
	if err := os.WriteFile(archivePath, data, 0600); err != nil {
		os.Remove(archivePath)
		return 0, fmt.Errorf("failed to write backup file: %w", err)
	}

	id, err := m.store.InsertBackup(reason, len(archive.Units), archivePath, createdAt)
	if err != nil {
		os.Remove(archivePath)
		return 0, fmt.Errorf("failed to record backup: %w", err)
	}

	for _, state := range archive.Units {
		row := &store.BackupUnit{
			BackupID:       id,
			Unit:           state.Name,
			Installed:      state.Installed,
			CredentialKeys: len(state.Credentials),
		}
		if err := m.store.InsertBackupUnit(row); err != nil {
			return 0, fmt.Errorf("failed to record backup unit %s: %w", state.Name, err)
		}
	}

	log.Info("backup created", "backup_id", id, "units", len(archive.Units), "path", archivePath)
	return id, nil
}

// List returns all backups, newest first.
func (m *Manager) List() ([]*store.Backup, error) {
	backups, err := m.store.ListBackups()
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return backups, nil
}

func (m *Manager) selectUnits(ctx context.Context, names []string) ([]*units.Scripted, error) {
	if len(names) == 0 {
		var out []*units.Scripted
		for _, u := range m.units.Units() {
			ok, err := u.IsInstalled(ctx)
			if err != nil {
				logging.FromContext(ctx).Warn("probe failed during backup", "unit", u.Name(), "error", err)
				continue
			}
			if ok {
				out = append(out, u)
			}
		}
		return out, nil
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	out := make([]*units.Scripted, 0, len(sorted))
	for i, name := range sorted {
		if i > 0 && sorted[i-1] == name {
			continue
		}
		u, ok := m.units.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnitNotFound, name)
		}
		out = append(out, u)
	}
	return out, nil
}

// reservePath creates an empty archive file named after stamp, adding a
// numeric suffix when a backup from the same second exists.
func (m *Manager) reservePath(stamp string) (string, error) {
	for i := 0; i < 100; i++ {
		name := stamp + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.json", stamp, i)
		}
		path := filepath.Join(m.dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create backup file: %w", err)
		}
		f.Close()
		return path, nil
	}
	return "", fmt.Errorf("too many backups created at %s", stamp)
}

func (m *Manager) runScript(ctx context.Context, u *units.Scripted, script, dir string, creds map[string]string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create backup directory for %s: %w", u.Name(), err)
	}

	env := []string{
		units.EnvUnit + "=" + u.Name(),
		EnvBackupDir + "=" + dir,
	}
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+creds[k])
	}

	transcript, err := os.OpenFile(filepath.Join(dir, "backup.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open backup log for %s: %w", u.Name(), err)
	}
	defer transcript.Close()

	start := time.Now()
	code, err := m.cmd.Stream(ctx, system.Spec{
		Path:   script,
		Dir:    filepath.Dir(script),
		Env:    env,
		Stdout: transcript,
		Stderr: transcript,
	})
	if err != nil {
		return fmt.Errorf("failed to run backup script for %s: %w", u.Name(), err)
	}
	if code != 0 {
		return fmt.Errorf("backup script for %s exited with code %d (see %s)", u.Name(), code, transcript.Name())
	}

	logging.FromContext(ctx).Info("backup script finished", "unit", u.Name(), "duration", time.Since(start))
	return nil
}
