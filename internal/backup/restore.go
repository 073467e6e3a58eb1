package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/stackup/internal/logging"
)

// RestoreResult summarizes a restore.
type RestoreResult struct {
	BackupID    int64
	Credentials int
	// Missing lists units that were installed when the backup was taken
	// but no longer probe as installed.
	Missing []string
}

// Restore writes the credentials recorded in backup id back through the
// credential store. Units are not reinstalled; Missing names those the
// operator may want to install again.
func (m *Manager) Restore(ctx context.Context, id int64) (*RestoreResult, error) {
	log := logging.FromContext(ctx)

	b, err := m.store.GetBackup(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}

	archive, err := Load(b.Path)
	if err != nil {
		return nil, err
	}

	res := &RestoreResult{BackupID: id}
	var failures []string

	for _, state := range archive.Units {
		keys := make([]string, 0, len(state.Credentials))
		for k := range state.Credentials {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if err := m.creds.Save(state.Name, k, state.Credentials[k]); err != nil {
				failures = append(failures, fmt.Sprintf("%s/%s: %v", state.Name, k, err))
				continue
			}
			res.Credentials++
		}

		if !state.Installed {
			continue
		}
		u, ok := m.units.Get(state.Name)
		if !ok {
			res.Missing = append(res.Missing, state.Name)
			continue
		}
		installed, err := u.IsInstalled(ctx)
		if err != nil {
			log.Warn("probe failed during restore", "unit", state.Name, "error", err)
		}
		if !installed || err != nil {
			res.Missing = append(res.Missing, state.Name)
		}
	}

	log.Info("backup restored", "backup_id", id, "credentials", res.Credentials, "missing", res.Missing)

	if len(failures) > 0 {
		return res, fmt.Errorf("restored %d credentials, %d failures: %v", res.Credentials, len(failures), failures)
	}
	return res, nil
}

// Cleanup removes backups older than maxAge, archive files and records
// both, and returns how many were removed.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	backups, err := m.store.ListBackups()
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}

	cutoff := m.Now().Add(-maxAge)
	removed := 0
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}

		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to delete backup file %s: %w", b.Path, err)
		}
		filesDir := strings.TrimSuffix(b.Path, ".json")
		if err := os.RemoveAll(filesDir); err != nil {
			return removed, fmt.Errorf("failed to delete backup files %s: %w", filesDir, err)
		}
		if err := m.store.DeleteBackup(b.ID); err != nil {
			return removed, err
		}
		removed++
	}

	logging.FromContext(ctx).Info("backup cleanup", "removed", removed, "cutoff", cutoff)
	return removed, nil
}

// Load reads an archive file.
func Load(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("failed to parse backup JSON: %w", err)
	}

	return &archive, nil
}
