package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Backup operations

// InsertBackup creates a new backup record and returns its ID.
func (s *Store) InsertBackup(reason string, unitCount int, path string, createdAt time.Time) (int64, error) {
	query := `
		INSERT INTO backups (created_at, reason, unit_count, backup_path)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		formatTime(createdAt),
		reason,
		unitCount,
		path,
	)
	if err != nil {
		return 0, wrapErr("insert backup", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get backup ID: %w", err)
	}

	return id, nil
}

// GetBackup retrieves a backup by ID.
func (s *Store) GetBackup(id int64) (*Backup, error) {
	query := `
		SELECT id, created_at, reason, unit_count, backup_path
		FROM backups
		WHERE id = ?
	`

	b, err := scanBackup(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("backup %d not found", id)
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get backup %d", id), err)
	}
	return b, nil
}

// ListBackups returns all backups ordered by creation time (newest first).
func (s *Store) ListBackups() ([]*Backup, error) {
	query := `
		SELECT id, created_at, reason, unit_count, backup_path
		FROM backups
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapErr("list backups", err)
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		backups = append(backups, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}

	return backups, nil
}

func scanBackup(row rowScanner) (*Backup, error) {
	var b Backup
	var createdAt string
	var reason sql.NullString

	if err := row.Scan(&b.ID, &createdAt, &reason, &b.UnitCount, &b.Path); err != nil {
		return nil, err
	}

	var err error
	b.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for backup %d: %w", b.ID, err)
	}
	b.Reason = reason.String

	return &b, nil
}

// DeleteBackup removes a backup record and its units.
func (s *Store) DeleteBackup(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id); err != nil {
		return wrapErr(fmt.Sprintf("delete backup %d", id), err)
	}
	return nil
}

// InsertBackupUnit adds a unit to a backup.
func (s *Store) InsertBackupUnit(u *BackupUnit) error {
	query := `
		INSERT INTO backup_units (backup_id, unit, installed, credential_keys)
		VALUES (?, ?, ?, ?)
	`

	if _, err := s.db.Exec(query, u.BackupID, u.Unit, u.Installed, u.CredentialKeys); err != nil {
		return wrapErr(fmt.Sprintf("insert unit %s into backup %d", u.Unit, u.BackupID), err)
	}
	return nil
}

// GetBackupUnits returns the units of a backup sorted by name.
func (s *Store) GetBackupUnits(backupID int64) ([]*BackupUnit, error) {
	query := `
		SELECT backup_id, unit, installed, credential_keys
		FROM backup_units
		WHERE backup_id = ?
		ORDER BY unit
	`

	rows, err := s.db.Query(query, backupID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get units of backup %d", backupID), err)
	}
	defer rows.Close()

	var units []*BackupUnit
	for rows.Next() {
		var u BackupUnit
		if err := rows.Scan(&u.BackupID, &u.Unit, &u.Installed, &u.CredentialKeys); err != nil {
			return nil, fmt.Errorf("failed to scan backup unit row: %w", err)
		}
		units = append(units, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup units: %w", err)
	}

	return units, nil
}
