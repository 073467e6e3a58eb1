package store

import (
	"fmt"
	"time"
)

// Credential operations. Together these satisfy credentials.Store.

// Save inserts or replaces one credential value.
func (s *Store) Save(app, key, value string) error {
	query := `
		INSERT OR REPLACE INTO credentials (app, key, value, updated_at)
		VALUES (?, ?, ?, ?)
	`

	if _, err := s.db.Exec(query, app, key, value, formatTime(time.Now())); err != nil {
		return wrapErr(fmt.Sprintf("save credential %s/%s", app, key), err)
	}
	return nil
}

// Load returns every credential stored for app. An unknown app yields an
// empty map.
func (s *Store) Load(app string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM credentials WHERE app = ?`, app)
	if err != nil {
		return nil, wrapErr("load credentials for "+app, err)
	}
	defer rows.Close()

	creds := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		creds[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, nil
}

// Apps returns the apps that have stored credentials, sorted.
func (s *Store) Apps() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT app FROM credentials ORDER BY app`)
	if err != nil {
		return nil, wrapErr("list credential apps", err)
	}
	defer rows.Close()

	var apps []string
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return nil, fmt.Errorf("failed to scan app row: %w", err)
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating apps: %w", err)
	}

	return apps, nil
}

// Delete removes every credential of app.
func (s *Store) Delete(app string) error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE app = ?`, app); err != nil {
		return wrapErr("delete credentials for "+app, err)
	}
	return nil
}
