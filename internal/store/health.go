package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Health operations

// SaveHealthResult stores the latest result for a unit, replacing the
// previous one.
func (s *Store) SaveHealthResult(r *HealthResult) error {
	query := `
		INSERT OR REPLACE INTO health_results (unit, status, detail, latency_ms, checked_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		r.Unit,
		r.Status,
		r.Detail,
		r.Latency.Milliseconds(),
		formatTime(r.CheckedAt),
	)
	if err != nil {
		return wrapErr("save health result for "+r.Unit, err)
	}
	return nil
}

// ListHealthResults returns the stored results sorted by unit.
func (s *Store) ListHealthResults() ([]*HealthResult, error) {
	query := `
		SELECT unit, status, detail, latency_ms, checked_at
		FROM health_results
		ORDER BY unit
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapErr("list health results", err)
	}
	defer rows.Close()

	var results []*HealthResult
	for rows.Next() {
		var r HealthResult
		var detail sql.NullString
		var latencyMs int64
		var checkedAt string

		if err := rows.Scan(&r.Unit, &r.Status, &detail, &latencyMs, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan health row: %w", err)
		}

		r.Detail = detail.String
		r.Latency = time.Duration(latencyMs) * time.Millisecond
		r.CheckedAt, err = time.Parse(time.RFC3339, checkedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checked_at for %s: %w", r.Unit, err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health results: %w", err)
	}

	return results, nil
}
