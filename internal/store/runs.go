package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run operations

// StartRun inserts a run in the running state.
func (s *Store) StartRun(run *Run) error {
	query := `
		INSERT INTO runs (id, unit, started_at, status, error)
		VALUES (?, ?, ?, ?, '')
	`

	status := run.Status
	if status == "" {
		status = RunRunning
	}

	_, err := s.db.Exec(query,
		run.ID,
		run.Unit,
		formatTime(run.StartedAt),
		string(status),
	)
	if err != nil {
		return wrapErr("insert run "+run.ID, err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(id string, status RunStatus, errMsg string, finishedAt time.Time) error {
	query := `
		UPDATE runs SET finished_at = ?, status = ?, error = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query, formatTime(finishedAt), string(status), errMsg, id)
	if err != nil {
		return wrapErr("finish run "+id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check finished run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	query := `
		SELECT id, unit, started_at, finished_at, status, error
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, wrapErr("get run "+id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns
// all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `
		SELECT id, unit, started_at, finished_at, status, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr("list runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	var status string
	var errMsg sql.NullString

	if err := row.Scan(&run.ID, &run.Unit, &startedAt, &finishedAt, &status, &errMsg); err != nil {
		return nil, err
	}

	var err error
	run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at for run %s: %w", run.ID, err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for run %s: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	run.Status = RunStatus(status)
	run.Error = errMsg.String

	return &run, nil
}

// Event operations

// RecordEvent appends an install event.
func (s *Store) RecordEvent(ev *InstallEvent) error {
	query := `
		INSERT INTO install_events (run_id, unit, parent, kind, exit_code, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	result, err := s.db.Exec(query,
		ev.RunID,
		ev.Unit,
		ev.Parent,
		string(ev.Kind),
		ev.ExitCode,
		ev.Message,
		formatTime(ts),
	)
	if err != nil {
		return wrapErr("record event for "+ev.Unit, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

// GetEvents returns the events of a run in the order they were recorded.
func (s *Store) GetEvents(runID string) ([]*InstallEvent, error) {
	query := `
		SELECT id, run_id, unit, parent, kind, exit_code, message, timestamp
		FROM install_events
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, wrapErr("get events for run "+runID, err)
	}
	defer rows.Close()

	var events []*InstallEvent
	for rows.Next() {
		var ev InstallEvent
		var parent, message sql.NullString
		var exitCode sql.NullInt64
		var kind, ts string

		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Unit, &parent, &kind, &exitCode, &message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ev.Parent = parent.String
		ev.Kind = EventKind(kind)
		ev.ExitCode = int(exitCode.Int64)
		ev.Message = message.String
		ev.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp for event %d: %w", ev.ID, err)
		}

		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// LastInstalled returns when each unit last completed an install action
// successfully, keyed by unit name.
func (s *Store) LastInstalled() (map[string]time.Time, error) {
	query := `
		SELECT unit, MAX(timestamp)
		FROM install_events
		WHERE kind = ? AND exit_code = 0
		GROUP BY unit
	`

	rows, err := s.db.Query(query, string(EventInstall))
	if err != nil {
		return nil, wrapErr("query last installs", err)
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var unit, ts string
		if err := rows.Scan(&unit, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan install row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse install time for %s: %w", unit, err)
		}
		last[unit] = t
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installs: %w", err)
	}

	return last, nil
}
