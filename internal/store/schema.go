package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    unit TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    status TEXT NOT NULL,
    error TEXT
);

CREATE TABLE IF NOT EXISTS install_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    unit TEXT NOT NULL,
    parent TEXT,
    kind TEXT NOT NULL,
    exit_code INTEGER,
    message TEXT,
    timestamp TIMESTAMP NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS credentials (
    app TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app, key)
);

CREATE TABLE IF NOT EXISTS backups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TIMESTAMP NOT NULL,
    reason TEXT,
    unit_count INTEGER,
    backup_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backup_units (
    backup_id INTEGER NOT NULL,
    unit TEXT NOT NULL,
    installed BOOLEAN,
    credential_keys INTEGER,
    FOREIGN KEY (backup_id) REFERENCES backups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS health_results (
    unit TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    detail TEXT,
    latency_ms INTEGER,
    checked_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_run ON install_events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_unit ON install_events(unit);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_backup_units ON backup_units(backup_id);
`
