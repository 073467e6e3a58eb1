package store

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TestListRuns_NoSchema_ReturnsErrNotInitialized verifies that reading a
// fresh database (no CreateSchema) returns ErrNotInitialized.
func TestListRuns_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	_, err = s.ListRuns(0)
	if err == nil {
		t.Fatal("ListRuns() should return an error on uninitialized DB")
	}
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListRuns() error = %v; want errors.Is(err, ErrNotInitialized)", err)
	}
}

func TestLoad_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	_, err = s.Load("n8n")
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Load() error = %v; want errors.Is(err, ErrNotInitialized)", err)
	}
}

func TestErrNotInitialized_ErrorMessage(t *testing.T) {
	if !strings.Contains(ErrNotInitialized.Error(), "stackup init") {
		t.Errorf("ErrNotInitialized message %q should mention 'stackup init'", ErrNotInitialized)
	}
}

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return store
}

func TestNew(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store.db should not be nil")
	}
}

func TestCreateSchema(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	tables := []string{"runs", "install_events", "credentials", "backups", "backup_units", "health_results"}
	for _, table := range tables {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	indexes := []string{"idx_events_run", "idx_events_unit", "idx_runs_started", "idx_backup_units"}
	for _, index := range indexes {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&name)
		if err != nil {
			t.Errorf("Index %s not found: %v", index, err)
		}
	}

	// Idempotent
	if err := store.CreateSchema(); err != nil {
		t.Errorf("second CreateSchema() failed: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	started := time.Now().UTC().Truncate(time.Second)
	run := &Run{ID: "run-1", Unit: "n8n", StartedAt: started}
	if err := store.StartRun(run); err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != RunRunning {
		t.Errorf("Status = %s, want %s", got.Status, RunRunning)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", got.FinishedAt)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	finished := started.Add(90 * time.Second)
	if err := store.FinishRun("run-1", RunFailed, "postgres: exit status 1", finished); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	got, err = store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != RunFailed {
		t.Errorf("Status = %s, want %s", got.Status, RunFailed)
	}
	if got.Error != "postgres: exit status 1" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}

	if err := store.FinishRun("missing", RunSucceeded, "", finished); err == nil {
		t.Error("FinishRun() on unknown run should fail")
	}
	if _, err := store.GetRun("missing"); err == nil {
		t.Error("GetRun() on unknown run should fail")
	}
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	base := time.Now().Add(-time.Hour)
	for i, unit := range []string{"postgres", "nginx", "n8n"} {
		run := &Run{ID: unit, Unit: unit, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.StartRun(run); err != nil {
			t.Fatalf("StartRun(%s) failed: %v", unit, err)
		}
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].Unit != "n8n" {
		t.Errorf("newest run = %s, want n8n", runs[0].Unit)
	}

	runs, err = store.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs with limit, got %d", len(runs))
	}
}

func TestEvents(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.StartRun(&Run{ID: "r", Unit: "n8n", StartedAt: time.Now()}); err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}

	events := []*InstallEvent{
		{RunID: "r", Unit: "docker-engine", Parent: "n8n", Kind: EventSkip},
		{RunID: "r", Unit: "postgres", Parent: "n8n", Kind: EventInstall, ExitCode: 0},
		{RunID: "r", Unit: "n8n", Kind: EventInstall, ExitCode: 2, Message: "exit status 2"},
	}
	for _, ev := range events {
		if err := store.RecordEvent(ev); err != nil {
			t.Fatalf("RecordEvent() failed: %v", err)
		}
		if ev.ID == 0 {
			t.Error("RecordEvent() should set ID")
		}
	}

	got, err := store.GetEvents("r")
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Unit != "docker-engine" || got[0].Kind != EventSkip || got[0].Parent != "n8n" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[2].ExitCode != 2 || got[2].Message != "exit status 2" {
		t.Errorf("last event = %+v", got[2])
	}

	last, err := store.LastInstalled()
	if err != nil {
		t.Fatalf("LastInstalled() failed: %v", err)
	}
	if _, ok := last["postgres"]; !ok {
		t.Error("postgres should have a successful install")
	}
	if _, ok := last["n8n"]; ok {
		t.Error("n8n failed and should not be listed")
	}
	if _, ok := last["docker-engine"]; ok {
		t.Error("skipped units should not be listed")
	}
}

func TestEventsRequireRun(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.RecordEvent(&InstallEvent{RunID: "nope", Unit: "x", Kind: EventProbe})
	if err == nil {
		t.Error("RecordEvent() for unknown run should violate the foreign key")
	}
}

func TestCredentials(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	creds, err := store.Load("n8n")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("expected empty map, got %v", creds)
	}

	if err := store.Save("n8n", "N8N_ENCRYPTION_KEY", "abc"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := store.Save("n8n", "N8N_ENCRYPTION_KEY", "def"); err != nil {
		t.Fatalf("Save() replace failed: %v", err)
	}
	if err := store.Save("postgres", "POSTGRES_PASSWORD", "secret"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	creds, err = store.Load("n8n")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if creds["N8N_ENCRYPTION_KEY"] != "def" {
		t.Errorf("N8N_ENCRYPTION_KEY = %q, want def", creds["N8N_ENCRYPTION_KEY"])
	}

	apps, err := store.Apps()
	if err != nil {
		t.Fatalf("Apps() failed: %v", err)
	}
	if len(apps) != 2 || apps[0] != "n8n" || apps[1] != "postgres" {
		t.Errorf("Apps() = %v, want [n8n postgres]", apps)
	}

	if err := store.Delete("n8n"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	creds, _ = store.Load("n8n")
	if len(creds) != 0 {
		t.Errorf("credentials remain after Delete(): %v", creds)
	}
}

func TestBackups(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	older := time.Now().Add(-48 * time.Hour)
	id1, err := store.InsertBackup("before upgrade", 1, "/tmp/a.json", older)
	if err != nil {
		t.Fatalf("InsertBackup() failed: %v", err)
	}
	id2, err := store.InsertBackup("manual", 2, "/tmp/b.json", time.Now())
	if err != nil {
		t.Fatalf("InsertBackup() failed: %v", err)
	}

	for _, u := range []*BackupUnit{
		{BackupID: id2, Unit: "postgres", Installed: true, CredentialKeys: 2},
		{BackupID: id2, Unit: "n8n", Installed: false},
	} {
		if err := store.InsertBackupUnit(u); err != nil {
			t.Fatalf("InsertBackupUnit() failed: %v", err)
		}
	}

	list, err := store.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups() failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != id2 {
		t.Fatalf("ListBackups() = %+v, want newest first", list)
	}

	b, err := store.GetBackup(id1)
	if err != nil {
		t.Fatalf("GetBackup() failed: %v", err)
	}
	if b.Reason != "before upgrade" || b.Path != "/tmp/a.json" {
		t.Errorf("GetBackup() = %+v", b)
	}

	units, err := store.GetBackupUnits(id2)
	if err != nil {
		t.Fatalf("GetBackupUnits() failed: %v", err)
	}
	if len(units) != 2 || units[0].Unit != "n8n" || !units[1].Installed || units[1].CredentialKeys != 2 {
		t.Errorf("GetBackupUnits() = %+v", units)
	}

	if err := store.DeleteBackup(id2); err != nil {
		t.Fatalf("DeleteBackup() failed: %v", err)
	}
	units, _ = store.GetBackupUnits(id2)
	if len(units) != 0 {
		t.Errorf("backup units should cascade, got %d", len(units))
	}
	if _, err := store.GetBackup(id2); err == nil {
		t.Error("GetBackup() after delete should fail")
	}
}

func TestHealthResults(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	results := []*HealthResult{
		{Unit: "postgres", Status: "healthy", Latency: 3 * time.Millisecond, CheckedAt: now},
		{Unit: "n8n", Status: "unreachable", Detail: "connection refused", Latency: 120 * time.Millisecond, CheckedAt: now},
		{Unit: "postgres", Status: "unhealthy", Detail: "not running", CheckedAt: now},
	}
	for _, r := range results {
		if err := store.SaveHealthResult(r); err != nil {
			t.Fatalf("SaveHealthResult() failed: %v", err)
		}
	}

	got, err := store.ListHealthResults()
	if err != nil {
		t.Fatalf("ListHealthResults() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results (one per unit), got %d", len(got))
	}
	if got[0].Unit != "n8n" || got[0].Latency != 120*time.Millisecond || got[0].Detail != "connection refused" {
		t.Errorf("n8n result = %+v", got[0])
	}
	if got[1].Status != "unhealthy" {
		t.Errorf("postgres status = %s, want latest (unhealthy)", got[1].Status)
	}
	if !got[1].CheckedAt.Equal(now) {
		t.Errorf("CheckedAt = %v, want %v", got[1].CheckedAt, now)
	}
}
