package store

import "time"

// RunStatus is the outcome of an install run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one "stackup install" invocation.
type Run struct {
	ID         string
	Unit       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	Error      string
}

// EventKind classifies an install event.
type EventKind string

const (
	EventProbe    EventKind = "probe"
	EventInstall  EventKind = "install"
	EventConfirm  EventKind = "confirm"
	EventOverride EventKind = "override"
	EventSkip     EventKind = "skip"
	EventDecline  EventKind = "decline"
	EventFail     EventKind = "fail"
)

// InstallEvent records one runner step. Parent is the unit whose
// dependency list caused the step, empty for the requested unit.
type InstallEvent struct {
	ID        int64
	RunID     string
	Unit      string
	Parent    string
	Kind      EventKind
	ExitCode  int
	Message   string
	Timestamp time.Time
}

// Backup is a backup archive on disk.
type Backup struct {
	ID        int64
	CreatedAt time.Time
	Reason    string
	UnitCount int
	Path      string
}

// BackupUnit is one unit captured in a backup.
type BackupUnit struct {
	BackupID       int64
	Unit           string
	Installed      bool
	CredentialKeys int
}

// HealthResult is the last health check outcome for a unit.
type HealthResult struct {
	Unit      string
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}
