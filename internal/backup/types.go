// Package backup archives stored credentials and installed state of units,
// running each unit's backup script alongside.
package backup

import (
	"time"

	"github.com/blackwell-systems/stackup/internal/credentials"
	"github.com/blackwell-systems/stackup/internal/store"
	"github.com/blackwell-systems/stackup/internal/system"
	"github.com/blackwell-systems/stackup/internal/units"
)

// EnvBackupDir tells a unit's backup script where to write its files.
const EnvBackupDir = "STACKUP_BACKUP_DIR"

// DefaultRetention is how long archives are kept by Cleanup when no
// retention is configured.
const DefaultRetention = 30 * 24 * time.Hour

// Archive is the JSON document written for each backup.
type Archive struct {
	CreatedAt time.Time
	Reason    string
	Host      string
	Units     []*UnitState
}

// UnitState is one unit captured in an archive.
type UnitState struct {
	Name        string
	Installed   bool
	Credentials map[string]string `json:",omitempty"`
	// Files is the directory the unit's backup script wrote to.
	Files string `json:",omitempty"`
}

// Manager creates, restores and prunes backups.
type Manager struct {
	store *store.Store
	creds credentials.Store
	units *units.Registry
	cmd   system.Commander
	dir   string

	Now func() time.Time
}

// New creates a backup Manager writing archives under dir.
func New(s *store.Store, creds credentials.Store, reg *units.Registry, cmd system.Commander, dir string) *Manager {
	if cmd == nil {
		cmd = system.Exec{}
	}
	return &Manager{
		store: s,
		creds: creds,
		units: reg,
		cmd:   cmd,
		dir:   dir,
		Now:   time.Now,
	}
}
