package units

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/credentials"
	"github.com/blackwell-systems/stackup/internal/probe"
	"github.com/blackwell-systems/stackup/internal/runner"
	"github.com/blackwell-systems/stackup/internal/system"
)

// Environment variables passed to install scripts.
const (
	EnvUnit           = "STACKUP_UNIT"
	EnvHome           = "STACKUP_HOME"
	EnvCredentialsDir = "STACKUP_CREDENTIALS_DIR"
	EnvBin            = "STACKUP_BIN"
)

// Scripted is a catalog unit backed by a probe and a script action.
type Scripted struct {
	def    *catalog.Unit
	probe  probe.Probe
	action *ScriptAction
	creds  credentials.Store
}

func (u *Scripted) Name() string                   { return u.def.Name }
func (u *Scripted) Description() string            { return u.def.Description }
func (u *Scripted) Dependencies() []string         { return u.def.Dependencies }
func (u *Scripted) OptionalDependencies() []string { return u.def.Optional }

// Definition returns the catalog entry.
func (u *Scripted) Definition() *catalog.Unit { return u.def }

// Probe returns the unit's installed check.
func (u *Scripted) Probe() probe.Probe { return u.probe }

func (u *Scripted) IsInstalled(ctx context.Context) (bool, error) {
	return u.probe.IsInstalled(ctx)
}

// Install runs the unit's script. Credentials already stored for the unit
// are exported to the script so a re-run reuses them.
func (u *Scripted) Install(ctx context.Context) error {
	if u.creds == nil {
		return u.action.Run(ctx)
	}

	stored, err := u.creds.Load(u.def.Name)
	if err != nil {
		return fmt.Errorf("failed to load credentials for %s: %w", u.def.Name, err)
	}
	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+stored[k])
	}
	return u.action.Run(ctx, env...)
}

// Tail returns the last output lines of the most recent install.
func (u *Scripted) Tail() []string {
	return u.action.Tail()
}

// Options configures how catalog entries become units.
type Options struct {
	Cmd         system.Commander
	Credentials credentials.Store
	// Home is exported as STACKUP_HOME.
	Home string
	// CredentialsDir is exported as STACKUP_CREDENTIALS_DIR.
	CredentialsDir string
	// Bin is exported as STACKUP_BIN. Defaults to the running executable.
	Bin       string
	LogDir    string
	TailLines int
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

// Registry resolves unit names against a catalog.
type Registry struct {
	catalog *catalog.Catalog
	units   map[string]*Scripted
}

// NewRegistry builds a unit for every catalog entry.
func NewRegistry(c *catalog.Catalog, opts Options) (*Registry, error) {
	if opts.Cmd == nil {
		opts.Cmd = system.Exec{}
	}
	if opts.Bin == "" {
		if exe, err := os.Executable(); err == nil {
			opts.Bin = exe
		}
	}

	reg := &Registry{catalog: c, units: make(map[string]*Scripted, c.Len())}
	for _, def := range c.Units() {
		p, err := probe.FromSpec(opts.Cmd, def.Probe)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", def.Name, err)
		}

		reg.units[def.Name] = &Scripted{
			def:   def,
			probe: p,
			creds: opts.Credentials,
			action: &ScriptAction{
				Cmd:    opts.Cmd,
				Unit:   def.Name,
				Script: def.Script,
				Env: []string{
					EnvUnit + "=" + def.Name,
					EnvHome + "=" + opts.Home,
					EnvCredentialsDir + "=" + opts.CredentialsDir,
					EnvBin + "=" + opts.Bin,
				},
				LogDir:    opts.LogDir,
				Stdin:     opts.Stdin,
				Stdout:    opts.Stdout,
				Stderr:    opts.Stderr,
				TailLines: opts.TailLines,
			},
		}
	}

	return reg, nil
}

// Lookup implements runner.Registry.
func (r *Registry) Lookup(name string) (runner.Unit, bool) {
	u, ok := r.units[name]
	if !ok {
		return nil, false
	}
	return u, true
}

// Get returns the scripted unit for name.
func (r *Registry) Get(name string) (*Scripted, bool) {
	u, ok := r.units[name]
	return u, ok
}

// Units returns all units sorted by name.
func (r *Registry) Units() []*Scripted {
	names := r.catalog.Names()
	out := make([]*Scripted, 0, len(names))
	for _, name := range names {
		out = append(out, r.units[name])
	}
	return out
}
