// Package catalog holds the static unit definitions stackup installs from.
//
// A catalog is read from two files in a catalog directory:
//
//   - catalog.toml describes each unit (script, probe, health endpoint).
//   - dependencies.conf is a flat "name=dep1,dep2" table that can declare or
//     override dependency lists without touching the TOML file.
//
// Units are looked up by exact name. A name missing from the dependency
// table has no dependencies.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnitNotFound is returned when a unit name is not in the catalog.
var ErrUnitNotFound = errors.New("installer not found")

// ErrCycle marks a dependency cycle between units.
var ErrCycle = errors.New("dependency cycle")

// CycleError reports the units forming a dependency cycle. The first and
// last entries of Path are the same unit.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// ProbeKind selects how a unit is detected on the host.
type ProbeKind string

const (
	// ProbeBinary: an executable is on PATH.
	ProbeBinary ProbeKind = "binary"
	// ProbeService: an executable is on PATH and its systemd service is active.
	ProbeService ProbeKind = "service"
	// ProbeContainer: a container with the given name exists and is running.
	ProbeContainer ProbeKind = "container"
	// ProbePackage: a dpkg package is installed.
	ProbePackage ProbeKind = "package"
	// ProbeAlways and ProbeNever give fixed answers.
	ProbeAlways ProbeKind = "always"
	ProbeNever  ProbeKind = "never"
)

// ProbeSpec is the declarative detection strategy for a unit.
type ProbeSpec struct {
	Kind      ProbeKind `toml:"kind" validate:"required,oneof=binary service container package always never"`
	Binary    string    `toml:"binary"`
	Service   string    `toml:"service" validate:"required_if=Kind service"`
	Container string    `toml:"container" validate:"required_if=Kind container"`
	Package   string    `toml:"package" validate:"required_if=Kind package"`

	// RequireActive applies to service probes. When false, a unit whose
	// binary is present but whose service is stopped still counts as
	// installed. Defaults to true.
	RequireActive *bool `toml:"require_active"`
}

// ActiveRequired reports whether a service probe needs the service running.
func (p ProbeSpec) ActiveRequired() bool {
	return p.RequireActive == nil || *p.RequireActive
}

// Unit is an installable piece of software.
type Unit struct {
	Name         string    `validate:"required,unitname"`
	Description  string
	Dependencies []string  `validate:"dive,unitname"`
	Optional     []string  `validate:"dive,unitname"`
	Script       string    `validate:"required"`
	Probe        ProbeSpec `validate:"required"`

	// Health is an optional http://, https:// or tcp:// endpoint checked by
	// the health command once the unit is installed.
	Health string `validate:"omitempty,health_endpoint"`

	// Backup is an optional script run by "stackup backup create".
	Backup string
}

// Catalog is the set of known units.
type Catalog struct {
	Dir   string
	units map[string]*Unit
}

// New creates a catalog holding the given units.
func New(units ...*Unit) *Catalog {
	c := &Catalog{units: make(map[string]*Unit, len(units))}
	for _, u := range units {
		c.Add(u)
	}
	return c
}

// Add registers a unit, replacing any unit of the same name.
func (c *Catalog) Add(u *Unit) {
	if c.units == nil {
		c.units = make(map[string]*Unit)
	}
	c.units[u.Name] = u
}

// Lookup returns the unit with the exact given name.
func (c *Catalog) Lookup(name string) (*Unit, bool) {
	u, ok := c.units[name]
	return u, ok
}

// Get is Lookup returning ErrUnitNotFound for unknown names.
func (c *Catalog) Get(name string) (*Unit, error) {
	u, ok := c.units[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}
	return u, nil
}

// Dependencies returns the declared required dependencies of name, or nil
// when the unit is unknown or declares none.
func (c *Catalog) Dependencies(name string) []string {
	if u, ok := c.units[name]; ok {
		return u.Dependencies
	}
	return nil
}

// OptionalDependencies returns the declared optional dependencies of name.
func (c *Catalog) OptionalDependencies(name string) []string {
	if u, ok := c.units[name]; ok {
		return u.Optional
	}
	return nil
}

// Names returns all unit names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.units))
	for name := range c.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Units returns all units sorted by name.
func (c *Catalog) Units() []*Unit {
	names := c.Names()
	units := make([]*Unit, len(names))
	for i, name := range names {
		units[i] = c.units[name]
	}
	return units
}

// Len returns the number of units.
func (c *Catalog) Len() int {
	return len(c.units)
}
