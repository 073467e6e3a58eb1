package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// File names inside a catalog directory.
const (
	CatalogFile = "catalog.toml"
	TableFile   = "dependencies.conf"
	ScriptsDir  = "scripts"
)

// fileUnit is the on-disk shape of a [units.<name>] table. Dependency lists
// are comma-separated strings, the same syntax as dependencies.conf.
type fileUnit struct {
	Description  string     `toml:"description"`
	Dependencies string     `toml:"dependencies"`
	Optional     string     `toml:"optional"`
	Script       string     `toml:"script"`
	Probe        *ProbeSpec `toml:"probe"`
	Health       string     `toml:"health"`
	Backup       string     `toml:"backup"`
}

type catalogFile struct {
	Units map[string]fileUnit `toml:"units"`
}

// Load reads catalog.toml and dependencies.conf from dir. Either file may
// be absent; entries in dependencies.conf replace the lists declared in
// catalog.toml and add units that the TOML file does not mention.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{Dir: dir, units: make(map[string]*Unit)}

	data, err := os.ReadFile(filepath.Join(dir, CatalogFile))
	switch {
	case err == nil:
		parsed, parseErr := Parse(data, dir)
		if parseErr != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Join(dir, CatalogFile), parseErr)
		}
		c = parsed
	case errors.Is(err, os.ErrNotExist):
		// Catalog may be defined by the flat table alone.
	default:
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	table, err := LoadFlatTable(filepath.Join(dir, TableFile))
	if err != nil {
		return nil, err
	}
	c.Apply(table)

	return c, nil
}

// Parse decodes catalog TOML. Relative script paths resolve against dir.
func Parse(data []byte, dir string) (*Catalog, error) {
	var f catalogFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown catalog field:\n%s", strict.String())
		}
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{Dir: dir, units: make(map[string]*Unit, len(f.Units))}
	for name, fu := range f.Units {
		u := defaultUnit(name, dir)
		u.Description = fu.Description
		u.Dependencies = SplitList(fu.Dependencies)
		u.Optional = SplitList(fu.Optional)
		u.Health = fu.Health
		if fu.Script != "" {
			u.Script = resolvePath(dir, fu.Script)
		}
		if fu.Backup != "" {
			u.Backup = resolvePath(dir, fu.Backup)
		}
		if fu.Probe != nil {
			u.Probe = *fu.Probe
			if u.Probe.Binary == "" && (u.Probe.Kind == ProbeBinary || u.Probe.Kind == ProbeService) {
				u.Probe.Binary = name
			}
		}
		c.Add(u)
	}

	return c, nil
}

// Apply merges a flat dependency table into the catalog.
func (c *Catalog) Apply(table *FlatTable) {
	for _, name := range table.Units() {
		u, ok := c.units[name]
		if !ok {
			u = defaultUnit(name, c.Dir)
			c.Add(u)
		}
		if deps, ok := table.Dependencies[name]; ok {
			u.Dependencies = deps
		}
		if opt, ok := table.Optional[name]; ok {
			u.Optional = opt
		}
	}
}

// defaultUnit returns a unit installed by scripts/<name>.sh and detected
// by an executable of the same name.
func defaultUnit(name, dir string) *Unit {
	return &Unit{
		Name:   name,
		Script: filepath.Join(dir, ScriptsDir, name+".sh"),
		Probe: ProbeSpec{
			Kind:   ProbeBinary,
			Binary: name,
		},
	}
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
