package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// AliasFile holds short names for units, one "alias=unit" per line.
const AliasFile = "aliases"

// Aliases maps short names typed on the command line to unit names.
type Aliases struct {
	targets map[string]string
}

// LoadAliases reads {dir}/aliases. A missing file yields no aliases.
// Malformed lines are reported with their line number.
func LoadAliases(dir string) (*Aliases, error) {
	a := &Aliases{targets: make(map[string]string)}

	f, err := os.Open(filepath.Join(dir, AliasFile))
	if errors.Is(err, os.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open aliases: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		alias, unit, ok := strings.Cut(line, "=")
		alias = strings.TrimSpace(alias)
		unit = strings.TrimSpace(unit)
		if !ok || alias == "" || unit == "" {
			return nil, fmt.Errorf("aliases line %d: expected alias=unit, got %q", lineNo, line)
		}
		a.targets[alias] = unit
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read aliases: %w", err)
	}

	return a, nil
}

// Resolve returns the unit an alias points at, or name itself. Aliases are
// not followed transitively.
func (a *Aliases) Resolve(name string) string {
	if a == nil {
		return name
	}
	if unit, ok := a.targets[name]; ok {
		return unit
	}
	return name
}

// Names returns the defined aliases sorted.
func (a *Aliases) Names() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.targets))
	for name := range a.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
