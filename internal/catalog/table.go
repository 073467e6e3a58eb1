package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// optionalSuffix marks an optional-dependency line in the flat table.
const optionalSuffix = ".optional"

// SplitList parses a comma-separated list of unit names. Whitespace around
// entries is trimmed, empty entries are dropped, and only the first
// occurrence of a repeated name is kept. Order is preserved.
func SplitList(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// FlatTable is the parsed form of dependencies.conf.
//
//	# unit=required,dependencies
//	n8n=docker-engine,postgres,nginx,certbot
//	n8n.optional=ollama
type FlatTable struct {
	Dependencies map[string][]string
	Optional     map[string][]string

	// order records unit names in first-seen order.
	order []string
}

// Units returns the unit names mentioned in the table in file order.
func (t *FlatTable) Units() []string {
	return t.order
}

func (t *FlatTable) note(name string) {
	if _, ok := t.Dependencies[name]; ok {
		return
	}
	if _, ok := t.Optional[name]; ok {
		return
	}
	t.order = append(t.order, name)
}

// ParseFlatTable reads a flat dependency table. Blank lines and lines
// starting with # are ignored. A line without "=" or with an empty unit
// name is an error.
func ParseFlatTable(r io.Reader) (*FlatTable, error) {
	table := &FlatTable{
		Dependencies: make(map[string][]string),
		Optional:     make(map[string][]string),
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("line %d: expected name=dependencies, got %q", lineNo, line)
		}

		key := strings.TrimSpace(line[:idx])
		value := line[idx+1:]

		optional := false
		if strings.HasSuffix(key, optionalSuffix) {
			key = strings.TrimSuffix(key, optionalSuffix)
			optional = true
		}
		if key == "" {
			return nil, fmt.Errorf("line %d: missing unit name", lineNo)
		}

		table.note(key)
		if optional {
			table.Optional[key] = SplitList(value)
		} else {
			table.Dependencies[key] = SplitList(value)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dependency table: %w", err)
	}

	return table, nil
}

// LoadFlatTable reads the table at path. A missing file yields an empty
// table without error.
func LoadFlatTable(path string) (*FlatTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FlatTable{
				Dependencies: make(map[string][]string),
				Optional:     make(map[string][]string),
			}, nil
		}
		return nil, fmt.Errorf("failed to open dependency table: %w", err)
	}
	defer f.Close()

	table, err := ParseFlatTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
