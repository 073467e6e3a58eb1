package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAliases_FileNotFound(t *testing.T) {
	a, err := LoadAliases(t.TempDir())
	if err != nil {
		t.Fatalf("LoadAliases() returned error for missing file: %v", err)
	}
	if got := a.Resolve("pg"); got != "pg" {
		t.Errorf("Resolve(pg) = %q, want unchanged", got)
	}
	if len(a.Names()) != 0 {
		t.Errorf("expected no aliases, got %v", a.Names())
	}
}

func TestLoadAliases_Resolve(t *testing.T) {
	dir := t.TempDir()
	content := `# short names for units
pg = postgres
docker=docker-engine

# chained aliases are not followed
db=pg
`
	if err := os.WriteFile(filepath.Join(dir, AliasFile), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a, err := LoadAliases(dir)
	if err != nil {
		t.Fatalf("LoadAliases() error: %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"pg", "postgres"},
		{"docker", "docker-engine"},
		{"db", "pg"},
		{"nginx", "nginx"},
	}
	for _, tt := range tests {
		if got := a.Resolve(tt.name); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	if got := strings.Join(a.Names(), ","); got != "db,docker,pg" {
		t.Errorf("Names() = %s", got)
	}
}

func TestLoadAliases_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no equals", "pg postgres\n"},
		{"missing alias", "=postgres\n"},
		{"missing unit", "pg=\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, AliasFile), []byte("# header\n"+tt.content), 0644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := LoadAliases(dir)
			if err == nil || !strings.Contains(err.Error(), "line 2") {
				t.Errorf("expected line 2 error, got %v", err)
			}
		})
	}
}

func TestResolve_NilAliases(t *testing.T) {
	var a *Aliases
	if got := a.Resolve("n8n"); got != "n8n" {
		t.Errorf("Resolve on nil = %q", got)
	}
}
