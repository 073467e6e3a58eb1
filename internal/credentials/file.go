package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const envExt = ".env"

// FileStore keeps one <app>.env file of KEY=value lines per application.
// The directory is created 0700 and files are written 0600.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(app string) string {
	return filepath.Join(s.Dir, app+envExt)
}

func (s *FileStore) Save(app, key, value string) error {
	if err := CheckApp(app); err != nil {
		return err
	}
	if err := CheckKey(key); err != nil {
		return err
	}

	creds, err := s.Load(app)
	if err != nil {
		return err
	}
	creds[key] = value

	return s.write(app, creds)
}

func (s *FileStore) Load(app string) (map[string]string, error) {
	if err := CheckApp(app); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(app))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to open credentials for %s: %w", app, err)
	}
	defer f.Close()

	creds, err := parseEnv(bufio.NewScanner(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path(app), err)
	}
	return creds, nil
}

func (s *FileStore) Apps() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials directory: %w", err)
	}

	var apps []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), envExt) {
			continue
		}
		app := strings.TrimSuffix(e.Name(), envExt)
		if CheckApp(app) == nil {
			apps = append(apps, app)
		}
	}
	sort.Strings(apps)
	return apps, nil
}

func (s *FileStore) Delete(app string) error {
	if err := CheckApp(app); err != nil {
		return err
	}
	if err := os.Remove(s.path(app)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete credentials for %s: %w", app, err)
	}
	return nil
}

// write replaces the app's file atomically via a temp file and rename.
func (s *FileStore) write(app string, creds map[string]string) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+app+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "# stackup credentials for %s\n", app)
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s=%s\n", k, encodeValue(creds[k]))
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(app)); err != nil {
		return fmt.Errorf("failed to replace credentials for %s: %w", app, err)
	}
	return nil
}

// parseEnv reads KEY=value lines. Blank lines, # comments and a leading
// "export " are ignored; double-quoted values are unquoted.
func parseEnv(scanner *bufio.Scanner) (map[string]string, error) {
	creds := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			return nil, fmt.Errorf("line %d: expected KEY=value", lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		if strings.HasPrefix(value, `"`) {
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad quoted value: %w", lineNo, err)
			}
			value = unquoted
		}
		creds[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return creds, nil
}

// encodeValue quotes values that would not survive a round trip bare.
func encodeValue(v string) string {
	if v == "" || strings.ContainsAny(v, " \t#\"'\\\n") || v != strings.TrimSpace(v) {
		return strconv.Quote(v)
	}
	return v
}
