package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/stackup/internal/store"
)

func TestGenerate(t *testing.T) {
	urlSafe := regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	for _, n := range []int{1, 2, 3, 4, 5, 16, 32, 64} {
		s, err := Generate(n)
		require.NoError(t, err)
		assert.Len(t, s, n)
		assert.Regexp(t, urlSafe, s)
	}

	a, _ := Generate(32)
	b, _ := Generate(32)
	assert.NotEqual(t, a, b)

	_, err := Generate(0)
	assert.Error(t, err)
}

func TestCheckNames(t *testing.T) {
	assert.NoError(t, CheckApp("n8n"))
	assert.NoError(t, CheckApp("docker-engine"))
	assert.True(t, errors.Is(CheckApp("../etc"), ErrInvalidName))
	assert.True(t, errors.Is(CheckApp(""), ErrInvalidName))

	assert.NoError(t, CheckKey("POSTGRES_PASSWORD"))
	assert.NoError(t, CheckKey("_x1"))
	assert.Error(t, CheckKey("1BAD"))
	assert.Error(t, CheckKey("HAS-DASH"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "****wxyz", Mask("abcdefwxyz"))
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "credentials")
	s := NewFileStore(dir)

	creds, err := s.Load("postgres")
	require.NoError(t, err)
	assert.Empty(t, creds, "missing file is an empty map")

	require.NoError(t, s.Save("postgres", "POSTGRES_USER", "n8n"))
	require.NoError(t, s.Save("postgres", "POSTGRES_PASSWORD", `p@ss "word" #1`))
	require.NoError(t, s.Save("postgres", "EMPTY", ""))

	creds, err = s.Load("postgres")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"POSTGRES_USER":     "n8n",
		"POSTGRES_PASSWORD": `p@ss "word" #1`,
		"EMPTY":             "",
	}, creds)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dir, "postgres.env"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_ParsesHandWrittenFiles(t *testing.T) {
	dir := t.TempDir()
	content := "# written by hand\n\nexport N8N_USER=admin\nN8N_PASSWORD = \"two words\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "n8n.env"), []byte(content), 0600))

	creds, err := NewFileStore(dir).Load("n8n")
	require.NoError(t, err)
	assert.Equal(t, "admin", creds["N8N_USER"])
	assert.Equal(t, "two words", creds["N8N_PASSWORD"])
}

func TestFileStore_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "n8n.env"), []byte("garbage\n"), 0600))

	_, err := NewFileStore(dir).Load("n8n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestFileStore_AppsAndDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	apps, err := s.Apps()
	require.NoError(t, err)
	assert.Empty(t, apps)

	require.NoError(t, s.Save("postgres", "A", "1"))
	require.NoError(t, s.Save("n8n", "B", "2"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

	apps, err = s.Apps()
	require.NoError(t, err)
	assert.Equal(t, []string{"n8n", "postgres"}, apps)

	require.NoError(t, s.Delete("n8n"))
	require.NoError(t, s.Delete("n8n"), "deleting twice is fine")

	apps, err = s.Apps()
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres"}, apps)
}

func TestFileStore_RejectsBadNames(t *testing.T) {
	s := NewFileStore(t.TempDir())
	assert.Error(t, s.Save("../escape", "K", "v"))
	assert.Error(t, s.Save("app", "bad key", "v"))
	_, err := s.Load("../escape")
	assert.Error(t, err)
}

func TestEnsure(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			return NewFileStore(t.TempDir())
		},
		"sqlite": func(t *testing.T) Store {
			s, err := store.Open(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)

			v1, generated, err := Ensure(s, "postgres", "POSTGRES_PASSWORD", DefaultLength)
			require.NoError(t, err)
			assert.True(t, generated)
			assert.Len(t, v1, DefaultLength)

			v2, generated, err := Ensure(s, "postgres", "POSTGRES_PASSWORD", DefaultLength)
			require.NoError(t, err)
			assert.False(t, generated)
			assert.Equal(t, v1, v2)

			apps, err := s.Apps()
			require.NoError(t, err)
			assert.Equal(t, []string{"postgres"}, apps)
		})
	}
}
