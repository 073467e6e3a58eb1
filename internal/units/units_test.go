package units

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/credentials"
	"github.com/blackwell-systems/stackup/internal/runner"
	"github.com/blackwell-systems/stackup/internal/system"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(3)
	_, _ = tb.Write([]byte("one\ntwo\nthr"))
	_, _ = tb.Write([]byte("ee\r\nfour\nfive"))

	assert.Equal(t, []string{"three", "four", "five"}, tb.Lines())

	empty := newTailBuffer(2)
	assert.Empty(t, empty.Lines())
}

func TestScriptAction_Success(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "nginx.sh", "echo installing $STACKUP_UNIT\necho warn >&2\nexit 0\n")
	logDir := filepath.Join(dir, "logs")

	var out bytes.Buffer
	a := &ScriptAction{
		Cmd:    system.Exec{},
		Unit:   "nginx",
		Script: script,
		Env:    []string{"STACKUP_UNIT=nginx"},
		LogDir: logDir,
		Stdout: &out,
		Now:    func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) },
	}

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "installing nginx")
	assert.Contains(t, a.Tail(), "installing nginx")
	assert.Contains(t, a.Tail(), "warn")

	transcript, err := os.ReadFile(filepath.Join(logDir, "nginx-20260304-050607.log"))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "installing nginx")
	assert.Contains(t, string(transcript), "warn")
}

func TestScriptAction_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "postgres.sh", "echo 'port 5432 in use'\nexit 4\n")

	a := &ScriptAction{Cmd: system.Exec{}, Unit: "postgres", Script: script, LogDir: dir}
	err := a.Run(context.Background())

	var actionErr *runner.ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, 4, actionErr.ExitCode)
	assert.Equal(t, "postgres", actionErr.Unit)
	assert.True(t, strings.HasPrefix(filepath.Base(actionErr.Transcript), "postgres-"))
	assert.Equal(t, []string{"port 5432 in use"}, a.Tail())
}

func TestScriptAction_MissingScript(t *testing.T) {
	a := &ScriptAction{Cmd: system.Exec{}, Unit: "ghost", Script: filepath.Join(t.TempDir(), "ghost.sh")}
	err := a.Run(context.Background())
	require.Error(t, err)

	var actionErr *runner.ActionError
	assert.False(t, errors.As(err, &actionErr), "a missing script is not an exit code")
}

func TestScriptAction_UsesCommander(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "certbot.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0755))

	fake := system.NewFake()
	fake.StreamFunc = func(ctx context.Context, spec system.Spec) (int, error) {
		_, _ = spec.Stdout.Write([]byte("done\n"))
		return 0, nil
	}

	a := &ScriptAction{Cmd: fake, Unit: "certbot", Script: script}
	require.NoError(t, a.Run(context.Background()))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, script, calls[0].Name)
	assert.Empty(t, calls[0].Args, "install scripts take no arguments")
	assert.Equal(t, []string{"done"}, a.Tail())
}

func testCatalog(dir string) *catalog.Catalog {
	return catalog.New(
		&catalog.Unit{
			Name:         "postgres",
			Description:  "PostgreSQL",
			Dependencies: []string{"docker-engine"},
			Script:       filepath.Join(dir, "postgres.sh"),
			Probe:        catalog.ProbeSpec{Kind: catalog.ProbeContainer, Container: "postgres"},
		},
		&catalog.Unit{
			Name:   "docker-engine",
			Script: filepath.Join(dir, "docker-engine.sh"),
			Probe:  catalog.ProbeSpec{Kind: catalog.ProbeService, Binary: "docker", Service: "docker"},
		},
	)
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	fake := system.NewFake()
	fake.Binaries["docker"] = true
	fake.On("systemctl is-active --quiet docker", &system.Result{ExitCode: 0})

	reg, err := NewRegistry(testCatalog(dir), Options{Cmd: fake, Home: "/home/op/.stackup", Bin: "/usr/local/bin/stackup"})
	require.NoError(t, err)

	u, ok := reg.Lookup("postgres")
	require.True(t, ok)
	assert.Equal(t, "PostgreSQL", u.Description())
	assert.Equal(t, []string{"docker-engine"}, u.Dependencies())

	installed, err := u.IsInstalled(context.Background())
	require.NoError(t, err)
	assert.False(t, installed)

	docker, _ := reg.Lookup("docker-engine")
	installed, err = docker.IsInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, installed)

	_, ok = reg.Lookup("nginx")
	assert.False(t, ok)

	var names []string
	for _, s := range reg.Units() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"docker-engine", "postgres"}, names)
}

func TestScripted_InstallExportsEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "postgres.sh"), []byte("#!/bin/sh\n"), 0755))

	creds := credentials.NewFileStore(filepath.Join(dir, "credentials"))
	require.NoError(t, creds.Save("postgres", "POSTGRES_PASSWORD", "hunter2"))

	fake := system.NewFake()
	reg, err := NewRegistry(testCatalog(dir), Options{
		Cmd:            fake,
		Credentials:    creds,
		Home:           "/home/op/.stackup",
		CredentialsDir: filepath.Join(dir, "credentials"),
		Bin:            "/usr/local/bin/stackup",
	})
	require.NoError(t, err)

	u, _ := reg.Get("postgres")
	require.NoError(t, u.Install(context.Background()))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	env := calls[0].Env
	assert.Contains(t, env, "STACKUP_UNIT=postgres")
	assert.Contains(t, env, "STACKUP_HOME=/home/op/.stackup")
	assert.Contains(t, env, "STACKUP_BIN=/usr/local/bin/stackup")
	assert.Contains(t, env, "STACKUP_CREDENTIALS_DIR="+filepath.Join(dir, "credentials"))
	assert.Contains(t, env, "POSTGRES_PASSWORD=hunter2")
	assert.NotContains(t, u.action.Env, "POSTGRES_PASSWORD=hunter2")
}

func TestRegistry_WithRunner(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"postgres.sh", "docker-engine.sh"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0755))
	}

	fake := system.NewFake()
	fake.Binaries["docker"] = true
	fake.On("systemctl is-active --quiet docker", &system.Result{ExitCode: 0})

	reg, err := NewRegistry(testCatalog(dir), Options{Cmd: fake})
	require.NoError(t, err)

	res, err := runner.New(reg, runner.Options{}).Install(context.Background(), "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"docker-engine"}, res.Skipped)
	assert.Equal(t, []string{"postgres"}, res.Installed)
}
