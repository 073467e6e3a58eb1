package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/system"
)

func TestBinary(t *testing.T) {
	fake := system.NewFake()
	fake.Binaries["certbot"] = true

	ok, err := (&Binary{Cmd: fake, Name: "certbot"}).IsInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = (&Binary{Cmd: fake, Name: "ollama"}).IsInstalled(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService(t *testing.T) {
	tests := []struct {
		name          string
		binary        bool
		active        bool
		requireActive bool
		want          bool
	}{
		{"active", true, true, true, true},
		{"stopped", true, false, true, false},
		{"stopped but not required", true, false, false, true},
		{"missing binary", false, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := system.NewFake()
			fake.Binaries["nginx"] = tt.binary
			if tt.active {
				fake.On("systemctl is-active --quiet nginx", &system.Result{ExitCode: 0})
			} else {
				fake.On("systemctl is-active --quiet nginx", &system.Result{ExitCode: 3})
			}

			p := &Service{Cmd: fake, Binary: "nginx", Service: "nginx", RequireActive: tt.requireActive}
			ok, err := p.IsInstalled(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestService_NeverStarts(t *testing.T) {
	fake := system.NewFake()
	fake.Binaries["docker"] = true

	p := &Service{Cmd: fake, Binary: "docker", Service: "docker", RequireActive: true}
	_, err := p.IsInstalled(context.Background())
	require.NoError(t, err)

	for _, c := range fake.Calls() {
		for _, arg := range c.Args {
			assert.NotContains(t, []string{"start", "restart", "enable"}, arg, "probe ran %s", c)
		}
	}
}

func TestService_QueryError(t *testing.T) {
	fake := system.NewFake()
	fake.Binaries["nginx"] = true
	fake.Errors["systemctl is-active --quiet nginx"] = errors.New("boom")

	_, err := (&Service{Cmd: fake, Binary: "nginx", Service: "nginx", RequireActive: true}).IsInstalled(context.Background())
	assert.Error(t, err)
}

func TestContainer(t *testing.T) {
	inspect := "docker inspect --format {{.State.Running}} n8n"

	tests := []struct {
		name   string
		docker bool
		result *system.Result
		want   bool
	}{
		{"running", true, &system.Result{Stdout: "true\n"}, true},
		{"stopped", true, &system.Result{Stdout: "false\n"}, false},
		{"absent", true, &system.Result{ExitCode: 1, Stderr: "Error: No such object: n8n"}, false},
		{"no docker", false, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := system.NewFake()
			fake.Binaries["docker"] = tt.docker
			if tt.result != nil {
				fake.On(inspect, tt.result)
			}

			ok, err := (&Container{Cmd: fake, Name: "n8n"}).IsInstalled(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestPackage(t *testing.T) {
	fake := system.NewFake()
	fake.Binaries["dpkg-query"] = true
	fake.On("dpkg-query -W -f=${Status} postgresql-client", &system.Result{Stdout: "install ok installed"})
	fake.On("dpkg-query -W -f=${Status} nginx", &system.Result{Stdout: "deinstall ok config-files"})

	ok, err := (&Package{Cmd: fake, Name: "postgresql-client"}).IsInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = (&Package{Cmd: fake, Name: "nginx"}).IsInstalled(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = (&Package{Cmd: fake, Name: "absent"}).IsInstalled(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFromSpec(t *testing.T) {
	fake := system.NewFake()
	off := false

	tests := []struct {
		spec catalog.ProbeSpec
		want string
	}{
		{catalog.ProbeSpec{Kind: catalog.ProbeBinary, Binary: "certbot"}, "certbot on PATH"},
		{catalog.ProbeSpec{Kind: catalog.ProbeService, Binary: "nginx", Service: "nginx"}, "service nginx active"},
		{catalog.ProbeSpec{Kind: catalog.ProbeService, Binary: "nginx", Service: "nginx", RequireActive: &off}, "nginx on PATH"},
		{catalog.ProbeSpec{Kind: catalog.ProbeContainer, Container: "postgres"}, "container postgres running"},
		{catalog.ProbeSpec{Kind: catalog.ProbePackage, Package: "curl"}, "package curl installed"},
		{catalog.ProbeSpec{Kind: catalog.ProbeAlways}, "always installed"},
		{catalog.ProbeSpec{Kind: catalog.ProbeNever}, "never installed"},
	}

	for _, tt := range tests {
		p, err := FromSpec(fake, tt.spec)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Describe())
	}

	_, err := FromSpec(fake, catalog.ProbeSpec{Kind: "magic"})
	assert.Error(t, err)
}
