// Package probe detects whether a unit is already present on the host.
//
// Probes are read-only: they never start, enable or restart anything. A
// stopped service is reported as not installed so the unit's own script can
// bring it up.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/system"
)

// Probe reports whether a unit is installed.
type Probe interface {
	IsInstalled(ctx context.Context) (bool, error)
	// Describe is a short human-readable form of the check.
	Describe() string
}

// Binary checks for an executable on PATH.
type Binary struct {
	Cmd  system.Commander
	Name string
}

func (p *Binary) IsInstalled(ctx context.Context) (bool, error) {
	return onPath(p.Cmd, p.Name)
}

func (p *Binary) Describe() string {
	return fmt.Sprintf("%s on PATH", p.Name)
}

// Service checks for an executable and an active systemd service.
type Service struct {
	Cmd     system.Commander
	Binary  string
	Service string
	// RequireActive false accepts a present binary with a stopped service.
	RequireActive bool
}

func (p *Service) IsInstalled(ctx context.Context) (bool, error) {
	if p.Binary != "" {
		ok, err := onPath(p.Cmd, p.Binary)
		if err != nil || !ok {
			return false, err
		}
	}

	if !p.RequireActive {
		return true, nil
	}

	// is-active exits 0 only for an active unit; inactive, failed and
	// unknown units all exit non-zero.
	r, err := p.Cmd.Output(ctx, "systemctl", "is-active", "--quiet", p.Service)
	if err != nil {
		return false, fmt.Errorf("failed to query service %s: %w", p.Service, err)
	}
	return r.OK(), nil
}

func (p *Service) Describe() string {
	if p.RequireActive {
		return fmt.Sprintf("service %s active", p.Service)
	}
	return fmt.Sprintf("%s on PATH", p.Binary)
}

// Container checks that a container exists and is running.
type Container struct {
	Cmd  system.Commander
	Name string
}

func (p *Container) IsInstalled(ctx context.Context) (bool, error) {
	ok, err := onPath(p.Cmd, "docker")
	if err != nil || !ok {
		// No docker means no containers.
		return false, err
	}

	r, err := p.Cmd.Output(ctx, "docker", "inspect", "--format", "{{.State.Running}}", p.Name)
	if err != nil {
		return false, fmt.Errorf("failed to inspect container %s: %w", p.Name, err)
	}
	if !r.OK() {
		// docker inspect exits 1 for an unknown container.
		return false, nil
	}
	return system.FirstLine(r.Stdout) == "true", nil
}

func (p *Container) Describe() string {
	return fmt.Sprintf("container %s running", p.Name)
}

// Package checks dpkg for an installed package.
type Package struct {
	Cmd  system.Commander
	Name string
}

func (p *Package) IsInstalled(ctx context.Context) (bool, error) {
	ok, err := onPath(p.Cmd, "dpkg-query")
	if err != nil || !ok {
		return false, err
	}

	r, err := p.Cmd.Output(ctx, "dpkg-query", "-W", "-f=${Status}", p.Name)
	if err != nil {
		return false, fmt.Errorf("failed to query package %s: %w", p.Name, err)
	}
	if !r.OK() {
		return false, nil
	}
	return strings.Contains(r.Stdout, "install ok installed"), nil
}

func (p *Package) Describe() string {
	return fmt.Sprintf("package %s installed", p.Name)
}

// Fixed always gives the same answer.
type Fixed bool

func (p Fixed) IsInstalled(context.Context) (bool, error) {
	return bool(p), nil
}

func (p Fixed) Describe() string {
	if p {
		return "always installed"
	}
	return "never installed"
}

// FromSpec builds the probe a catalog entry declares.
func FromSpec(cmd system.Commander, spec catalog.ProbeSpec) (Probe, error) {
	switch spec.Kind {
	case catalog.ProbeBinary:
		return &Binary{Cmd: cmd, Name: spec.Binary}, nil
	case catalog.ProbeService:
		return &Service{
			Cmd:           cmd,
			Binary:        spec.Binary,
			Service:       spec.Service,
			RequireActive: spec.ActiveRequired(),
		}, nil
	case catalog.ProbeContainer:
		return &Container{Cmd: cmd, Name: spec.Container}, nil
	case catalog.ProbePackage:
		return &Package{Cmd: cmd, Name: spec.Package}, nil
	case catalog.ProbeAlways:
		return Fixed(true), nil
	case catalog.ProbeNever:
		return Fixed(false), nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q", spec.Kind)
	}
}

func onPath(cmd system.Commander, name string) (bool, error) {
	if _, err := cmd.LookPath(name); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return true, nil
}
