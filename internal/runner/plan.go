package runner

import (
	"context"
	"fmt"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/logging"
)

// Plan is what Install would do if every confirmation were answered yes.
type Plan struct {
	Unit string
	// Install lists the units whose action would run, dependencies first,
	// ending with Unit.
	Install []string
	// Present lists dependencies that already probe as installed.
	Present []string
	// Optional lists optional dependencies that would be offered.
	Optional []string
	// ProbeErrors maps units whose probe failed to the error text. Those
	// units are planned for installation.
	ProbeErrors map[string]string
}

// Plan resolves name the way Install does, running probes but no actions
// and no prompts.
func (r *Runner) Plan(ctx context.Context, name string) (*Plan, error) {
	u, ok := r.reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}

	p := &Plan{Unit: name, ProbeErrors: make(map[string]string)}
	seen := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var visit func(u Unit) error
	visit = func(u Unit) error {
		name := u.Name()
		onStack[name] = true
		stack = append(stack, name)
		defer func() {
			stack = stack[:len(stack)-1]
			delete(onStack, name)
		}()

		for _, depName := range u.Dependencies() {
			if onStack[depName] {
				return &catalog.CycleError{Path: cyclePath(stack, depName)}
			}
			if seen[depName] {
				continue
			}

			dep, ok := r.reg.Lookup(depName)
			if !ok {
				return fmt.Errorf("%s requires %s: %w", name, depName, ErrUnitNotFound)
			}

			seen[depName] = true
			if r.planProbe(ctx, p, dep) {
				p.Present = append(p.Present, depName)
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		p.Install = append(p.Install, name)
		return nil
	}

	if err := visit(u); err != nil {
		return nil, err
	}
	seen[name] = true

	for _, optName := range u.OptionalDependencies() {
		if seen[optName] {
			continue
		}
		opt, ok := r.reg.Lookup(optName)
		if !ok {
			continue
		}
		if !r.planProbe(ctx, p, opt) {
			p.Optional = append(p.Optional, optName)
		}
	}

	return p, nil
}

func (r *Runner) planProbe(ctx context.Context, p *Plan, u Unit) bool {
	ok, err := u.IsInstalled(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("probe failed", "probe_unit", u.Name(), "error", err)
		p.ProbeErrors[u.Name()] = err.Error()
		return false
	}
	return ok
}
