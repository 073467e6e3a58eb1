package health

import (
	"fmt"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/units"
)

// Targets builds check targets for the named units, or for every unit in
// the registry when names is empty.
func Targets(reg *units.Registry, names ...string) ([]Target, error) {
	var selected []*units.Scripted
	if len(names) == 0 {
		selected = reg.Units()
	} else {
		for _, name := range names {
			u, ok := reg.Get(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", catalog.ErrUnitNotFound, name)
			}
			selected = append(selected, u)
		}
	}

	targets := make([]Target, 0, len(selected))
	for _, u := range selected {
		targets = append(targets, Target{
			Unit:     u.Name(),
			Probe:    u.Probe(),
			Endpoint: u.Definition().Health,
		})
	}
	return targets, nil
}
