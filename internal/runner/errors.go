package runner

import (
	"errors"
	"fmt"

	"github.com/blackwell-systems/stackup/internal/catalog"
)

var (
	// ErrUnitNotFound is returned when a requested unit or a declared
	// dependency has no definition.
	ErrUnitNotFound = catalog.ErrUnitNotFound

	// ErrDependencyCycle is returned when resolution reaches a unit that
	// is already being resolved. The concrete error is *catalog.CycleError.
	ErrDependencyCycle = catalog.ErrCycle

	// ErrRejected is returned when the operator answers no to a success
	// confirmation.
	ErrRejected = errors.New("rejected by operator")
)

// ActionError is returned when a unit's install action exits non-zero.
type ActionError struct {
	Unit     string
	ExitCode int
	// Transcript is the path of the action's output log, if one was kept.
	Transcript string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s install failed with exit code %d", e.Unit, e.ExitCode)
}
