package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var unitNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidName reports whether name can be used as a unit name. Unit names
// double as file names for scripts and credential files.
func ValidName(name string) bool {
	return unitNamePattern.MatchString(name)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("unitname", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
	_ = v.RegisterValidation("health_endpoint", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		if err != nil || u.Host == "" {
			return false
		}
		switch u.Scheme {
		case "http", "https", "tcp":
			return true
		}
		return false
	})
	return v
}

// ValidateUnit checks a single unit's fields.
func ValidateUnit(u *Unit) error {
	err := validate.Struct(u)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("unit %s: %w", u.Name, err)
	}

	var errs []error
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("unit %s: %s is invalid (%s)", u.Name, fe.Namespace(), describeTag(fe)))
	}
	return errors.Join(errs...)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "unitname":
		return fmt.Sprintf("%q is not a valid unit name", fe.Value())
	case "health_endpoint":
		return "must be an http://, https:// or tcp:// URL with a host"
	default:
		return fe.Tag()
	}
}

// Problems returns every problem found in the catalog: invalid fields,
// self-references, dependencies on unknown units, and dependency cycles.
// Units are checked in name order so the result is stable.
func (c *Catalog) Problems() []error {
	var problems []error

	for _, u := range c.Units() {
		if err := ValidateUnit(u); err != nil {
			problems = append(problems, err)
		}

		for _, dep := range u.Dependencies {
			if dep == u.Name {
				problems = append(problems, fmt.Errorf("unit %s lists itself as a dependency", u.Name))
				continue
			}
			if _, ok := c.units[dep]; !ok {
				problems = append(problems, fmt.Errorf("unit %s requires %s: %w", u.Name, dep, ErrUnitNotFound))
			}
		}
		for _, dep := range u.Optional {
			if _, ok := c.units[dep]; !ok {
				problems = append(problems, fmt.Errorf("unit %s offers optional %s: %w", u.Name, dep, ErrUnitNotFound))
			}
		}
	}

	if cycle := c.FindCycle(); cycle != nil {
		problems = append(problems, cycle)
	}

	return problems
}

// Validate returns all catalog problems joined into one error, or nil.
func (c *Catalog) Validate() error {
	return errors.Join(c.Problems()...)
}
