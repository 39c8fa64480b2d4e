// Package version provides bus protocol version parsing and the compatibility
// check of the component readiness handshake.
package version

import (
	"errors"
	"fmt"

	goversion "github.com/hashicorp/go-version"
)

// Current is the bus protocol version implemented by this module.
const Current = "1.0.0"

// DefaultConstraint accepts every component speaking the current major
// protocol version.
const DefaultConstraint = ">= 1.0, < 2.0"

// ErrIncompatible is returned when a component version does not satisfy the
// constraint.
var ErrIncompatible = errors.New("incompatible component version")

// Parse parses a semantic version such as "1.0" or "1.2.3-rc1".
func Parse(s string) (*goversion.Version, error) {
	v, err := goversion.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// Compatible returns true if both versions have the same major version.
func Compatible(a, b string) bool {
	va, err := Parse(a)
	if err != nil {
		return false
	}
	vb, err := Parse(b)
	if err != nil {
		return false
	}
	return va.Segments()[0] == vb.Segments()[0]
}

// Checker validates component versions against a constraint.
type Checker struct {
	constraints goversion.Constraints
}

// NewChecker parses a constraint such as ">= 1.0, < 2.0". An empty
// constraint uses DefaultConstraint.
func NewChecker(constraint string) (*Checker, error) {
	if constraint == "" {
		constraint = DefaultConstraint
	}
	c, err := goversion.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	return &Checker{constraints: c}, nil
}

// String returns the constraint.
func (c *Checker) String() string {
	return c.constraints.String()
}

// Check returns nil if the version reported by component satisfies the
// constraint. An empty version is accepted: older components do not report
// one.
func (c *Checker) Check(component, v string) error {
	if v == "" {
		return nil
	}
	parsed, err := Parse(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIncompatible, component, err)
	}
	if !c.constraints.Check(parsed) {
		return fmt.Errorf("%w: %s %s does not satisfy %s", ErrIncompatible, component, parsed, c.constraints)
	}
	return nil
}
