package interfaces

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// RuntimeVersion is the version of the application runtime the configuration targets.
// Resolvers only compare it against fixed thresholds.
type RuntimeVersion struct {
	v *version.Version
}

// NewRuntimeVersion parses a dotted runtime version such as "9.24.0.2965" or "7.23".
func NewRuntimeVersion(raw string) (RuntimeVersion, error) {
	v, err := version.NewVersion(raw)
	if err != nil {
		return RuntimeVersion{}, fmt.Errorf("%w: %q: %v", ErrInvalidRuntimeVersion, raw, err)
	}
	return RuntimeVersion{v: v}, nil
}

// MustRuntimeVersion is like NewRuntimeVersion but panics on malformed input.
// Intended for package-level thresholds and tests.
func MustRuntimeVersion(raw string) RuntimeVersion {
	rv, err := NewRuntimeVersion(raw)
	if err != nil {
		panic(err)
	}
	return rv
}

// IsZero reports whether the version was never set.
func (rv RuntimeVersion) IsZero() bool {
	return rv.v == nil
}

// AtLeast reports rv >= other. An unset version is below everything.
func (rv RuntimeVersion) AtLeast(other RuntimeVersion) bool {
	if rv.v == nil {
		return false
	}
	if other.v == nil {
		return true
	}
	return rv.v.GreaterThanOrEqual(other.v)
}

// Below reports rv < other.
func (rv RuntimeVersion) Below(other RuntimeVersion) bool {
	return !rv.AtLeast(other)
}

// Between reports lower <= rv < upper.
func (rv RuntimeVersion) Between(lower, upper RuntimeVersion) bool {
	return rv.AtLeast(lower) && rv.Below(upper)
}

func (rv RuntimeVersion) String() string {
	if rv.v == nil {
		return "unknown"
	}
	return rv.v.Original()
}
