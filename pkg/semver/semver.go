// Package semver is the version comparator consumed by the resolver.
//
// It is a thin wrapper around github.com/Masterminds/semver/v3, exposing the
// narrow contract the vendoring engine needs: total-order comparison
// (including pre-release precedence) and constraint satisfaction. Requirement
// operators are translated to this package's syntax by pkg/require before
// they reach the comparator.
package semver

import (
	"fmt"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a parsed semantic version.
type Version struct {
	v *mm.Version
}

// Constraint is a parsed version constraint.
//
// Examples:
// - ">=1.2.0, <2.0.0"
// - "~1.4"
// - "!=2.0.1"
type Constraint struct {
	c *mm.Constraints
}

// AnyVersion matches every version. Used when a requirement carries no
// constraint at all.
var AnyVersion = MustParseConstraint(">=0.0.0-0")

func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func ParseConstraint(raw string) (Constraint, error) {
	c, err := mm.NewConstraint(raw)
	if err != nil {
		return Constraint{}, fmt.Errorf("semver: parse constraint %q: %w", raw, err)
	}
	return Constraint{c: c}, nil
}

func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Original returns the version string as it was parsed, before
// canonicalization. Useful for looking a version back up in the source
// that reported it.
func (v Version) Original() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// String returns the canonical version string.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Satisfies reports whether v satisfies c. A zero Version or Constraint
// never satisfies.
func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// MaxSatisfying returns the highest version in candidates that satisfies c.
//
// This is the resolver's tie-break policy: when several released versions
// satisfy a constraint, the newest one wins under the comparator's total
// order. If multiple versions compare equal, the first encountered wins.
func MaxSatisfying(c Constraint, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !Satisfies(candidate, c) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}
