// Package platform models wheel-style compatibility tags and decides
// whether a vendored bundle stays universal or becomes platform-bound.
//
// A tag is the (interpreter, abi, platform) triple from the distribution
// filename convention, e.g. "cp311-cp311-manylinux_2_17_x86_64" for a
// compiled extension wheel or "py3-none-any" for pure source. Detection
// inspects the artifact filename first (fast path) and falls back to
// scanning the extracted tree for embedded tag metadata and native
// extension modules (slow path).
package platform

import (
	"fmt"
	"strings"
)

// Tag is a compatibility tag triple. Immutable value type; equality and
// string form are canonical.
type Tag struct {
	Interpreter string // e.g. "py3", "cp311"
	ABI         string // e.g. "none", "cp311", "abi3"
	Platform    string // e.g. "any", "manylinux_2_17_x86_64"
}

// Universal is the tag of pure packages: importable on any interpreter of
// the supported major version, on any platform. It is the identity element
// of [MostRestrictive].
var Universal = Tag{Interpreter: "py3", ABI: "none", Platform: "any"}

// String returns the canonical "{interpreter}-{abi}-{platform}" form.
func (t Tag) String() string {
	return fmt.Sprintf("%s-%s-%s", t.Interpreter, t.ABI, t.Platform)
}

// IsUniversal reports whether the tag makes no platform or ABI claim.
// Interpreter-only variation ("py2.py3", "py3") still counts as universal
// as long as the ABI is "none" and the platform is "any".
func (t Tag) IsUniversal() bool {
	return (t.ABI == "none" || t.ABI == "") && (t.Platform == "any" || t.Platform == "")
}

// IsZero reports whether the tag is the zero value (no detection result).
func (t Tag) IsZero() bool {
	return t == Tag{}
}

// ParseTag parses a "{interpreter}-{abi}-{platform}" triple.
func ParseTag(s string) (Tag, bool) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Tag{}, false
	}
	return Tag{Interpreter: parts[0], ABI: parts[1], Platform: parts[2]}, true
}

// ParseWheelFilename extracts the compatibility tag from a wheel-style
// artifact filename:
//
//	{name}-{version}(-{build})?-{interpreter}-{abi}-{platform}.whl
//
// Returns ok=false for filenames that are not wheel-shaped (sdists, plain
// zips); callers then fall back to tree scanning.
func ParseWheelFilename(filename string) (Tag, bool) {
	base, found := strings.CutSuffix(filename, ".whl")
	if !found {
		return Tag{}, false
	}
	parts := strings.Split(base, "-")
	// name, version, [build], interpreter, abi, platform
	if len(parts) < 5 {
		return Tag{}, false
	}
	n := len(parts)
	return Tag{Interpreter: parts[n-3], ABI: parts[n-2], Platform: parts[n-1]}, true
}
