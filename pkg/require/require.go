// Package require parses plugin dependency requirement strings.
//
// A requirement is a PEP 508-style specifier such as:
//
//	requests
//	httpx>=0.27, <1.0
//	orjson==3.10.1
//	uvicorn[standard]>=0.30 ; python_version >= "3.9"
//
// Parsing happens once, at the system boundary: the rest of the engine only
// ever sees the typed [Requirement] value. Names are normalized following
// PEP 503 (lowercase, runs of [-_.] collapsed to a single hyphen). Extras
// and environment markers are tolerated but stripped before resolution;
// they are recorded on the Requirement so callers can report them.
//
// Constraint operators are translated to the comparator's syntax here
// ("==" -> "=", "~=" -> "~", "==1.2.*" -> "1.2.x") so that pkg/semver never
// needs to know about requirement syntax.
package require

import (
	"regexp"
	"strings"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/semver"
)

var (
	nameRE   = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9._-]*[a-zA-Z0-9])?`)
	extrasRE = regexp.MustCompile(`^\[\s*([a-zA-Z0-9._-]+(?:\s*,\s*[a-zA-Z0-9._-]+)*)\s*\]`)
	clauseRE = regexp.MustCompile(`^(===|==|!=|<=|>=|~=|<|>)\s*([a-zA-Z0-9.*+!_-]+)$`)
	normRE   = regexp.MustCompile(`[-_.]+`)
)

// Requirement is a parsed dependency specifier. Immutable once parsed.
type Requirement struct {
	// Raw is the original requirement string, for error messages.
	Raw string

	// Name is the normalized package name (PEP 503).
	Name string

	// Constraint is the version constraint in comparator syntax, ready for
	// [semver.ParseConstraint]. Empty when the requirement pins nothing.
	Constraint string

	// Extras lists requested extras, stripped before resolution.
	Extras []string

	// Marker is the environment marker text, stripped before resolution.
	Marker string
}

// Spec returns the parsed constraint, or [semver.AnyVersion] when the
// requirement carries none. Parse already validated the constraint text, so
// this cannot fail.
func (r Requirement) Spec() semver.Constraint {
	if r.Constraint == "" {
		return semver.AnyVersion
	}
	return semver.MustParseConstraint(r.Constraint)
}

// NormalizeName converts a package name to its canonical form following
// PEP 503: lowercase with runs of hyphens, underscores, and dots collapsed
// to a single hyphen.
func NormalizeName(name string) string {
	return normRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Parse parses a requirement string into a Requirement.
//
// Returns a MALFORMED_REQUIREMENT error if the string has no recognizable
// package name or an unintelligible version constraint. This is the only
// fatal parse error in the engine; everything downstream is best-effort.
func Parse(raw string) (Requirement, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Requirement{}, errors.New(errors.ErrCodeMalformedRequirement, "empty requirement")
	}

	req := Requirement{Raw: raw}

	// Environment marker: everything after the first ";".
	if i := strings.Index(s, ";"); i >= 0 {
		req.Marker = strings.TrimSpace(s[i+1:])
		s = strings.TrimSpace(s[:i])
	}

	name := nameRE.FindString(s)
	if name == "" {
		return Requirement{}, errors.New(errors.ErrCodeMalformedRequirement, "no package name in %q", raw)
	}
	req.Name = NormalizeName(name)
	s = strings.TrimSpace(s[len(name):])

	// Extras: "[standard,socks]" immediately after the name.
	if m := extrasRE.FindStringSubmatch(s); m != nil {
		for _, e := range strings.Split(m[1], ",") {
			req.Extras = append(req.Extras, strings.TrimSpace(e))
		}
		s = strings.TrimSpace(s[len(m[0]):])
	}

	// PEP 508 permits parentheses around the version spec.
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "("), ")"))
	if s == "" {
		return req, nil
	}

	constraint, err := translateConstraint(s)
	if err != nil {
		return Requirement{}, errors.Wrap(errors.ErrCodeMalformedRequirement, err, "requirement %q", raw)
	}
	req.Constraint = constraint
	return req, nil
}

// ParseAll parses a list of requirement strings, failing on the first
// malformed entry.
func ParseAll(raws []string) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(raws))
	for _, raw := range raws {
		req, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// translateConstraint converts a comma-separated requirement version spec
// to the comparator's constraint syntax.
func translateConstraint(spec string) (string, error) {
	clauses := strings.Split(spec, ",")
	out := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		m := clauseRE.FindStringSubmatch(clause)
		if m == nil {
			return "", errors.New(errors.ErrCodeMalformedRequirement, "bad version clause %q", clause)
		}
		op, ver := m[1], m[2]
		switch op {
		case "==", "===":
			if strings.HasSuffix(ver, ".*") {
				// ==1.2.* means any 1.2 release.
				out = append(out, strings.TrimSuffix(ver, ".*")+".x")
			} else {
				out = append(out, "="+ver)
			}
		case "~=":
			// Compatible release: ~=1.4.2 allows >=1.4.2, <1.5.0.
			out = append(out, "~"+ver)
		default:
			out = append(out, op+ver)
		}
	}
	translated := strings.Join(out, ", ")
	if _, err := semver.ParseConstraint(translated); err != nil {
		return "", err
	}
	return translated, nil
}
