package platform

import (
	"fmt"
	"sort"
	"strings"
)

// Tagged pairs a package name with its detected tag, for merge reporting.
type Tagged struct {
	Package string
	Tag     Tag
}

// Conflict reports two or more distinct non-universal tags across a bundle.
// The output artifact cannot simultaneously satisfy disjoint platform
// constraints, so the merge refuses to pick a winner; callers decide
// whether to fail the build or ship degraded support.
type Conflict struct {
	// Packages maps each conflicting tag's canonical string to the
	// packages that carry it.
	Packages map[string][]string
}

// Error implements the error interface.
func (c *Conflict) Error() string {
	tags := make([]string, 0, len(c.Packages))
	for tag := range c.Packages {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, fmt.Sprintf("%s (%s)", tag, strings.Join(c.Packages[tag], ", ")))
	}
	return "conflicting platform tags: " + strings.Join(parts, " vs ")
}

// MostRestrictive reduces the bundle's tags to the narrowest compatibility
// claim consistent with all of them.
//
// [Universal] is the identity element: if every tag is universal the result
// is universal, and a single distinct non-universal tag (possibly repeated)
// binds the whole bundle to that platform. Two or more distinct
// non-universal tags are a genuine incompatibility returned as a
// [Conflict]; the merge never silently prefers one.
func MostRestrictive(tags []Tagged) (Tag, *Conflict) {
	result := Universal
	carriers := make(map[string][]string)

	for _, t := range tags {
		if t.Tag.IsZero() || t.Tag.IsUniversal() {
			continue
		}
		key := t.Tag.String()
		carriers[key] = append(carriers[key], t.Package)
		result = t.Tag
	}

	if len(carriers) > 1 {
		return Tag{}, &Conflict{Packages: carriers}
	}
	return result, nil
}
