// Package index provides access to plugin package indexes.
//
// The vendoring engine treats the index as an opaque fetch capability: list
// a project's releases, then materialize one release's source tree on disk.
// Two implementations are provided:
//
//   - [HTTPIndex]: a JSON-over-HTTP index client with response caching and
//     retry (the normal path)
//   - [LocalIndex]: a directory of pre-extracted source trees with TOML
//     metadata (tests, air-gapped builds)
//
// All implementations must be safe for concurrent use; the packager
// downloads packages from a worker pool.
package index

import (
	"context"

	"github.com/wheelwright-dev/wheelwright/pkg/require"
)

// Project describes a package and its published releases.
type Project struct {
	// Name is the normalized package name.
	Name string `json:"name"`

	// Releases lists published releases, in the order the index reports
	// them. Callers pick a version themselves; the index imposes no policy.
	Releases []Release `json:"releases"`
}

// Release is one published version of a project.
type Release struct {
	// Version is the release's version string.
	Version string `json:"version"`

	// Requires lists the release's declared dependencies as raw
	// requirement strings.
	Requires []string `json:"requires,omitempty"`

	// Filename is the distribution artifact's filename. Wheel-style
	// filenames embed the platform compatibility tag, which the platform
	// engine uses as its detection fast path.
	Filename string `json:"filename,omitempty"`

	// URL is where the artifact can be downloaded from. Empty for
	// local indexes.
	URL string `json:"url,omitempty"`
}

// Index is the package source consumed by the resolver and packager.
type Index interface {
	// Project returns release metadata for the named package. The name is
	// normalized before lookup. Returns a PROJECT_NOT_FOUND error if the
	// index has no such package and a NETWORK_ERROR for transport failures.
	Project(ctx context.Context, name string) (*Project, error)

	// Download materializes the source tree of name@version inside dir.
	// dir must exist and be empty; the index writes the package's files
	// directly into it. Returns a FETCH_FAILED error on failure, in which
	// case dir's contents are undefined and the caller discards them.
	Download(ctx context.Context, name, version, dir string) error
}

// Find returns the release with the given version, or nil.
func (p *Project) Find(version string) *Release {
	for i := range p.Releases {
		if p.Releases[i].Version == version {
			return &p.Releases[i]
		}
	}
	return nil
}

func normalize(name string) string {
	return require.NormalizeName(name)
}
