package packager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/wheelwright-dev/wheelwright/pkg/platform"
	"github.com/wheelwright-dev/wheelwright/pkg/resolve"
)

// ManifestName is the manifest's filename inside the vendor directory.
const ManifestName = "vendor.json"

// Manifest records what a vendoring run produced. It is written into the
// vendor directory so a bundle is self-describing.
type Manifest struct {
	// RunID identifies the vendoring run that produced the bundle.
	RunID string `json:"run_id"`

	// GeneratedAt is when the bundle was committed, UTC.
	GeneratedAt time.Time `json:"generated_at"`

	// Namespace is the dotted import path the bundle lives under.
	Namespace string `json:"namespace"`

	// Tag is the bundle's merged platform compatibility tag.
	Tag string `json:"tag"`

	// Pure is true when every vendored package is platform independent.
	Pure bool `json:"pure"`

	// Success is true iff the run recorded no per-package failures.
	Success bool `json:"success"`

	// Packages lists the vendored packages in resolution order.
	Packages []VendoredPackage `json:"packages"`

	// Failures lists packages that could not be vendored, with reasons.
	Failures []resolve.Failure `json:"failures,omitempty"`
}

// VendoredPackage is one package in the committed bundle.
type VendoredPackage struct {
	// Name is the normalized package name.
	Name string `json:"name"`

	// Version is the vendored version.
	Version string `json:"version"`

	// Direct is true when a root requirement named this package.
	Direct bool `json:"direct"`

	// RequiredBy lists the packages that require this one.
	RequiredBy []string `json:"required_by"`

	// Modules lists the package's top-level importable modules.
	Modules []string `json:"modules"`

	// Tag is the package's own platform compatibility tag.
	Tag string `json:"tag"`
}

// Pure reports whether the package carries the universal tag.
func (p VendoredPackage) Pure() bool {
	tag, ok := platform.ParseTag(p.Tag)
	return ok && tag.IsUniversal()
}

// write serializes the manifest into dir.
func (m *Manifest) write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), append(data, '\n'), 0o644)
}

// ReadManifest loads the manifest from a vendor directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
