package index

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
)

// LocalIndex serves packages from a directory tree, for tests and
// air-gapped builds.
//
// Layout:
//
//	root/
//	  requests/
//	    index.toml
//	    2.31.0/          <- extracted source tree
//	      requests/
//	        __init__.py
//
// index.toml describes the releases:
//
//	name = "requests"
//
//	[[release]]
//	version = "2.31.0"
//	requires = ["urllib3>=1.21", "certifi"]
//	filename = "requests-2.31.0-py3-none-any.whl"
type LocalIndex struct {
	root string
}

// NewLocalIndex creates an index over the given directory.
func NewLocalIndex(root string) *LocalIndex {
	return &LocalIndex{root: root}
}

type localMeta struct {
	Name     string         `toml:"name"`
	Releases []localRelease `toml:"release"`
}

type localRelease struct {
	Version  string   `toml:"version"`
	Requires []string `toml:"requires"`
	Filename string   `toml:"filename"`
}

// Project reads the package's index.toml.
func (x *LocalIndex) Project(ctx context.Context, name string) (*Project, error) {
	name = normalize(name)
	data, err := os.ReadFile(filepath.Join(x.root, name, "index.toml"))
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeProjectNotFound, "index has no project %q", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read metadata for %s", name)
	}

	var meta localMeta
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "parse metadata for %s", name)
	}

	p := &Project{Name: name}
	for _, r := range meta.Releases {
		p.Releases = append(p.Releases, Release{
			Version:  r.Version,
			Requires: r.Requires,
			Filename: r.Filename,
		})
	}
	return p, nil
}

// Download copies the release's source tree into dir.
func (x *LocalIndex) Download(ctx context.Context, name, version, dir string) error {
	name = normalize(name)
	src := filepath.Join(x.root, name, version)
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return errors.New(errors.ErrCodeFetch, "no source tree for %s %s", name, version)
	}
	if err != nil || !info.IsDir() {
		return errors.New(errors.ErrCodeFetch, "bad source tree for %s %s", name, version)
	}
	if err := copyTree(src, dir); err != nil {
		return errors.Wrap(errors.ErrCodeFetch, err, "copy %s %s", name, version)
	}
	return nil
}

// copyTree recursively copies src into dst. Symlinks are skipped; a package
// source tree has no business containing them.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

// Ensure LocalIndex implements Index.
var _ Index = (*LocalIndex)(nil)
