// Package archive assembles a plugin directory into a distributable
// zip bundle.
//
// The archive carries a RECORD file listing every member with its SHA-256
// digest and size, so installers can verify integrity. Archives are
// reproducible: members are written in sorted path order with a fixed
// timestamp.
package archive

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/platform"
)

// RecordName is the integrity manifest's path inside the archive.
const RecordName = "RECORD"

// Zip timestamps are fixed for reproducible archives.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Filename returns the canonical archive filename for a plugin bundle:
// name-version-tag.whl with the name's hyphens escaped.
func Filename(name, version string, tag platform.Tag) string {
	return fmt.Sprintf("%s-%s-%s.whl",
		strings.ReplaceAll(name, "-", "_"), version, tag.String())
}

// Build archives the plugin directory rooted at root into outPath. Every
// regular file under root is included, RECORD last.
func Build(root, outPath string) error {
	paths, err := collect(root)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "scan %s", root)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create %s", outPath)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	var record strings.Builder

	for _, rel := range paths {
		digest, size, err := writeMember(zw, root, rel)
		if err != nil {
			zw.Close()
			return errors.Wrap(errors.ErrCodeInternal, err, "archive %s", rel)
		}
		fmt.Fprintf(&record, "%s,sha256=%s,%d\n", rel, digest, size)
	}

	record.WriteString(RecordName + ",,\n")
	w, err := newMember(zw, RecordName)
	if err == nil {
		_, err = io.WriteString(w, record.String())
	}
	if err != nil {
		zw.Close()
		return errors.Wrap(errors.ErrCodeInternal, err, "archive %s", RecordName)
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "finalize %s", outPath)
	}
	return out.Close()
}

// collect returns the sorted slash-separated paths of every regular file
// under root.
func collect(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func newMember(zw *zip.Writer, name string) (io.Writer, error) {
	return zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: epoch,
	})
}

// writeMember streams one file into the archive and returns its digest
// (urlsafe base64, unpadded) and size.
func writeMember(zw *zip.Writer, root, rel string) (string, int64, error) {
	in, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	w, err := newMember(zw, rel)
	if err != nil {
		return "", 0, err
	}

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(w, h), in)
	if err != nil {
		return "", 0, err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), size, nil
}

// Verify reads an archive and checks every member against RECORD. It
// returns the mismatched paths; an empty slice means the archive is
// intact. Members absent from RECORD (other than RECORD itself) count as
// mismatches.
func Verify(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "open %s", path)
	}
	defer zr.Close()

	want := make(map[string]string)
	for _, f := range zr.File {
		if f.Name != RecordName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "read RECORD")
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "read RECORD")
		}
		for _, line := range strings.Split(string(data), "\n") {
			parts := strings.Split(line, ",")
			if len(parts) == 3 && parts[1] != "" {
				want[parts[0]] = strings.TrimPrefix(parts[1], "sha256=")
			}
		}
	}
	if len(want) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s has no RECORD", path)
	}

	var bad []string
	for _, f := range zr.File {
		if f.Name == RecordName {
			continue
		}
		digest, ok := want[f.Name]
		if !ok {
			bad = append(bad, f.Name)
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "read %s", f.Name)
		}
		h := sha256.New()
		_, err = io.Copy(h, rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "read %s", f.Name)
		}
		if base64.RawURLEncoding.EncodeToString(h.Sum(nil)) != digest {
			bad = append(bad, f.Name)
		}
	}
	sort.Strings(bad)
	return bad, nil
}
