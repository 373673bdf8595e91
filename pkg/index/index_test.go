package index

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wheelwright-dev/wheelwright/pkg/cache"
	"github.com/wheelwright-dev/wheelwright/pkg/errors"
)

func TestHTTPIndexProject(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/requests/json" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"name":"requests","releases":[
			{"version":"2.31.0","requires":["urllib3>=1.21","certifi"],"filename":"requests-2.31.0-py3-none-any.whl"},
			{"version":"2.30.0","requires":["urllib3>=1.21"]}
		]}`)
	}))
	defer srv.Close()

	backend, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	x := NewHTTPIndex(srv.URL, backend, time.Hour)
	ctx := context.Background()

	p, err := x.Project(ctx, "Requests")
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	if p.Name != "requests" {
		t.Errorf("Name = %q", p.Name)
	}
	if len(p.Releases) != 2 {
		t.Fatalf("len(Releases) = %d, want 2", len(p.Releases))
	}
	if rel := p.Find("2.31.0"); rel == nil || rel.Filename != "requests-2.31.0-py3-none-any.whl" {
		t.Errorf("Find(2.31.0) = %+v", rel)
	}

	// Second lookup is served from cache.
	if _, err := x.Project(ctx, "requests"); err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	if hits != 1 {
		t.Errorf("server hits = %d, want 1 (cached)", hits)
	}
}

func TestHTTPIndexProjectNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	x := NewHTTPIndex(srv.URL, cache.NewNullCache(), time.Hour)
	_, err := x.Project(context.Background(), "no-such-package")
	if !errors.Is(err, errors.ErrCodeProjectNotFound) {
		t.Errorf("error code = %q, want PROJECT_NOT_FOUND", errors.GetCode(err))
	}
}

func TestHTTPIndexDownload(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"left-pad-1.0.0/leftpad/__init__.py": "def pad(s, n): return s.rjust(n)\n",
		"left-pad-1.0.0/leftpad/util.py":     "WIDTH = 8\n",
	})

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/left-pad/json":
			fmt.Fprintf(w, `{"name":"left-pad","releases":[{"version":"1.0.0","url":"%s/files/left-pad-1.0.0.zip"}]}`, srv.URL)
		case "/files/left-pad-1.0.0.zip":
			w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	x := NewHTTPIndex(srv.URL, cache.NewNullCache(), time.Hour)
	dir := t.TempDir()
	if err := x.Download(context.Background(), "left-pad", "1.0.0", dir); err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	// The shared "left-pad-1.0.0/" prefix is stripped.
	data, err := os.ReadFile(filepath.Join(dir, "leftpad", "__init__.py"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(data) != "def pad(s, n): return s.rjust(n)\n" {
		t.Errorf("extracted content = %q", data)
	}
}

func TestHTTPIndexDownloadMissingRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"left-pad","releases":[{"version":"1.0.0"}]}`)
	}))
	defer srv.Close()

	x := NewHTTPIndex(srv.URL, cache.NewNullCache(), time.Hour)
	err := x.Download(context.Background(), "left-pad", "9.9.9", t.TempDir())
	if !errors.Is(err, errors.ErrCodeFetch) {
		t.Errorf("error code = %q, want FETCH_FAILED", errors.GetCode(err))
	}
}

func TestExtractZipRejectsEscapes(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"../evil.py": "pass\n",
	})
	err := extractZip(archive, t.TempDir())
	if err == nil {
		t.Fatal("extractZip should reject entries escaping the destination")
	}
}

func TestLocalIndex(t *testing.T) {
	root := t.TempDir()
	pkgDir := filepath.Join(root, "left-pad")
	if err := os.MkdirAll(filepath.Join(pkgDir, "1.0.0", "leftpad"), 0o755); err != nil {
		t.Fatal(err)
	}
	meta := `name = "left-pad"

[[release]]
version = "1.0.0"
requires = ["six"]
filename = "left_pad-1.0.0-py3-none-any.whl"
`
	if err := os.WriteFile(filepath.Join(pkgDir, "index.toml"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "1.0.0", "leftpad", "__init__.py"), []byte("pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	x := NewLocalIndex(root)
	ctx := context.Background()

	p, err := x.Project(ctx, "Left_Pad")
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	if len(p.Releases) != 1 || p.Releases[0].Version != "1.0.0" {
		t.Fatalf("Releases = %+v", p.Releases)
	}
	if p.Releases[0].Requires[0] != "six" {
		t.Errorf("Requires = %v", p.Releases[0].Requires)
	}

	dir := t.TempDir()
	if err := x.Download(ctx, "left-pad", "1.0.0", dir); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "leftpad", "__init__.py")); err != nil {
		t.Errorf("copied tree missing: %v", err)
	}

	if _, err := x.Project(ctx, "unknown"); !errors.Is(err, errors.ErrCodeProjectNotFound) {
		t.Errorf("error code = %q, want PROJECT_NOT_FOUND", errors.GetCode(err))
	}
	if err := x.Download(ctx, "left-pad", "9.9.9", t.TempDir()); !errors.Is(err, errors.ErrCodeFetch) {
		t.Errorf("error code = %q, want FETCH_FAILED", errors.GetCode(err))
	}
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
