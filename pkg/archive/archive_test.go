package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wheelwright-dev/wheelwright/pkg/platform"
)

func buildFixture(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"plugin.py":                 "import os\n",
		"_vendor/__init__.py":       "",
		"_vendor/certs/__init__.py": "def where(): pass\n",
		"_vendor/vendor.json":       "{}\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out := filepath.Join(t.TempDir(), "bundle.whl")
	if err := Build(root, out); err != nil {
		t.Fatalf("build: %v", err)
	}
	return root, out
}

func TestFilename(t *testing.T) {
	got := Filename("my-plugin", "1.2.0", platform.Universal)
	if got != "my_plugin-1.2.0-py3-none-any.whl" {
		t.Errorf("Filename = %q", got)
	}
}

func TestBuildContents(t *testing.T) {
	_, out := buildFixture(t)

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{
		"_vendor/__init__.py",
		"_vendor/certs/__init__.py",
		"_vendor/vendor.json",
		"plugin.py",
		"RECORD",
	}
	if len(names) != len(want) {
		t.Fatalf("members = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("member %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestBuildRecord(t *testing.T) {
	_, out := buildFixture(t)

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	var record string
	for _, f := range zr.File {
		if f.Name != RecordName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		record = string(data)
	}
	if record == "" {
		t.Fatal("RECORD missing")
	}

	lines := strings.Split(strings.TrimRight(record, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("RECORD lines:\n%s", record)
	}
	for _, line := range lines[:4] {
		parts := strings.Split(line, ",")
		if len(parts) != 3 || !strings.HasPrefix(parts[1], "sha256=") {
			t.Errorf("bad RECORD line %q", line)
		}
	}
	if lines[4] != "RECORD,," {
		t.Errorf("last line = %q, want RECORD,,", lines[4])
	}
}

func TestBuildReproducible(t *testing.T) {
	root, first := buildFixture(t)

	second := filepath.Join(t.TempDir(), "again.whl")
	if err := Build(root, second); err != nil {
		t.Fatal(err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("archives of identical trees should be byte identical")
	}
}

func TestVerify(t *testing.T) {
	_, out := buildFixture(t)

	bad, err := Verify(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(bad) != 0 {
		t.Errorf("fresh archive reported mismatches: %v", bad)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	_, out := buildFixture(t)

	// Rebuild the archive with one member's content changed but RECORD
	// carried over unchanged.
	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	tampered := filepath.Join(t.TempDir(), "tampered.whl")
	dst, err := os.Create(tampered)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(dst)
	for _, f := range zr.File {
		w, err := zw.Create(f.Name)
		if err != nil {
			t.Fatal(err)
		}
		if f.Name == "plugin.py" {
			io.WriteString(w, "tampered = True\n")
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(w, rc); err != nil {
			t.Fatal(err)
		}
		rc.Close()
	}
	zr.Close()
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	dst.Close()

	bad, err := Verify(tampered)
	if err != nil {
		t.Fatal(err)
	}
	if len(bad) != 1 || bad[0] != "plugin.py" {
		t.Errorf("mismatches = %v, want [plugin.py]", bad)
	}
}
