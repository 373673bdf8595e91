package packager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/index"
)

// testPackage describes one package seeded into a local index fixture.
type testPackage struct {
	name     string
	version  string
	requires []string
	filename string
	files    map[string]string
}

func seedIndex(t *testing.T, root string, pkgs ...testPackage) *index.LocalIndex {
	t.Helper()
	for _, p := range pkgs {
		dir := filepath.Join(root, p.name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}

		var meta strings.Builder
		fmt.Fprintf(&meta, "name = %q\n\n[[release]]\nversion = %q\n", p.name, p.version)
		if p.filename != "" {
			fmt.Fprintf(&meta, "filename = %q\n", p.filename)
		}
		if len(p.requires) > 0 {
			fmt.Fprintf(&meta, "requires = [")
			for i, r := range p.requires {
				if i > 0 {
					meta.WriteString(", ")
				}
				fmt.Fprintf(&meta, "%q", r)
			}
			meta.WriteString("]\n")
		}
		metaPath := filepath.Join(dir, "index.toml")
		if err := os.WriteFile(metaPath, []byte(meta.String()), 0o644); err != nil {
			t.Fatal(err)
		}

		for rel, content := range p.files {
			path := filepath.Join(dir, p.version, rel)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return index.NewLocalIndex(root)
}

func testConfig(t *testing.T, idx index.Index, reqs ...string) Config {
	t.Helper()
	return Config{
		Package:      "myplugin",
		Requirements: reqs,
		Dest:         t.TempDir(),
		Index:        idx,
		Logger:       log.New(io.Discard),
	}
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestVendorEndToEnd(t *testing.T) {
	idx := seedIndex(t, t.TempDir(),
		testPackage{
			name: "httpxlib", version: "1.0.0",
			requires: []string{"certs>=2024.1"},
			filename: "httpxlib-1.0.0-py3-none-any.whl",
			files: map[string]string{
				"httpxlib/__init__.py": "import certs\nfrom certs import where\n",
				"httpxlib/client.py":   "from httpxlib import defaults\n",
			},
		},
		testPackage{
			name: "certs", version: "2024.2.0",
			filename: "certs-2024.2.0-py3-none-any.whl",
			files: map[string]string{
				"certs/__init__.py": "def where(): pass\n",
			},
		},
	)

	cfg := testConfig(t, idx, "httpxlib>=1.0")
	writeTestFile(t, filepath.Join(cfg.Dest, "plugin.py"), "import httpxlib\n")

	result, err := Vendor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("vendor: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failures)
	}
	if !result.Pure() {
		t.Errorf("bundle should be pure, tag %s", result.Tag)
	}
	if !result.Success() {
		t.Error("clean run should report success")
	}
	if len(result.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(result.Packages))
	}
	if result.Packages[0].Name != "httpxlib" || result.Packages[1].Name != "certs" {
		t.Errorf("packages not in resolution order: %+v", result.Packages)
	}
	if !result.Packages[0].Direct {
		t.Error("httpxlib should be direct")
	}

	vendorDir := filepath.Join(cfg.Dest, VendorDirName)

	got := readTestFile(t, filepath.Join(vendorDir, "httpxlib", "__init__.py"))
	want := "from myplugin._vendor import certs\nfrom myplugin._vendor.certs import where\n"
	if got != want {
		t.Errorf("vendored import rewrite:\ngot  %q\nwant %q", got, want)
	}

	// Intra-bundle imports relocate too.
	got = readTestFile(t, filepath.Join(vendorDir, "httpxlib", "client.py"))
	if got != "from myplugin._vendor.httpxlib import defaults\n" {
		t.Errorf("intra-bundle rewrite: %q", got)
	}

	// The plugin's own sources point at the namespace.
	got = readTestFile(t, filepath.Join(cfg.Dest, "plugin.py"))
	if got != "from myplugin._vendor import httpxlib\n" {
		t.Errorf("plugin rewrite: %q", got)
	}

	if _, err := os.Stat(filepath.Join(vendorDir, "__init__.py")); err != nil {
		t.Error("vendor directory needs an __init__.py")
	}

	manifest, err := ReadManifest(vendorDir)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if manifest.RunID != result.RunID {
		t.Error("manifest run id mismatch")
	}
	if manifest.Namespace != "myplugin._vendor" {
		t.Errorf("manifest namespace = %q", manifest.Namespace)
	}
	if !manifest.Pure {
		t.Error("manifest should record a pure bundle")
	}
	if !manifest.Success {
		t.Error("manifest should record success")
	}
}

func TestVendorResolutionOrderPreserved(t *testing.T) {
	idx := seedIndex(t, t.TempDir(),
		testPackage{
			name: "zeta", version: "1.0.0",
			filename: "zeta-1.0.0-py3-none-any.whl",
			files:    map[string]string{"zeta/__init__.py": "\n"},
		},
		testPackage{
			name: "alpha", version: "1.0.0",
			filename: "alpha-1.0.0-py3-none-any.whl",
			files:    map[string]string{"alpha/__init__.py": "\n"},
		},
	)

	cfg := testConfig(t, idx, "zeta", "alpha")
	result, err := Vendor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("vendor: %v", err)
	}

	// Requirement order, not name order, is canonical.
	if len(result.Packages) != 2 || result.Packages[0].Name != "zeta" || result.Packages[1].Name != "alpha" {
		t.Fatalf("packages = %+v, want [zeta alpha]", result.Packages)
	}

	manifest, err := ReadManifest(filepath.Join(cfg.Dest, VendorDirName))
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Packages) != 2 || manifest.Packages[0].Name != "zeta" || manifest.Packages[1].Name != "alpha" {
		t.Errorf("manifest packages = %+v, want [zeta alpha]", manifest.Packages)
	}
}

func TestVendorPartialFailure(t *testing.T) {
	idx := seedIndex(t, t.TempDir(),
		testPackage{
			name: "good", version: "1.0.0",
			filename: "good-1.0.0-py3-none-any.whl",
			files:    map[string]string{"good/__init__.py": "x = 1\n"},
		},
	)

	cfg := testConfig(t, idx, "good", "missing-dep")
	result, err := Vendor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("partial failure must not abort the run: %v", err)
	}
	if len(result.Packages) != 1 || result.Packages[0].Name != "good" {
		t.Fatalf("expected good vendored, got %+v", result.Packages)
	}
	if len(result.Failures) != 1 || result.Failures[0].Name != "missing-dep" {
		t.Fatalf("expected missing-dep failure, got %+v", result.Failures)
	}
	if result.Success() {
		t.Error("a run with failures must not report success")
	}

	manifest, err := ReadManifest(filepath.Join(cfg.Dest, VendorDirName))
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Failures) != 1 {
		t.Error("manifest should record the failure")
	}
	if manifest.Success {
		t.Error("manifest must not record success")
	}
}

func TestVendorPlatformConflictAborts(t *testing.T) {
	idx := seedIndex(t, t.TempDir(),
		testPackage{
			name: "linuxer", version: "1.0.0",
			filename: "linuxer-1.0.0-cp311-cp311-manylinux_2_17_x86_64.whl",
			files:    map[string]string{"linuxer/__init__.py": "\n"},
		},
		testPackage{
			name: "maccer", version: "1.0.0",
			filename: "maccer-1.0.0-cp311-cp311-macosx_11_0_arm64.whl",
			files:    map[string]string{"maccer/__init__.py": "\n"},
		},
	)

	cfg := testConfig(t, idx, "linuxer", "maccer")
	result, err := Vendor(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected platform conflict error")
	}
	if errors.GetCode(err) != errors.ErrCodePlatformConflict {
		t.Fatalf("error code = %v, want PLATFORM_CONFLICT", errors.GetCode(err))
	}
	if result.Conflict == nil {
		t.Fatal("result should carry the structured conflict")
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Dest, VendorDirName)); !os.IsNotExist(statErr) {
		t.Error("aborted run must leave the destination untouched")
	}
}

func TestVendorAllowImpureCommits(t *testing.T) {
	idx := seedIndex(t, t.TempDir(),
		testPackage{
			name: "linuxer", version: "1.0.0",
			filename: "linuxer-1.0.0-cp311-cp311-manylinux_2_17_x86_64.whl",
			files:    map[string]string{"linuxer/__init__.py": "\n"},
		},
		testPackage{
			name: "maccer", version: "1.0.0",
			filename: "maccer-1.0.0-cp311-cp311-macosx_11_0_arm64.whl",
			files:    map[string]string{"maccer/__init__.py": "\n"},
		},
	)

	cfg := testConfig(t, idx, "linuxer", "maccer")
	cfg.AllowImpure = true
	result, err := Vendor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("allow-impure run should commit: %v", err)
	}
	if result.Conflict == nil {
		t.Error("conflict should still be recorded")
	}
	if len(result.Packages) != 2 {
		t.Errorf("expected both packages committed, got %d", len(result.Packages))
	}
	manifest, err := ReadManifest(filepath.Join(cfg.Dest, VendorDirName))
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Pure {
		t.Error("manifest must not claim purity")
	}
}

func TestVendorEmptyRequirements(t *testing.T) {
	cfg := testConfig(t, seedIndex(t, t.TempDir()))
	result, err := Vendor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("empty requirements should vendor trivially: %v", err)
	}
	if len(result.Packages) != 0 || len(result.Failures) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if !result.Pure() {
		t.Error("empty bundle is pure")
	}
	if !result.Success() {
		t.Error("empty bundle vendors successfully")
	}
	manifest, err := ReadManifest(filepath.Join(cfg.Dest, VendorDirName))
	if err != nil {
		t.Fatal("empty bundle still gets a manifest")
	}
	if !manifest.Success {
		t.Error("manifest should record success")
	}
}

func TestVendorMalformedRequirementIsFatal(t *testing.T) {
	cfg := testConfig(t, seedIndex(t, t.TempDir()), ">>=bogus")
	_, err := Vendor(context.Background(), cfg)
	if errors.GetCode(err) != errors.ErrCodeMalformedRequirement {
		t.Fatalf("error code = %v, want MALFORMED_REQUIREMENT", errors.GetCode(err))
	}
}

func TestVendorConfigValidation(t *testing.T) {
	_, err := Vendor(context.Background(), Config{})
	if errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Fatalf("error code = %v, want INVALID_CONFIG", errors.GetCode(err))
	}
}

func TestVendorPluginNameShadowing(t *testing.T) {
	// A vendored package exposing a module named like the plugin itself
	// must not enter the rewrite set: rewritten statements start with the
	// plugin's module and would match again on the next run.
	idx := seedIndex(t, t.TempDir(),
		testPackage{
			name: "shadow", version: "1.0.0",
			filename: "shadow-1.0.0-py3-none-any.whl",
			files: map[string]string{
				"myplugin/__init__.py":  "\n",
				"shadowlib/__init__.py": "import myplugin\n",
			},
		},
	)

	cfg := testConfig(t, idx, "shadow")
	writeTestFile(t, filepath.Join(cfg.Dest, "plugin.py"), "import shadowlib\n")

	if _, err := Vendor(context.Background(), cfg); err != nil {
		t.Fatalf("vendor: %v", err)
	}

	got := readTestFile(t, filepath.Join(cfg.Dest, VendorDirName, "shadowlib", "__init__.py"))
	if got != "import myplugin\n" {
		t.Errorf("shadowed module import rewritten: %q", got)
	}

	want := "from myplugin._vendor import shadowlib\n"
	if got := readTestFile(t, filepath.Join(cfg.Dest, "plugin.py")); got != want {
		t.Fatalf("plugin rewrite: %q", got)
	}

	// A second run over already-rewritten sources is a no-op.
	if _, err := Vendor(context.Background(), cfg); err != nil {
		t.Fatalf("second vendor: %v", err)
	}
	if got := readTestFile(t, filepath.Join(cfg.Dest, "plugin.py")); got != want {
		t.Errorf("second run altered plugin source: %q", got)
	}
}

func TestNamespace(t *testing.T) {
	if got := Namespace("My.Cool-Plugin"); got != "my_cool_plugin._vendor" {
		t.Errorf("Namespace = %q", got)
	}
}

func TestDiscoverModules(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "pkg", "__init__.py"), "")
	writeTestFile(t, filepath.Join(dir, "single.py"), "")
	writeTestFile(t, filepath.Join(dir, "setup.py"), "")
	writeTestFile(t, filepath.Join(dir, "__init__.py"), "")
	writeTestFile(t, filepath.Join(dir, "pkg-1.0.dist-info", "METADATA"), "")
	writeTestFile(t, filepath.Join(dir, "docs", "readme.txt"), "")

	modules, err := discoverModules(dir)
	if err != nil {
		t.Fatal(err)
	}
	// setup.py and the tree's own initializer are not importable modules.
	if len(modules) != 2 || modules[0] != "pkg" || modules[1] != "single" {
		t.Errorf("modules = %v, want [pkg single]", modules)
	}
}

func TestDiscoverModulesTopLevelTxt(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "pkg-1.0.dist-info", "top_level.txt"), "zeta\nalpha\n")
	writeTestFile(t, filepath.Join(dir, "zeta", "__init__.py"), "")
	writeTestFile(t, filepath.Join(dir, "alpha", "__init__.py"), "")
	writeTestFile(t, filepath.Join(dir, "_speedups.py"), "")

	modules, err := discoverModules(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(modules) != 2 || modules[0] != "alpha" || modules[1] != "zeta" {
		t.Errorf("modules = %v, want [alpha zeta]", modules)
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
