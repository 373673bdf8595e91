package platform

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// nativeExts are file extensions of compiled extension modules. A tree
// containing any of these cannot be relocated to another platform.
var nativeExts = map[string]bool{
	".so":    true,
	".pyd":   true,
	".dylib": true,
}

// Detect computes the compatibility tag for a downloaded package.
//
// artifact is the distribution filename the index reported (may be empty);
// dir is the extracted source tree. The filename fast path wins when it is
// wheel-shaped; otherwise the tree is scanned.
func Detect(artifact, dir string) (Tag, error) {
	if tag, ok := ParseWheelFilename(artifact); ok {
		return tag, nil
	}
	return DetectTree(dir)
}

// DetectTree scans an extracted source tree and returns its tag.
//
// A tree is universal unless it embeds distribution metadata declaring a
// non-universal tag (a WHEEL tag file inside a .dist-info directory) or
// contains native extension modules. When a native module is found without
// any declared tag, the tag is inferred from the extension's filename
// suffix where possible, falling back to a generic tag for the build host.
func DetectTree(dir string) (Tag, error) {
	result := Universal
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == "WHEEL" && strings.HasSuffix(filepath.Dir(path), ".dist-info") {
			if tag, ok := readWheelMetadata(path); ok && !tag.IsUniversal() {
				result = tag
				return filepath.SkipAll
			}
			return nil
		}
		if nativeExts[filepath.Ext(d.Name())] {
			result = nativeTag(d.Name())
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return Tag{}, err
	}
	return result, nil
}

// readWheelMetadata parses a WHEEL tag file and returns the first declared
// tag. Multiple "Tag:" lines describe a compressed tag set; any one of them
// carries the same platform claim.
func readWheelMetadata(path string) (Tag, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Tag{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, found := strings.CutPrefix(line, "Tag:")
		if !found {
			continue
		}
		if tag, ok := ParseTag(strings.TrimSpace(value)); ok {
			return tag, true
		}
	}
	return Tag{}, false
}

// nativeTag derives a tag from a native extension module's filename.
// CPython names extensions like "speedups.cpython-311-x86_64-linux-gnu.so";
// when the filename carries no such suffix, the build host's platform is
// the best available claim.
func nativeTag(filename string) Tag {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if i := strings.LastIndex(base, "."); i >= 0 {
		suffix := base[i+1:]
		if parts := strings.SplitN(suffix, "-", 3); len(parts) >= 2 && strings.HasPrefix(parts[0], "cpython") {
			interp := "cp" + parts[1]
			tag := Tag{Interpreter: interp, ABI: interp, Platform: hostPlatform()}
			if len(parts) == 3 {
				tag.Platform = strings.ReplaceAll(parts[2], "-", "_")
			}
			return tag
		}
		if suffix == "abi3" {
			return Tag{Interpreter: "cp3", ABI: "abi3", Platform: hostPlatform()}
		}
	}
	return Tag{Interpreter: "cp3", ABI: "abi3", Platform: hostPlatform()}
}

func hostPlatform() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	}
	switch runtime.GOOS {
	case "darwin":
		return "macosx_11_0_" + arch
	case "windows":
		if arch == "x86_64" {
			return "win_amd64"
		}
		return "win_" + arch
	default:
		return "linux_" + arch
	}
}
