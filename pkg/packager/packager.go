// Package packager orchestrates a vendoring run end to end.
//
// A run resolves the plugin's requirements into a dependency graph, fetches
// every resolved package from the index through a bounded worker pool,
// detects and merges platform compatibility tags, rewrites imports into the
// plugin's private namespace, and commits the result atomically into the
// plugin's vendor directory together with a manifest.
//
// Failure semantics are per package: a package that cannot be fetched or
// rewritten is dropped from the bundle and recorded in the result, while
// the rest of the bundle commits normally. Only malformed input and a
// platform conflict (without the impure override) abort a run, and an
// aborted run leaves the destination untouched.
package packager

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/index"
	"github.com/wheelwright-dev/wheelwright/pkg/platform"
	"github.com/wheelwright-dev/wheelwright/pkg/require"
	"github.com/wheelwright-dev/wheelwright/pkg/resolve"
	"github.com/wheelwright-dev/wheelwright/pkg/rewrite"
)

const (
	// VendorDirName is the directory the bundle is committed into,
	// relative to the destination.
	VendorDirName = "_vendor"

	defaultWorkers = 4
	defaultTimeout = 60 * time.Second
)

// Config describes one vendoring run.
type Config struct {
	// Package is the target plugin's name. It becomes the first segment
	// of the vendored namespace.
	Package string

	// Requirements are the plugin's root requirement strings.
	Requirements []string

	// Exclude lists packages to leave out of the bundle entirely.
	Exclude []string

	// Dest is the plugin's root directory. The bundle is committed to
	// Dest/_vendor; the plugin's own sources under Dest are rewritten to
	// import from it.
	Dest string

	// Index is the package source.
	Index index.Index

	// Workers bounds concurrent downloads. Defaults to 4.
	Workers int

	// Timeout bounds each package's download. Defaults to 60s.
	Timeout time.Duration

	// AllowImpure commits a bundle despite a platform conflict. The
	// conflict is still recorded on the result and in the manifest.
	AllowImpure bool

	// Logger receives run progress. Defaults to the standard logger.
	Logger *log.Logger
}

// Result is the outcome of a vendoring run.
type Result struct {
	// RunID identifies the run; it also appears in the manifest.
	RunID string

	// Graph is the resolved dependency graph, including packages that
	// later failed to fetch.
	Graph *resolve.Graph

	// Packages lists the committed packages in resolution order.
	Packages []VendoredPackage

	// Failures lists per-package failures from every stage.
	Failures []resolve.Failure

	// Tag is the bundle's merged platform tag.
	Tag platform.Tag

	// Conflict is set when distinct native platform tags were found. The
	// bundle only commits with such a conflict under AllowImpure.
	Conflict *platform.Conflict
}

// Pure reports whether the committed bundle is platform independent.
func (r *Result) Pure() bool {
	return r.Conflict == nil && r.Tag.IsUniversal()
}

// Success reports whether every requested package was vendored. False as
// soon as any stage recorded a per-package failure.
func (r *Result) Success() bool {
	return len(r.Failures) == 0
}

// fetched is a package that survived the fetch stage.
type fetched struct {
	dep     *resolve.Dependency
	dir     string
	modules []string
	tag     platform.Tag
}

// Vendor runs a complete vendoring pass. The returned error is non-nil
// only for whole-run failures: invalid config, malformed requirements, an
// unresolvable platform conflict, or a commit failure. Per-package
// failures are reported through the Result.
func Vendor(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	roots, err := require.ParseAll(cfg.Requirements)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString(), Tag: platform.Universal}

	resolver := resolve.New(cfg.Index,
		resolve.WithExclusions(cfg.Exclude),
		resolve.WithLogger(logger))
	graph, failures := resolver.Resolve(ctx, cfg.Package, roots)
	result.Graph = graph
	result.Failures = failures
	logger.Info("resolved dependency graph",
		"packages", graph.Len(), "failures", len(failures))

	// Staging lives next to the destination so the commit can rename.
	staging, err := os.MkdirTemp(filepath.Dir(filepath.Clean(cfg.Dest)), ".wheelwright-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create staging directory")
	}
	defer os.RemoveAll(staging)

	ok := fetchAll(ctx, cfg, logger, graph.Packages(), staging, result)

	tags := make([]platform.Tagged, 0, len(ok))
	for _, f := range ok {
		tags = append(tags, platform.Tagged{Package: f.dep.Name, Tag: f.tag})
	}
	merged, conflict := platform.MostRestrictive(tags)
	result.Tag = merged
	if conflict != nil {
		result.Conflict = conflict
		if !cfg.AllowImpure {
			return result, errors.Wrap(errors.ErrCodePlatformConflict, conflict,
				"bundle mixes incompatible platform tags")
		}
		logger.Warn("committing impure bundle", "conflict", conflict.Error())
	}

	namespace := Namespace(cfg.Package)
	ok = rewriteAll(logger, ok, namespace, result)

	if err := commit(cfg, logger, ok, namespace, result); err != nil {
		return result, err
	}
	return result, nil
}

func (cfg Config) validate() error {
	if cfg.Package == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "package name is required")
	}
	if cfg.Dest == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "destination directory is required")
	}
	if cfg.Index == nil {
		return errors.New(errors.ErrCodeInvalidConfig, "package index is required")
	}
	return nil
}

// Namespace returns the dotted import path vendored code lives under for
// the named plugin.
func Namespace(pkg string) string {
	return pyIdentifier(pkg) + "." + VendorDirName
}

// pyIdentifier converts a package name to a Python identifier.
func pyIdentifier(name string) string {
	return strings.ReplaceAll(require.NormalizeName(name), "-", "_")
}

// namespaceHead returns the namespace's first dotted segment, the plugin's
// own module.
func namespaceHead(namespace string) string {
	head, _, _ := strings.Cut(namespace, ".")
	return head
}

// fetchAll downloads every resolved package into its own staging
// subdirectory through a bounded worker pool, detecting each package's
// platform tag and importable modules. Failed packages become result
// failures; the survivors are returned in graph order.
func fetchAll(ctx context.Context, cfg Config, logger *log.Logger, deps []*resolve.Dependency, staging string, result *Result) []fetched {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	jobs := make(chan *resolve.Dependency)
	var mu sync.Mutex
	byName := make(map[string]fetched, len(deps))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dep := range jobs {
				f, err := fetchOne(ctx, cfg.Index, dep, staging, timeout)
				mu.Lock()
				if err != nil {
					logger.Warn("fetch failed", "package", dep.Name, "error", err)
					result.Failures = append(result.Failures, resolve.Failure{
						Name:   dep.Name,
						Err:    err,
						Reason: errors.UserMessage(err),
					})
				} else {
					logger.Debug("fetched", "package", dep.Name, "tag", f.tag.String())
					byName[dep.Name] = f
				}
				mu.Unlock()
			}
		}()
	}
	for _, dep := range deps {
		jobs <- dep
	}
	close(jobs)
	wg.Wait()

	ok := make([]fetched, 0, len(byName))
	for _, dep := range deps {
		if f, found := byName[dep.Name]; found {
			ok = append(ok, f)
		}
	}
	return ok
}

func fetchOne(ctx context.Context, idx index.Index, dep *resolve.Dependency, staging string, timeout time.Duration) (fetched, error) {
	dir := filepath.Join(staging, dep.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fetched{}, errors.Wrap(errors.ErrCodeFetch, err, "stage %s", dep.Name)
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := idx.Download(dctx, dep.Name, dep.Version, dir); err != nil {
		os.RemoveAll(dir)
		return fetched{}, err
	}

	tag, err := platform.Detect(dep.Artifact, dir)
	if err != nil {
		os.RemoveAll(dir)
		return fetched{}, err
	}

	modules, err := discoverModules(dir)
	if err != nil {
		os.RemoveAll(dir)
		return fetched{}, errors.Wrap(errors.ErrCodeFetch, err, "scan modules of %s", dep.Name)
	}
	return fetched{dep: dep, dir: dir, modules: modules, tag: tag}, nil
}

// discoverModules finds the importable top-level modules of an extracted
// package: the names in a dist-info top_level.txt when present, otherwise
// the top-level packages and modules of the tree itself.
func discoverModules(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if !e.IsDir() || !isMetaDir(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "top_level.txt"))
		if err != nil {
			continue
		}
		var modules []string
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				modules = append(modules, line)
			}
		}
		if len(modules) > 0 {
			sort.Strings(modules)
			return modules, nil
		}
	}

	var modules []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() && isMetaDir(name):
		case e.IsDir():
			if _, err := os.Stat(filepath.Join(dir, name, "__init__.py")); err == nil {
				modules = append(modules, name)
			}
		case strings.HasSuffix(name, ".py") && name != "setup.py" && name != "__init__.py":
			modules = append(modules, strings.TrimSuffix(name, ".py"))
		}
	}
	sort.Strings(modules)
	return modules, nil
}

func isMetaDir(name string) bool {
	return strings.HasSuffix(name, ".dist-info") || strings.HasSuffix(name, ".egg-info")
}

// moduleUnion collects the distinct top-level modules across the fetched
// packages. The namespace's own head segment is excluded: a vendored
// package shadowing the plugin's name would otherwise make rewritten
// statements match again on a later pass.
func moduleUnion(ok []fetched, nsHead string) []string {
	union := make([]string, 0, len(ok))
	seen := map[string]bool{nsHead: true}
	for _, f := range ok {
		for _, m := range f.modules {
			if !seen[m] {
				seen[m] = true
				union = append(union, m)
			}
		}
	}
	return union
}

// rewriteAll rewrites imports inside every fetched package against the
// union of all vendored modules. A package whose sources cannot be
// rewritten is dropped and recorded as a failure.
func rewriteAll(logger *log.Logger, ok []fetched, namespace string, result *Result) []fetched {
	union := moduleUnion(ok, namespaceHead(namespace))
	rewriter := rewrite.New(namespace, union)

	kept := ok[:0]
	for _, f := range ok {
		changed, err := rewriter.Tree(f.dir)
		if err != nil {
			logger.Warn("rewrite failed", "package", f.dep.Name, "error", err)
			result.Failures = append(result.Failures, resolve.Failure{
				Name:   f.dep.Name,
				Err:    err,
				Reason: errors.UserMessage(err),
			})
			continue
		}
		logger.Debug("rewrote imports", "package", f.dep.Name, "files", changed)
		kept = append(kept, f)
	}
	return kept
}

// commit moves the staged packages into Dest/_vendor, rewrites the
// plugin's own sources, and writes the manifest. The previous vendor
// directory, if any, is replaced.
func commit(cfg Config, logger *log.Logger, ok []fetched, namespace string, result *Result) error {
	vendorDir := filepath.Join(cfg.Dest, VendorDirName)
	if err := os.RemoveAll(vendorDir); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "clear %s", vendorDir)
	}
	if err := os.MkdirAll(vendorDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create %s", vendorDir)
	}

	// ok is already in resolution order; the committed packages and the
	// manifest keep that canonical ordering.
	for _, f := range ok {
		if err := moveContents(f.dir, vendorDir); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "commit %s", f.dep.Name)
		}
		result.Packages = append(result.Packages, VendoredPackage{
			Name:       f.dep.Name,
			Version:    f.dep.Version,
			Direct:     f.dep.Direct,
			RequiredBy: f.dep.RequiredBy,
			Modules:    f.modules,
			Tag:        f.tag.String(),
		})
	}

	initPath := filepath.Join(vendorDir, "__init__.py")
	if _, err := os.Stat(initPath); os.IsNotExist(err) {
		if err := os.WriteFile(initPath, nil, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s", initPath)
		}
	}

	// The plugin's own imports of vendored packages move into the
	// namespace too. The vendor directory itself is already rewritten.
	union := moduleUnion(ok, namespaceHead(namespace))
	if len(union) > 0 {
		rewriter := rewrite.New(namespace, union)
		if err := rewriteDest(rewriter, cfg.Dest, vendorDir); err != nil {
			return err
		}
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Name < result.Failures[j].Name
	})
	manifest := &Manifest{
		RunID:       result.RunID,
		GeneratedAt: time.Now().UTC(),
		Namespace:   namespace,
		Tag:         result.Tag.String(),
		Pure:        result.Pure(),
		Success:     result.Success(),
		Packages:    result.Packages,
		Failures:    result.Failures,
	}
	if err := manifest.write(vendorDir); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write manifest")
	}
	logger.Info("committed bundle",
		"packages", len(result.Packages), "tag", result.Tag.String(), "dir", vendorDir)
	return nil
}

// rewriteDest rewrites the plugin's sources under dest, skipping the
// vendor directory.
func rewriteDest(rewriter *rewrite.Rewriter, dest, vendorDir string) error {
	return filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrap(errors.ErrCodeRewrite, err, "walk %s", dest)
		}
		if d.IsDir() {
			if path == vendorDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		_, err = rewriter.File(path)
		return err
	})
}

// moveContents renames every top-level entry of src into dst.
func moveContents(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
