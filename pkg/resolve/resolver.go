package resolve

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/index"
	"github.com/wheelwright-dev/wheelwright/pkg/require"
	"github.com/wheelwright-dev/wheelwright/pkg/semver"
)

// Failure records a package that could not be resolved. The subtree below
// it is absent from the graph.
type Failure struct {
	// Name is the normalized package name, or the raw requirement text
	// when the name itself could not be parsed.
	Name string `json:"name"`

	// Err is the underlying structured error.
	Err error `json:"-"`

	// Reason is Err's user-facing message, kept separately so failures
	// survive JSON serialization.
	Reason string `json:"reason"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithExclusions skips the named packages entirely: no node, no edges, no
// traversal below them. Names are normalized before matching.
func WithExclusions(names []string) Option {
	return func(r *Resolver) {
		for _, n := range names {
			r.exclude[require.NormalizeName(n)] = true
		}
	}
}

// WithLogger sets the logger used for per-package progress.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// Resolver computes the transitive dependency closure of a set of root
// requirements against a package index.
type Resolver struct {
	index   index.Index
	exclude map[string]bool
	logger  *log.Logger
}

// New creates a Resolver backed by the given index.
func New(idx index.Index, opts ...Option) *Resolver {
	r := &Resolver{
		index:   idx,
		exclude: make(map[string]bool),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// job is one pending edge in the traversal: a requirement plus the package
// that declared it.
type job struct {
	req        require.Requirement
	requiredBy string
	direct     bool
}

// Resolve walks the dependency closure of roots breadth-first and returns
// the resolved graph together with any per-package failures. root is the
// target plugin's own name and appears as the root requirer on direct
// dependencies. An empty root set yields an empty graph and no failures.
//
// Host modules and excluded packages are skipped silently. A package
// already resolved is never resolved again; later edges to it only merge
// into its required-by set, so cycles terminate and constraint order is
// first-wins.
func (r *Resolver) Resolve(ctx context.Context, root string, roots []require.Requirement) (*Graph, []Failure) {
	graph := NewGraph()
	var failures []Failure
	failed := make(map[string]bool)

	queue := make([]job, 0, len(roots))
	for _, req := range roots {
		queue = append(queue, job{req: req, requiredBy: require.NormalizeName(root), direct: true})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			failures = append(failures, newFailure("", errors.Wrap(errors.ErrCodeTimeout, err, "resolution canceled")))
			return graph, failures
		}

		j := queue[0]
		queue = queue[1:]
		name := j.req.Name

		if r.exclude[name] || require.IsHostModule(name) {
			continue
		}
		if node, ok := graph.Node(name); ok {
			node.requiredBy(j.requiredBy)
			if j.direct {
				node.Direct = true
			}
			continue
		}
		if failed[name] {
			continue
		}

		release, err := r.pick(ctx, j.req)
		if err != nil {
			r.logger.Warn("resolution failed", "package", name, "error", err)
			failed[name] = true
			failures = append(failures, newFailure(name, err))
			continue
		}
		r.logger.Debug("resolved", "package", name, "version", release.Version)

		node := &Dependency{
			Name:     name,
			Version:  release.Version,
			Direct:   j.direct,
			Artifact: release.Filename,
		}
		node.requiredBy(j.requiredBy)
		graph.add(node)

		for _, raw := range release.Requires {
			child, err := require.Parse(raw)
			if err != nil {
				failed[raw] = true
				failures = append(failures, newFailure(raw, err))
				continue
			}
			queue = append(queue, job{req: child, requiredBy: name})
		}
	}

	return graph, failures
}

// pick fetches the project's metadata and selects the highest release
// version satisfying the requirement's constraint. Releases whose versions
// do not parse are ignored.
func (r *Resolver) pick(ctx context.Context, req require.Requirement) (*index.Release, error) {
	project, err := r.index.Project(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	versions := make([]semver.Version, 0, len(project.Releases))
	for _, rel := range project.Releases {
		v, err := semver.ParseVersion(rel.Version)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}

	best, ok := semver.MaxSatisfying(req.Spec(), versions)
	if !ok {
		return nil, errors.New(errors.ErrCodeResolution,
			"no version of %s satisfies %q", req.Name, req.Raw)
	}

	release := project.Find(best.Original())
	if release == nil {
		return nil, errors.New(errors.ErrCodeResolution,
			"index lost release %s %s", req.Name, best.Original())
	}
	return release, nil
}

func newFailure(name string, err error) Failure {
	return Failure{Name: name, Err: err, Reason: errors.UserMessage(err)}
}
