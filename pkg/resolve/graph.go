// Package resolve turns root requirements into a dependency graph.
//
// Resolution is a breadth-first traversal over the package index: each
// requirement is normalized, satisfied with the highest version the index
// offers under the constraint, and its declared dependencies are enqueued
// for the next level. The traversal is deterministic (fixed iteration order
// over each package's declared dependencies, level by level), duplicate-safe
// (a package reachable via several paths gets one node and merged
// required-by edges), and cycle-safe (visited packages are never
// re-resolved).
//
// Resolution is best-effort: per-package failures (unknown project, no
// satisfying version) are collected and returned alongside the graph, with
// the failing subtree absent. Only malformed root requirements abort a run,
// and those are rejected by pkg/require before a Resolver ever runs.
package resolve

// Dependency is a resolved node in the graph.
//
// Nodes are created when a requirement is first satisfied and updated in
// place when later edges reach the same package; they are never replaced,
// so multiple paths to one package cannot produce duplicate nodes.
type Dependency struct {
	// Name is the normalized package name.
	Name string `json:"name"`

	// Version is the resolved version.
	Version string `json:"version"`

	// Direct is true when the package was named by a root requirement
	// (possibly in addition to being required transitively).
	Direct bool `json:"direct"`

	// RequiredBy lists the packages that require this one, in discovery
	// order. The root requirer is the target plugin's own name. A package
	// never lists itself.
	RequiredBy []string `json:"required_by"`

	// Artifact is the distribution filename the index reported for the
	// resolved release, used by platform detection's fast path.
	Artifact string `json:"artifact,omitempty"`
}

// Graph is the resolved dependency graph: one node per normalized package
// name, stored arena-style in a single map with edges as name references.
// Node order is the deterministic discovery order.
type Graph struct {
	nodes map[string]*Dependency
	order []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Dependency)}
}

// Node returns the dependency with the given normalized name.
func (g *Graph) Node(name string) (*Dependency, bool) {
	d, ok := g.nodes[name]
	return d, ok
}

// Packages returns all nodes in discovery order.
func (g *Graph) Packages() []*Dependency {
	out := make([]*Dependency, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// add inserts a new node. The caller guarantees the name is not present.
func (g *Graph) add(d *Dependency) {
	g.nodes[d.Name] = d
	g.order = append(g.order, d.Name)
}

// requiredBy records that requirer needs name. Self-loops and duplicates
// are dropped.
func (d *Dependency) requiredBy(requirer string) {
	if requirer == "" || requirer == d.Name {
		return
	}
	for _, existing := range d.RequiredBy {
		if existing == requirer {
			return
		}
	}
	d.RequiredBy = append(d.RequiredBy, requirer)
}
