// Package graph exports a resolved dependency graph for inspection.
//
// Three formats are supported: JSON for tooling, Graphviz DOT for further
// processing, and rendered SVG for direct viewing.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/wheelwright-dev/wheelwright/pkg/resolve"
)

// Export is the serializable form of a resolution outcome.
type Export struct {
	// Root is the target plugin's name.
	Root string `json:"root"`

	// Packages lists the resolved nodes in discovery order.
	Packages []*resolve.Dependency `json:"packages"`

	// Failures lists packages that could not be resolved.
	Failures []resolve.Failure `json:"failures,omitempty"`
}

// New builds an Export from a resolution outcome.
func New(root string, g *resolve.Graph, failures []resolve.Failure) *Export {
	return &Export{Root: root, Packages: g.Packages(), Failures: failures}
}

// JSON serializes the export, indented.
func (e *Export) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DOT converts the export to Graphviz DOT. The root appears as a distinct
// node with edges to its direct dependencies; failed packages are rendered
// dashed so a partial resolution stays visible.
func (e *Export) DOT() string {
	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white];\n")
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  %q [style=\"rounded,filled,bold\", fillcolor=lightblue];\n", e.Root)
	for _, p := range e.Packages {
		fmt.Fprintf(&buf, "  %q [label=%q];\n", p.Name, p.Name+"\n"+p.Version)
	}
	for _, f := range e.Failures {
		fmt.Fprintf(&buf, "  %q [style=\"rounded,dashed\", fontcolor=grey];\n", f.Name)
	}

	buf.WriteString("\n")
	for _, p := range e.Packages {
		for _, from := range p.RequiredBy {
			fmt.Fprintf(&buf, "  %q -> %q;\n", from, p.Name)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders the export's DOT form to SVG using Graphviz.
func (e *Export) RenderSVG(ctx context.Context) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(e.DOT()))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

// Tree formats the export as an indented text tree rooted at the plugin,
// for terminal display. Shared nodes reappear under each requirer but are
// only expanded once.
func (e *Export) Tree() string {
	children := make(map[string][]string)
	for _, p := range e.Packages {
		for _, from := range p.RequiredBy {
			children[from] = append(children[from], p.Name)
		}
	}
	versions := make(map[string]string, len(e.Packages))
	for _, p := range e.Packages {
		versions[p.Name] = p.Version
	}

	var buf strings.Builder
	buf.WriteString(e.Root + "\n")
	expanded := make(map[string]bool)
	var walk func(name string, depth int)
	walk = func(name string, depth int) {
		for _, child := range children[name] {
			fmt.Fprintf(&buf, "%s%s %s\n", strings.Repeat("  ", depth), child, versions[child])
			if !expanded[child] {
				expanded[child] = true
				walk(child, depth+1)
			}
		}
	}
	walk(e.Root, 1)
	return buf.String()
}
