package graph

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/index"
	"github.com/wheelwright-dev/wheelwright/pkg/require"
	"github.com/wheelwright-dev/wheelwright/pkg/resolve"
)

type stubIndex struct {
	projects map[string]*index.Project
}

func (s *stubIndex) Project(_ context.Context, name string) (*index.Project, error) {
	p, ok := s.projects[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeProjectNotFound, "no project %s", name)
	}
	return p, nil
}

func (s *stubIndex) Download(context.Context, string, string, string) error { return nil }

func testExport(t *testing.T) *Export {
	t.Helper()
	idx := &stubIndex{projects: map[string]*index.Project{
		"web": {Name: "web", Releases: []index.Release{
			{Version: "1.2.0", Requires: []string{"certs", "ghost"}},
		}},
		"certs": {Name: "certs", Releases: []index.Release{
			{Version: "2024.1.0"},
		}},
	}}
	reqs, err := require.ParseAll([]string{"web"})
	if err != nil {
		t.Fatal(err)
	}
	r := resolve.New(idx, resolve.WithLogger(log.New(io.Discard)))
	g, failures := r.Resolve(context.Background(), "plugin", reqs)
	return New("plugin", g, failures)
}

func TestExportJSON(t *testing.T) {
	data, err := testExport(t).JSON()
	if err != nil {
		t.Fatal(err)
	}

	var round Export
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if round.Root != "plugin" {
		t.Errorf("root = %q", round.Root)
	}
	if len(round.Packages) != 2 {
		t.Errorf("packages = %d, want 2", len(round.Packages))
	}
	if len(round.Failures) != 1 || round.Failures[0].Name != "ghost" {
		t.Errorf("failures = %+v", round.Failures)
	}
}

func TestExportDOT(t *testing.T) {
	dot := testExport(t).DOT()

	if !strings.HasPrefix(dot, "digraph deps {") {
		t.Error("DOT should start with 'digraph deps {'")
	}
	if !strings.HasSuffix(strings.TrimSpace(dot), "}") {
		t.Error("DOT should end with '}'")
	}
	for _, want := range []string{
		`"plugin" -> "web";`,
		`"web" -> "certs";`,
		`"web\n1.2.0"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q", want)
		}
	}
	if !strings.Contains(dot, `"ghost" [style="rounded,dashed"`) {
		t.Error("failed packages should render dashed")
	}
}

func TestExportTree(t *testing.T) {
	tree := testExport(t).Tree()

	lines := strings.Split(strings.TrimRight(tree, "\n"), "\n")
	want := []string{
		"plugin",
		"  web 1.2.0",
		"    certs 2024.1.0",
	}
	if len(lines) != len(want) {
		t.Fatalf("tree:\n%s", tree)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
