// Package rewrite relocates import statements into a vendored namespace.
//
// Given the set of vendored top-level modules and a namespace prefix, the
// rewriter transforms import statements whose top-level module is in the
// set so they resolve inside the namespace, preserving every name binding
// the original statement created:
//
//	import httpx              -> from myplugin._vendor import httpx
//	import httpx as hx        -> from myplugin._vendor import httpx as hx
//	import yaml.loader        -> import myplugin._vendor.yaml.loader; from myplugin._vendor import yaml
//	import yaml.loader as yl  -> from myplugin._vendor.yaml import loader as yl
//	from httpx import get     -> from myplugin._vendor.httpx import get
//
// Imports of modules outside the set, and relative imports, pass through
// untouched. The scan is line oriented and purely syntactic: it tracks
// triple-quoted strings, bracket depth, and backslash continuations so that
// import-like text inside strings or continued expressions is never
// rewritten, but it does not parse the sources. Rewriting is idempotent
// because the namespace's own first segment is never a vendored module, so
// rewritten statements no longer match on a second pass.
package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wheelwright-dev/wheelwright/pkg/errors"
)

// Rewriter rewrites imports of a fixed module set into a namespace.
// Safe for concurrent use once constructed.
type Rewriter struct {
	namespace string
	modules   map[string]bool
}

// New creates a Rewriter that relocates imports of the given top-level
// modules under namespace (a dotted path such as "myplugin._vendor").
func New(namespace string, modules []string) *Rewriter {
	set := make(map[string]bool, len(modules))
	for _, m := range modules {
		set[m] = true
	}
	return &Rewriter{namespace: namespace, modules: set}
}

// scanState carries string, continuation, and bracket context across lines.
type scanState struct {
	// tripleQuote is the active triple-quote delimiter, or "" outside one.
	tripleQuote string

	// depth is the open bracket depth from prior lines.
	depth int

	// continued is true when the previous line ended with a backslash.
	continued bool
}

// Source rewrites a whole source text and reports whether anything changed.
func (r *Rewriter) Source(src string) (string, bool) {
	lines := strings.Split(src, "\n")
	changed := false
	var state scanState

	for i, line := range lines {
		candidate := state.tripleQuote == "" && state.depth == 0 && !state.continued
		// Rewriting never changes bracket, string, or continuation
		// structure, so the original line's scan state carries over.
		state = state.scan(line)
		if !candidate {
			continue
		}
		if out, ok := r.rewriteLine(line); ok {
			lines[i] = out
			changed = true
		}
	}
	if !changed {
		return src, false
	}
	return strings.Join(lines, "\n"), true
}

// File rewrites a single file in place. Returns whether it changed.
func (r *Rewriter) File(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeRewrite, err, "read %s", path)
	}
	out, changed := r.Source(string(data))
	if !changed {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeRewrite, err, "stat %s", path)
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return false, errors.Wrap(errors.ErrCodeRewrite, err, "write %s", path)
	}
	return true, nil
}

// Tree rewrites every .py file under root and returns the number of files
// changed. The first failure aborts the walk.
func (r *Rewriter) Tree(root string) (int, error) {
	changed := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.Wrap(errors.ErrCodeRewrite, err, "walk %s", root)
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		ok, err := r.File(path)
		if err != nil {
			return err
		}
		if ok {
			changed++
		}
		return nil
	})
	return changed, err
}

// rewriteLine rewrites one candidate line, preserving indentation and any
// trailing comment. Returns false when the line is not an import of a
// vendored module.
func (r *Rewriter) rewriteLine(line string) (string, bool) {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	rest := line[len(indent):]

	code, comment := splitComment(rest)
	stmt := strings.TrimRight(code, " \t")
	trailing := code[len(stmt):] + comment

	var out string
	var ok bool
	switch {
	case strings.HasPrefix(stmt, "import ") || strings.HasPrefix(stmt, "import\t"):
		out, ok = r.rewriteImport(strings.TrimSpace(stmt[len("import"):]))
	case strings.HasPrefix(stmt, "from ") || strings.HasPrefix(stmt, "from\t"):
		out, ok = r.rewriteFrom(strings.TrimSpace(stmt[len("from"):]))
	}
	if !ok {
		return "", false
	}
	return indent + out + trailing, true
}

// rewriteImport handles "import a.b as c, d" statements. Each item is
// rewritten independently; items whose top-level module is not vendored
// keep a plain import. Returns false when no item needed rewriting.
func (r *Rewriter) rewriteImport(list string) (string, bool) {
	items := strings.Split(list, ",")
	stmts := make([]string, 0, len(items))
	touched := false

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return "", false
		}
		module, alias := splitAlias(item)
		top, _, dotted := strings.Cut(module, ".")
		if !r.modules[top] {
			stmts = append(stmts, "import "+item)
			continue
		}
		touched = true
		switch {
		case !dotted && alias == "":
			stmts = append(stmts, fmt.Sprintf("from %s import %s", r.namespace, top))
		case !dotted:
			stmts = append(stmts, fmt.Sprintf("from %s import %s as %s", r.namespace, top, alias))
		case alias == "":
			// import a.b binds "a", with a.b reachable as an attribute.
			// Load the submodule, then bind the relocated top-level name.
			stmts = append(stmts,
				fmt.Sprintf("import %s.%s", r.namespace, module),
				fmt.Sprintf("from %s import %s", r.namespace, top))
		default:
			// import a.b.c as x binds only x. A from-import of the last
			// segment reproduces that single binding.
			cut := strings.LastIndex(module, ".")
			stmts = append(stmts,
				fmt.Sprintf("from %s.%s import %s as %s", r.namespace, module[:cut], module[cut+1:], alias))
		}
	}
	if !touched {
		return "", false
	}
	return strings.Join(stmts, "; "), true
}

// rewriteFrom handles "from a.b import x" statements, including ones whose
// import list continues on later lines. Relative imports pass through.
func (r *Rewriter) rewriteFrom(rest string) (string, bool) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "", false
	}
	module := fields[0]
	if strings.HasPrefix(module, ".") {
		return "", false
	}
	top, _, _ := strings.Cut(module, ".")
	if !r.modules[top] {
		return "", false
	}
	suffix := strings.TrimSpace(strings.TrimPrefix(rest, module))
	return fmt.Sprintf("from %s.%s %s", r.namespace, module, suffix), true
}

// splitAlias splits "module as alias" into its parts.
func splitAlias(item string) (module, alias string) {
	if before, after, ok := cutWord(item, "as"); ok {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	return item, ""
}

// cutWord cuts s around the first occurrence of word as a whitespace
// separated token.
func cutWord(s, word string) (before, after string, found bool) {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == word && i > 0 && i < len(fields)-1 {
			return strings.Join(fields[:i], " "), strings.Join(fields[i+1:], " "), true
		}
	}
	return s, "", false
}

// splitComment splits a line's code from a trailing comment, respecting
// single-line string literals.
func splitComment(line string) (code, comment string) {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return line[:i], line[i:]
		}
	}
	return line, ""
}

// scan consumes one line and returns the state for the following line.
func (s scanState) scan(line string) scanState {
	next := s
	next.continued = false

	i := 0
	for i < len(line) {
		if next.tripleQuote != "" {
			if strings.HasPrefix(line[i:], next.tripleQuote) {
				i += len(next.tripleQuote)
				next.tripleQuote = ""
				continue
			}
			if line[i] == '\\' {
				i += 2
				continue
			}
			i++
			continue
		}

		c := line[i]
		switch c {
		case '#':
			return next
		case '\'', '"':
			delim := string(c)
			if strings.HasPrefix(line[i:], strings.Repeat(delim, 3)) {
				next.tripleQuote = strings.Repeat(delim, 3)
				i += 3
				continue
			}
			// Single-line string: skip to its closing quote.
			j := i + 1
			for j < len(line) {
				if line[j] == '\\' {
					j += 2
					continue
				}
				if line[j] == c {
					break
				}
				j++
			}
			i = j + 1
			continue
		case '(', '[', '{':
			next.depth++
		case ')', ']', '}':
			if next.depth > 0 {
				next.depth--
			}
		case '\\':
			if i == len(line)-1 {
				next.continued = true
			}
		}
		i++
	}
	return next
}
