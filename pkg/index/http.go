package index

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wheelwright-dev/wheelwright/pkg/cache"
	"github.com/wheelwright-dev/wheelwright/pkg/errors"
	"github.com/wheelwright-dev/wheelwright/pkg/httputil"
)

const httpTimeout = 10 * time.Second

// HTTPIndex talks to a JSON-over-HTTP package index.
//
// The index protocol is a single metadata endpoint per project,
// GET {base}/{name}/json, returning a [Project] document, plus plain
// artifact downloads at each release's URL. Metadata responses are cached
// through the configured cache backend; downloads never are.
//
// All methods are safe for concurrent use by multiple goroutines.
type HTTPIndex struct {
	http    *http.Client
	baseURL string
	backend cache.Cache
	ttl     time.Duration
}

// NewHTTPIndex creates an index client for the given base URL.
//
// Parameters:
//   - baseURL: index root, e.g. "https://plugins.example.org/simple"
//   - backend: cache backend for metadata responses (use cache.NewNullCache()
//     for no caching)
//   - ttl: how long metadata responses stay fresh
func NewHTTPIndex(baseURL string, backend cache.Cache, ttl time.Duration) *HTTPIndex {
	return &HTTPIndex{
		http:    &http.Client{Timeout: httpTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		backend: backend,
		ttl:     ttl,
	}
}

// Project fetches release metadata for the named package.
//
// Responses are cached under "index:{base}:{name}". On a cache hit no HTTP
// request is made. Transport failures and 5xx responses are retried with
// exponential backoff before being reported as NETWORK_ERROR.
func (x *HTTPIndex) Project(ctx context.Context, name string) (*Project, error) {
	name = normalize(name)
	key := fmt.Sprintf("index:%s:%s", x.baseURL, name)

	if data, ok, _ := x.backend.Get(ctx, key); ok {
		var p Project
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		// Corrupt entry: drop it and refetch.
		_ = x.backend.Delete(ctx, key)
	}

	var p Project
	err := httputil.RetryWithBackoff(ctx, func() error {
		return x.fetchProject(ctx, name, &p)
	})
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(&p); err == nil {
		_ = x.backend.Set(ctx, key, data, x.ttl)
	}
	return &p, nil
}

func (x *HTTPIndex) fetchProject(ctx context.Context, name string, p *Project) error {
	body, err := x.get(ctx, fmt.Sprintf("%s/%s/json", x.baseURL, name))
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return errors.New(errors.ErrCodeProjectNotFound, "index has no project %q", name)
		}
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(p); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "decode metadata for %s", name)
	}
	p.Name = normalize(p.Name)
	return nil
}

// Download fetches the release artifact and extracts it into dir.
//
// The artifact must be a zip archive (the plugin index serves source zips).
// The archive's single top-level directory, if any, is stripped so that dir
// becomes the package root.
func (x *HTTPIndex) Download(ctx context.Context, name, version, dir string) error {
	name = normalize(name)
	p, err := x.Project(ctx, name)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFetch, err, "download %s %s", name, version)
	}
	rel := p.Find(version)
	if rel == nil || rel.URL == "" {
		return errors.New(errors.ErrCodeFetch, "no artifact for %s %s", name, version)
	}

	var data []byte
	err = httputil.RetryWithBackoff(ctx, func() error {
		body, err := x.get(ctx, rel.URL)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err = io.ReadAll(body)
		return err
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeFetch, err, "download %s %s", name, version)
	}

	if err := extractZip(data, dir); err != nil {
		return errors.Wrap(errors.ErrCodeFetch, err, "extract %s %s", name, version)
	}
	return nil
}

func (x *HTTPIndex) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := x.http.Do(req)
	if err != nil {
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", url)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, errors.New(errors.ErrCodeNotFound, "GET %s: 404", url)
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, &httputil.RetryableError{Err: errors.New(errors.ErrCodeNetwork, "GET %s: status %d", url, resp.StatusCode)}
	default:
		resp.Body.Close()
		return nil, errors.New(errors.ErrCodeNetwork, "GET %s: status %d", url, resp.StatusCode)
	}
}

// extractZip unpacks archive data into dir, stripping a shared top-level
// directory if every entry lives under one. Entries escaping dir are
// rejected.
func extractZip(data []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}

	prefix := sharedPrefix(zr.File)
	for _, f := range zr.File {
		rel := strings.TrimPrefix(f.Name, prefix)
		if rel == "" {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// sharedPrefix returns the "pkg-1.0.0/" style directory that all archive
// entries share, or empty if they don't share one.
func sharedPrefix(files []*zip.File) string {
	var prefix string
	for _, f := range files {
		i := strings.Index(f.Name, "/")
		if i < 0 {
			return ""
		}
		top := f.Name[:i+1]
		if top == "../" || top == "./" {
			return ""
		}
		if prefix == "" {
			prefix = top
		} else if top != prefix {
			return ""
		}
	}
	return prefix
}

// Ensure HTTPIndex implements Index.
var _ Index = (*HTTPIndex)(nil)
