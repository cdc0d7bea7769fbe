// Package fetch resolves a document URI to its bytes before extraction.
// Supported schemes are file://, http(s):// and s3://bucket/key.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultMaxBytes = 256 << 20

var (
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")
	ErrTooLarge          = errors.New("document exceeds fetch size limit")
)

// Credentials travel with a single fetch and are never persisted. Empty
// fields fall back to the fetcher's configured defaults.
type Credentials struct {
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
	SessionToken    string `json:"-"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	BearerToken     string `json:"-"`
}

func (c Credentials) merge(def Credentials) Credentials {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return Credentials{
		AccessKeyID:     pick(c.AccessKeyID, def.AccessKeyID),
		SecretAccessKey: pick(c.SecretAccessKey, def.SecretAccessKey),
		SessionToken:    pick(c.SessionToken, def.SessionToken),
		Region:          pick(c.Region, def.Region),
		Endpoint:        pick(c.Endpoint, def.Endpoint),
		BearerToken:     pick(c.BearerToken, def.BearerToken),
	}
}

// Fetcher fetches one scheme.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL, creds Credentials) (io.ReadCloser, error)
}

type Options struct {
	MaxBytes int64
	Defaults Credentials
	// FileRoot, when set, confines file:// paths to this directory.
	FileRoot   string
	HTTPClient *http.Client
}

// Router dispatches by scheme and enforces the size limit.
type Router struct {
	maxBytes int64
	defaults Credentials
	schemes  map[string]Fetcher
}

func NewRouter(opts Options) *Router {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	h := &HTTPFetcher{client: client}
	return &Router{
		maxBytes: opts.MaxBytes,
		defaults: opts.Defaults,
		schemes: map[string]Fetcher{
			"file":  &FileFetcher{root: opts.FileRoot},
			"http":  h,
			"https": h,
			"s3":    NewS3Fetcher(),
		},
	}
}

// Register installs or replaces the fetcher for scheme.
func (r *Router) Register(scheme string, f Fetcher) {
	r.schemes[strings.ToLower(scheme)] = f
}

func (r *Router) Fetch(ctx context.Context, uri string, creds Credentials) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "file"
	}
	f, ok := r.schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	rc, err := f.Fetch(ctx, u, creds.merge(r.defaults))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", redact(u), err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, redact(u), r.maxBytes)
	}
	return data, nil
}

type FileFetcher struct {
	root string
}

func (f *FileFetcher) Fetch(ctx context.Context, u *url.URL, _ Credentials) (io.ReadCloser, error) {
	_ = ctx
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		p = filepath.Join(u.Host, p)
	}
	if f.root != "" {
		rel, err := filepath.Rel(f.root, filepath.Clean(p))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("path %s is outside %s", p, f.root)
		}
	}
	fh, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return fh, nil
}

type HTTPFetcher struct {
	client *http.Client
}

func (h *HTTPFetcher) Fetch(ctx context.Context, u *url.URL, creds Credentials) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if creds.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", redact(u), err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d: %s", redact(u), resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// redact drops userinfo and query strings, which may carry secrets.
func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	return c.String()
}
