package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	r := NewRouter(Options{FileRoot: dir})
	data, err := r.Fetch(context.Background(), "file://"+path, Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	data, err = r.Fetch(context.Background(), path, Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	_, err = r.Fetch(context.Background(), "file:///etc/passwd", Credentials{})
	require.ErrorContains(t, err, "outside")
}

func TestFetchHTTPWithBearerAndLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("denied"))
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	r := NewRouter(Options{MaxBytes: 100})
	data, err := r.Fetch(context.Background(), srv.URL+"/doc.pdf", Credentials{BearerToken: "tok"})
	require.NoError(t, err)
	assert.Len(t, data, 64)

	_, err = r.Fetch(context.Background(), srv.URL+"/doc.pdf?sig=secret", Credentials{})
	require.ErrorContains(t, err, "status 401")
	assert.NotContains(t, err.Error(), "secret")

	small := NewRouter(Options{MaxBytes: 10, Defaults: Credentials{BearerToken: "tok"}})
	_, err = small.Fetch(context.Background(), srv.URL+"/doc.pdf", Credentials{})
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchS3PathStyle(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-s3"))
	}))
	defer srv.Close()

	r := NewRouter(Options{})
	data, err := r.Fetch(context.Background(), "s3://papers/2024/a.pdf", Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Region:          "eu-west-1",
		Endpoint:        srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-s3"), data)
	assert.Equal(t, "/papers/2024/a.pdf", gotPath)
	assert.Contains(t, gotAuth, "AKIDEXAMPLE")
}

func TestFetchRejectsUnknownSchemeAndBadS3URI(t *testing.T) {
	r := NewRouter(Options{})
	_, err := r.Fetch(context.Background(), "gopher://x/y", Credentials{})
	require.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = r.Fetch(context.Background(), "s3://bucket-only", Credentials{})
	require.ErrorContains(t, err, "s3://bucket/key")
}

type staticFetcher string

func (s staticFetcher) Fetch(context.Context, *url.URL, Credentials) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func TestRegisterOverridesScheme(t *testing.T) {
	r := NewRouter(Options{})
	r.Register("mem", staticFetcher("hello"))
	data, err := r.Fetch(context.Background(), "mem://anything", Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
