package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// ErrReadOnly is returned by write operations on read-only stores.
var ErrReadOnly = errors.New("storage: read-only store")

// HTTP implements a read-only FileStore over plain HTTP GET and HEAD.
// Paths are resolved relative to the base URL.
type HTTP struct {
	client *http.Client
	base   *url.URL
}

// NewHTTP creates an HTTP store rooted at base. A nil client uses
// http.DefaultClient.
func NewHTTP(client *http.Client, base string) (*HTTP, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("storage: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("storage: unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client, base: u}, nil
}

func (h *HTTP) resolve(path string) string {
	return h.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

func (h *HTTP) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.resolve(path), nil)
	if err != nil {
		return nil, err
	}
	return h.client.Do(req)
}

// Read fetches the named file. A 404 returns an error wrapping
// os.ErrNotExist.
func (h *HTTP) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := h.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("storage: http %s: %w", path, os.ErrNotExist)
	case resp.StatusCode >= 300:
		resp.Body.Close()
		return nil, fmt.Errorf("storage: http %s: %s", path, resp.Status)
	}
	return resp.Body, nil
}

// Write always fails with ErrReadOnly.
func (h *HTTP) Write(context.Context, string) (io.WriteCloser, error) {
	return nil, ErrReadOnly
}

// Delete always fails with ErrReadOnly.
func (h *HTTP) Delete(context.Context, string) error {
	return ErrReadOnly
}

// Exists issues a HEAD request.
func (h *HTTP) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := h.do(ctx, http.MethodHead, path)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("storage: http %s: %s", path, resp.Status)
	}
	return true, nil
}

var _ FileStore = (*HTTP)(nil)
