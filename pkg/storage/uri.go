package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Resolver maps location URIs to stores.
//
//	/abs/dir/model.onnx         local file
//	file:///abs/dir/model.onnx  local file
//	s3://bucket/key/model.onnx  S3 object (needs S3)
//	https://host/models/x.onnx  HTTP GET
type Resolver struct {
	// S3 returns a client for s3:// locations. Nil disables the scheme.
	S3 func(ctx context.Context) (S3Client, error)

	// HTTPClient serves http:// and https://. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Open returns the store holding uri and the file's path within it. The
// store root is the parent "directory" of the file, so siblings (such as an
// ncnn .bin next to its .param) resolve through the same store.
func (r *Resolver) Open(ctx context.Context, uri string) (FileStore, string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths, including Windows drive letters.
		return openLocal(uri)
	}

	switch u.Scheme {
	case "file":
		return openLocal(u.Path)
	case "s3":
		if r.S3 == nil {
			return nil, "", fmt.Errorf("storage: s3 not configured for %s", uri)
		}
		client, err := r.S3(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("storage: s3 client: %w", err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		dir, name := path.Split(key)
		return NewS3(client, u.Host, strings.TrimSuffix(dir, "/")), name, nil
	case "http", "https":
		dir, name := path.Split(u.Path)
		base := *u
		base.Path = dir
		base.RawQuery = ""
		h, err := NewHTTP(r.HTTPClient, base.String())
		if err != nil {
			return nil, "", err
		}
		return h, name, nil
	}
	return nil, "", fmt.Errorf("storage: unsupported scheme %q", u.Scheme)
}

// openLocal roots a Local store at the file's directory without creating
// anything.
func openLocal(p string) (FileStore, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, "", err
	}
	return &Local{root: filepath.Dir(abs)}, filepath.Base(abs), nil
}

// Sibling returns the path of a file next to p with its extension replaced.
func Sibling(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}
