// Package storage defines the FileStore interface for reading and writing
// files. It abstracts the underlying storage backend so that callers can
// swap between local disk, S3-compatible object stores, or read-only HTTP
// servers without changing application code.
//
// pitchscope reads model weights through it and writes CSV exports of
// recorded sessions. [Resolver] maps a location URI (a path, file://,
// s3:// or https://) to the store that serves it.
package storage

import (
	"context"
	"fmt"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing.
	// If the file already exists it is truncated.
	// Parent directories are created automatically.
	// The caller must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file.
	// If the file does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// ReadAll reads the whole named file.
func ReadAll(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	rc, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Aborter is implemented by writers that can discard their data instead of
// committing it on Close.
type Aborter interface {
	Abort() error
}

// WriteFunc opens the named file, lets fn write to it, and closes it. The
// close error (which carries upload failures for remote stores) is returned
// when fn succeeds. When fn fails, writers implementing [Aborter] discard
// what was written.
func WriteFunc(ctx context.Context, fs FileStore, path string, fn func(w io.Writer) error) error {
	wc, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if err := fn(wc); err != nil {
		if a, ok := wc.(Aborter); ok {
			a.Abort()
		} else {
			wc.Close()
		}
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return wc.Close()
}
