// Package kv is the small key-value layer under the model cache and the
// session recorder. Keys are paths of string segments joined with a
// separator byte (':' by default), so a session's points share the prefix
// Key{"points", id} and can be listed in index order.
//
// [Badger] persists to disk. [Memory] backs tests.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned when a key is empty or a segment contains
	// the separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Key is a hierarchical path, e.g. Key{"points", "<session>", "000000000042"}.
type Key []string

// String joins the segments with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key with its value.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path keys. Implementations copy values
// on the way in and out.
type Store interface {
	// Get returns ErrNotFound if key is not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	Set(ctx context.Context, key Key, value []byte) error

	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key Key) error

	// List yields every entry strictly below prefix, ordered by encoded
	// key. A nil prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Keys is List without values.
	Keys(ctx context.Context, prefix Key) iter.Seq2[Key, error]

	// BatchDelete removes keys in one write.
	BatchDelete(ctx context.Context, keys []Key) error

	Close() error
}

// DefaultSeparator joins key segments unless Options says otherwise.
const DefaultSeparator byte = ':'

// Options configures key encoding. A nil *Options is valid.
type Options struct {
	Separator byte
}

// codec encodes keys for one store.
type codec struct {
	sep byte
}

func newCodec(o *Options) codec {
	if o != nil && o.Separator != 0 {
		return codec{sep: o.Separator}
	}
	return codec{sep: DefaultSeparator}
}

func (c codec) encode(k Key) (string, error) {
	if len(k) == 0 {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, seg := range k {
		if strings.IndexByte(seg, c.sep) >= 0 {
			return "", fmt.Errorf("%w: segment %q contains separator %q", ErrInvalidKey, seg, c.sep)
		}
	}
	return strings.Join(k, string(c.sep)), nil
}

// prefix returns the encoded form every key below p starts with. The
// trailing separator keeps "session" from matching "sessions:...".
func (c codec) prefix(p Key) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	s, err := c.encode(p)
	if err != nil {
		return "", err
	}
	return s + string(c.sep), nil
}

func (c codec) decode(s string) Key {
	return strings.Split(s, string(c.sep))
}

// errSeq yields a single error.
func errSeq[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
