package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store on BadgerDB v4.
type Badger struct {
	db    *badger.DB
	codec codec
}

// BadgerOptions configures NewBadger.
type BadgerOptions struct {
	Options *Options

	// Dir holds the database files. Required unless InMemory.
	Dir string

	// InMemory keeps everything in memory, for tests.
	InMemory bool

	// Logger receives badger's own log output. Default: slog.Default().
	Logger *slog.Logger
}

// NewBadger opens or creates a database. Badger holds a directory lock, so
// only one process may open Dir at a time.
func NewBadger(o BadgerOptions) (*Badger, error) {
	if !o.InMemory && o.Dir == "" {
		return nil, errors.New("kv: badger dir is required")
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(o.Dir).
		WithInMemory(o.InMemory).
		WithLogger(slogLogger{logger.With("component", "badger")})
	if o.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger %s: %w", o.Dir, err)
	}
	return &Badger{db: db, codec: newCodec(o.Options)}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := b.codec.encode(key)
	if err != nil {
		return nil, err
	}
	var val []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Set(_ context.Context, key Key, value []byte) error {
	k, err := b.codec.encode(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), value)
	})
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	k, err := b.codec.encode(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(k))
	})
}

func (b *Badger) BatchDelete(_ context.Context, keys []Key) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		k, err := b.codec.encode(key)
		if err != nil {
			return err
		}
		if err := wb.Delete([]byte(k)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// scan walks the keys below prefix in one read transaction. fn returns
// false to stop.
func (b *Badger) scan(prefix Key, values bool, fn func(item *badger.Item) bool) error {
	p, err := b.codec.prefix(prefix)
	if err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(p)
		opts.PrefetchValues = values
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if !fn(it.Item()) {
				return nil
			}
		}
		return nil
	})
}

func (b *Badger) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		var stopped bool
		err := b.scan(prefix, true, func(item *badger.Item) bool {
			val, err := item.ValueCopy(nil)
			if err != nil {
				stopped = !yield(Entry{}, err)
				return !stopped
			}
			stopped = !yield(Entry{Key: b.codec.decode(string(item.Key())), Value: val}, nil)
			return !stopped
		})
		if err != nil && !stopped {
			yield(Entry{}, err)
		}
	}
}

func (b *Badger) Keys(_ context.Context, prefix Key) iter.Seq2[Key, error] {
	return func(yield func(Key, error) bool) {
		var stopped bool
		err := b.scan(prefix, false, func(item *badger.Item) bool {
			stopped = !yield(b.codec.decode(string(item.Key())), nil)
			return !stopped
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// slogLogger adapts slog to badger.Logger. Badger's info output is noisy,
// so it goes to debug.
type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Errorf(f string, v ...any)   { s.l.Error(fmt.Sprintf(f, v...)) }
func (s slogLogger) Warningf(f string, v ...any) { s.l.Warn(fmt.Sprintf(f, v...)) }
func (s slogLogger) Infof(f string, v ...any)    { s.l.Debug(fmt.Sprintf(f, v...)) }
func (s slogLogger) Debugf(f string, v ...any)   { s.l.Debug(fmt.Sprintf(f, v...)) }
