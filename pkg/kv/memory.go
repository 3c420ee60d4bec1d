package kv

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Memory is a map-backed Store, safe for concurrent use.
type Memory struct {
	codec codec

	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory store. opts may be nil.
func NewMemory(opts *Options) *Memory {
	return &Memory{codec: newCodec(opts), data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := m.codec.encode(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[k]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	k, err := m.codec.encode(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = slices.Clone(value)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	return m.BatchDelete(ctx, []Key{key})
}

func (m *Memory) BatchDelete(_ context.Context, keys []Key) error {
	enc := make([]string, len(keys))
	for i, key := range keys {
		k, err := m.codec.encode(key)
		if err != nil {
			return err
		}
		enc[i] = k
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range enc {
		delete(m.data, k)
	}
	return nil
}

// matching returns the encoded keys below prefix in order.
func (m *Memory) matching(prefix Key) ([]string, error) {
	p, err := m.codec.prefix(prefix)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range maps.Keys(m.data) {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// List yields a snapshot taken when iteration starts.
func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		keys, err := m.matching(prefix)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, k := range keys {
			m.mu.RLock()
			v, ok := m.data[k]
			m.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(Entry{Key: m.codec.decode(k), Value: slices.Clone(v)}, nil) {
				return
			}
		}
	}
}

func (m *Memory) Keys(_ context.Context, prefix Key) iter.Seq2[Key, error] {
	keys, err := m.matching(prefix)
	if err != nil {
		return errSeq[Key](err)
	}
	return func(yield func(Key, error) bool) {
		for _, k := range keys {
			if !yield(m.codec.decode(k), nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error { return nil }
