package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/pitchscope/pkg/kv"
)

// Session describes one recorded live run.
type Session struct {
	ID         string    `msgpack:"id" json:"id" yaml:"id"`
	Started    time.Time `msgpack:"started" json:"started" yaml:"started"`
	Ended      time.Time `msgpack:"ended,omitempty" json:"ended,omitzero" yaml:"ended,omitempty"`
	Backend    string    `msgpack:"backend" json:"backend" yaml:"backend"`
	Model      string    `msgpack:"model" json:"model" yaml:"model"`
	SourceRate int       `msgpack:"source_rate" json:"sourceRate" yaml:"source_rate"`
	Points     int64     `msgpack:"points" json:"points" yaml:"points"`
}

// Key layout:
//
//	session:<id>             -> Session
//	points:<id>:<idx %012d>  -> Point
func sessionKey(id string) kv.Key { return kv.Key{"session", id} }

func pointKey(id string, idx int64) kv.Key {
	return kv.Key{"points", id, fmt.Sprintf("%012d", idx)}
}

// Recorder persists the points of one session to a kv store.
type Recorder struct {
	store  kv.Store
	logger *slog.Logger

	mu      sync.Mutex
	session Session
	closed  bool
}

// NewRecorder creates a session with a fresh id and stores its metadata.
// Started is set to now when zero.
func NewRecorder(ctx context.Context, store kv.Store, meta Session, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	meta.ID = uuid.NewString()
	if meta.Started.IsZero() {
		meta.Started = time.Now()
	}
	r := &Recorder{store: store, logger: logger, session: meta}
	if err := r.saveMeta(ctx); err != nil {
		return nil, err
	}
	logger.Info("recording session", "id", meta.ID)
	return r, nil
}

// ID returns the session id.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.ID
}

// Record stores p.
func (r *Recorder) Record(ctx context.Context, p Point) error {
	data, err := msgpack.Marshal(&p)
	if err != nil {
		return fmt.Errorf("stream: encode point: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("stream: recorder is closed")
	}
	if err := r.store.Set(ctx, pointKey(r.session.ID, p.Idx), data); err != nil {
		return fmt.Errorf("stream: record point: %w", err)
	}
	r.session.Points++
	return nil
}

// Close stamps the end time and point count. Close is idempotent.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.session.Ended = time.Now()
	return r.saveMetaLocked(ctx)
}

func (r *Recorder) saveMeta(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveMetaLocked(ctx)
}

func (r *Recorder) saveMetaLocked(ctx context.Context) error {
	data, err := msgpack.Marshal(&r.session)
	if err != nil {
		return fmt.Errorf("stream: encode session: %w", err)
	}
	if err := r.store.Set(ctx, sessionKey(r.session.ID), data); err != nil {
		return fmt.Errorf("stream: save session: %w", err)
	}
	return nil
}

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("stream: session not found")

// Sessions lists recorded sessions ordered by id.
func Sessions(ctx context.Context, store kv.Store) ([]Session, error) {
	var out []Session
	for e, err := range store.List(ctx, kv.Key{"session"}) {
		if err != nil {
			return nil, err
		}
		var s Session
		if err := msgpack.Unmarshal(e.Value, &s); err != nil {
			return nil, fmt.Errorf("stream: decode session %s: %w", e.Key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadSession returns a session and its points in idx order.
func LoadSession(ctx context.Context, store kv.Store, id string) (Session, []Point, error) {
	var s Session
	data, err := store.Get(ctx, sessionKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return s, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return s, nil, err
	}
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return s, nil, fmt.Errorf("stream: decode session %s: %w", id, err)
	}

	var points []Point
	for e, err := range store.List(ctx, kv.Key{"points", id}) {
		if err != nil {
			return s, nil, err
		}
		var p Point
		if err := msgpack.Unmarshal(e.Value, &p); err != nil {
			return s, nil, fmt.Errorf("stream: decode point %s: %w", e.Key, err)
		}
		points = append(points, p)
	}
	return s, points, nil
}

// DeleteSession removes a session and its points.
func DeleteSession(ctx context.Context, store kv.Store, id string) error {
	if _, err := store.Get(ctx, sessionKey(id)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return err
	}
	keys := []kv.Key{sessionKey(id)}
	for k, err := range store.Keys(ctx, kv.Key{"points", id}) {
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	return store.BatchDelete(ctx, keys)
}
