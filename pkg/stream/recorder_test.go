package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/pitchscope/pkg/kv"
)

func TestRecorderRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory(nil)

	rec, err := NewRecorder(ctx, store, Session{Backend: "kernel", Model: "tiny", SourceRate: 48000}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID() == "" {
		t.Fatal("empty session id")
	}
	for i := range 12 {
		if err := rec.Record(ctx, Point{Idx: int64(i), PitchHz: 100 + float64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := rec.Record(ctx, Point{Idx: 12}); err == nil {
		t.Fatal("Record after Close succeeded")
	}

	s, points, err := LoadSession(ctx, store, rec.ID())
	if err != nil {
		t.Fatal(err)
	}
	if s.Backend != "kernel" || s.Model != "tiny" || s.SourceRate != 48000 || s.Points != 12 {
		t.Fatalf("session = %+v", s)
	}
	if s.Started.IsZero() || s.Ended.Before(s.Started) {
		t.Fatalf("session times = %v .. %v", s.Started, s.Ended)
	}
	if len(points) != 12 {
		t.Fatalf("points = %d, want 12", len(points))
	}
	for i, p := range points {
		if p.Idx != int64(i) || p.PitchHz != 100+float64(i) {
			t.Fatalf("point %d = %+v", i, p)
		}
	}
}

func TestSessionsAndDelete(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory(nil)

	ids := map[string]bool{}
	for range 3 {
		rec, err := NewRecorder(ctx, store, Session{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := rec.Record(ctx, Point{Idx: 0}); err != nil {
			t.Fatal(err)
		}
		ids[rec.ID()] = true
	}

	list, err := Sessions(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("sessions = %d, want 3", len(list))
	}
	for i, s := range list {
		if !ids[s.ID] {
			t.Fatalf("unexpected session %q", s.ID)
		}
		if i > 0 && list[i-1].ID > s.ID {
			t.Fatalf("sessions not ordered by id")
		}
	}

	victim := list[0].ID
	if err := DeleteSession(ctx, store, victim); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadSession(ctx, store, victim); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("LoadSession after delete: %v, want ErrSessionNotFound", err)
	}
	for _, err := range store.List(ctx, kv.Key{"points", victim}) {
		if err != nil {
			t.Fatal(err)
		}
		t.Fatal("points left behind after delete")
	}
	if list, _ := Sessions(ctx, store); len(list) != 2 {
		t.Fatalf("sessions after delete = %d, want 2", len(list))
	}
}

func TestSessionNotFound(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory(nil)
	if _, _, err := LoadSession(ctx, store, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("LoadSession: %v", err)
	}
	if err := DeleteSession(ctx, store, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("DeleteSession: %v", err)
	}
}
