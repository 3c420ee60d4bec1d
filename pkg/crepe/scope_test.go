package crepe

import (
	"errors"
	"testing"
)

type resource struct {
	name   string
	closed int
	log    *[]string
	err    error
}

func (r *resource) Close() error {
	r.closed++
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	return r.err
}

func TestScopeCloseOrder(t *testing.T) {
	var log []string
	s := &Scope{}
	Track(s, &resource{name: "a", log: &log})
	Track(s, &resource{name: "b", log: &log})
	Track(s, &resource{name: "c", log: &log})
	if s.Len() != 3 {
		t.Fatalf("Len = %d", s.Len())
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if len(log) != 3 || log[0] != "c" || log[1] != "b" || log[2] != "a" {
		t.Errorf("close order = %v", log)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(log) != 3 {
		t.Errorf("second Close released again: %v", log)
	}
}

func TestScopeTrackAfterClose(t *testing.T) {
	s := &Scope{}
	s.Close()
	r := Track(s, &resource{})
	if r.closed != 1 {
		t.Errorf("late resource closed %d times, want 1", r.closed)
	}
}

func TestTidyKeepsOutput(t *testing.T) {
	var temps []*resource
	out, err := Tidy(func(s *Scope) (*resource, error) {
		for range 3 {
			temps = append(temps, Track(s, &resource{}))
		}
		return Track(s, &resource{name: "out"}), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range temps {
		if r.closed != 1 {
			t.Errorf("temp %d closed %d times", i, r.closed)
		}
	}
	if out.closed != 0 {
		t.Error("kept output was released")
	}
}

func TestTidyReleasesOnError(t *testing.T) {
	var tracked []*resource
	boom := errors.New("boom")
	out, err := Tidy(func(s *Scope) (*resource, error) {
		tracked = append(tracked, Track(s, &resource{}))
		tracked = append(tracked, Track(s, &resource{}))
		return tracked[1], boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if out != nil {
		t.Error("output returned on error")
	}
	for i, r := range tracked {
		if r.closed != 1 {
			t.Errorf("resource %d closed %d times", i, r.closed)
		}
	}
}

func TestTidyReleaseError(t *testing.T) {
	relErr := errors.New("release failed")
	var kept *resource
	out, err := Tidy(func(s *Scope) (*resource, error) {
		Track(s, &resource{err: relErr})
		kept = Track(s, &resource{})
		return kept, nil
	})
	if !errors.Is(err, relErr) {
		t.Fatalf("err = %v", err)
	}
	if out != nil || kept.closed != 1 {
		t.Errorf("output should be released when a temporary fails to close")
	}
}
