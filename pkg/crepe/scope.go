package crepe

import (
	"errors"
	"io"
	"slices"
)

// Scope is an arena of backend resources acquired during one call. Closing
// the scope releases everything tracked, most recent first, except values
// handed back through Keep.
//
// A Scope is used by a single goroutine.
type Scope struct {
	tracked []io.Closer
	closed  bool
}

// Track registers c with s and returns it. Tracking after Close releases c
// immediately.
func Track[T io.Closer](s *Scope, c T) T {
	if s.closed {
		c.Close()
		return c
	}
	s.tracked = append(s.tracked, c)
	return c
}

// Keep removes c from the scope so it survives Close. The caller becomes
// responsible for closing it.
func (s *Scope) Keep(c io.Closer) {
	if i := slices.Index(s.tracked, c); i >= 0 {
		s.tracked = slices.Delete(s.tracked, i, i+1)
	}
}

// Len returns the number of resources still owned by the scope.
func (s *Scope) Len() int {
	return len(s.tracked)
}

// Close releases all tracked resources in reverse acquisition order and
// joins their errors. Close is idempotent.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for i := len(s.tracked) - 1; i >= 0; i-- {
		if err := s.tracked[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.tracked = nil
	return errors.Join(errs...)
}

// Tidy runs fn inside a fresh Scope. Every resource fn tracks is released
// when fn returns, on success or failure, except the returned value, which
// is kept and owned by the caller. If fn fails, or a tracked resource fails
// to release, nothing is kept.
func Tidy[T io.Closer](fn func(s *Scope) (T, error)) (out T, err error) {
	s := &Scope{}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			out.Close()
			var zero T
			out, err = zero, cerr
		}
	}()

	out, err = fn(s)
	if err != nil {
		var zero T
		return zero, err
	}
	s.Keep(out)
	return out, nil
}
