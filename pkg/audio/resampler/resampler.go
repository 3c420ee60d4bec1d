package resampler

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// TargetRate is the sample rate every Stream converts to by default.
const TargetRate = 16000

// ErrUnavailable reports that no converter could be initialized for a rate
// pair. Callers must not fall back to un-resampled audio.
var ErrUnavailable = errors.New("resampler: unavailable")

// Engine selects the conversion algorithm.
type Engine string

const (
	// EngineSoxr is the pure Go port of the SoX Resampler.
	EngineSoxr Engine = "soxr"

	// EnginePolyphase is a rational polyphase FIR resampler.
	EnginePolyphase Engine = "polyphase"
)

// ParseEngine maps a config string to an Engine. The empty string selects
// the default engine.
func ParseEngine(s string) (Engine, error) {
	switch Engine(s) {
	case "", EngineSoxr:
		return EngineSoxr, nil
	case EnginePolyphase:
		return EnginePolyphase, nil
	}
	return "", fmt.Errorf("%w: unknown engine %q", ErrUnavailable, s)
}

// converter is the stateful core shared by both engines.
type converter interface {
	process(in []float32) ([]float32, error)
	flush() ([]float32, error)
	reset() error
}

// Option configures a Stream.
type Option func(*options)

type options struct {
	engine     Engine
	targetRate int
}

// WithEngine selects the conversion engine. Default: [EngineSoxr].
func WithEngine(e Engine) Option {
	return func(o *options) {
		if e != "" {
			o.engine = e
		}
	}
}

// WithTargetRate overrides the output rate. Default: [TargetRate].
func WithTargetRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.targetRate = rate
		}
	}
}

// Stream converts successive mono chunks from a native rate to the target
// rate. The converter keeps filter history across calls, so chunk boundaries
// do not introduce discontinuities. After Flush the total output length is
// exactly floor(in*dstRate/srcRate), however the input was chunked.
//
// Stream is safe for concurrent use, though a capture source normally drives
// it from a single goroutine.
type Stream struct {
	srcRate     int
	dstRate     int
	engine      Engine
	passthrough bool

	mu       sync.Mutex
	conv     converter
	in, out  int64 // samples consumed and produced since the last reset
	closeErr error
}

// NewStream creates a Stream converting from nativeRate. It returns an error
// wrapping [ErrUnavailable] if the rate is invalid or the engine cannot be
// constructed for the rate pair.
func NewStream(nativeRate int, opts ...Option) (*Stream, error) {
	o := options{engine: EngineSoxr, targetRate: TargetRate}
	for _, opt := range opts {
		opt(&o)
	}
	if nativeRate <= 0 {
		return nil, fmt.Errorf("%w: invalid native rate %d", ErrUnavailable, nativeRate)
	}

	s := &Stream{
		srcRate: nativeRate,
		dstRate: o.targetRate,
		engine:  o.engine,
	}
	if nativeRate == o.targetRate {
		s.passthrough = true
		return s, nil
	}

	var (
		conv converter
		err  error
	)
	switch o.engine {
	case EngineSoxr:
		conv, err = newSoxr(nativeRate, o.targetRate)
	case EnginePolyphase:
		conv, err = newPolyphase(nativeRate, o.targetRate)
	default:
		err = fmt.Errorf("unknown engine %q", o.engine)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %d -> %d Hz: %v", ErrUnavailable, nativeRate, o.targetRate, err)
	}
	s.conv = conv
	return s, nil
}

// SourceRate returns the native input rate.
func (s *Stream) SourceRate() int { return s.srcRate }

// Rate returns the output rate.
func (s *Stream) Rate() int { return s.dstRate }

// Passthrough reports whether the stream is the identity path, with no
// converter constructed.
func (s *Stream) Passthrough() bool { return s.passthrough }

// Push converts one chunk and returns the samples produced so far at the
// target rate. The returned slice is owned by the caller. A converter may
// return fewer samples than the rate ratio implies while its filter fills.
func (s *Stream) Push(chunk []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeErr != nil {
		return nil, s.closeErr
	}
	if s.passthrough {
		out := make([]float32, len(chunk))
		copy(out, chunk)
		return out, nil
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	out, err := s.conv.process(chunk)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	s.in += int64(len(chunk))
	s.out += int64(len(out))
	return out, nil
}

// expected returns the output length owed for the input consumed so far.
func (s *Stream) expected() int64 {
	return s.in * int64(s.dstRate) / int64(s.srcRate)
}

// Flush drains samples still held by the converter at end of input. The
// tail is cut or zero-padded so the stream's total output matches the
// input length at the target rate. The identity path has nothing to flush.
func (s *Stream) Flush() ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeErr != nil {
		return nil, s.closeErr
	}
	if s.passthrough {
		return nil, nil
	}
	tail, err := s.conv.flush()
	if err != nil {
		return nil, fmt.Errorf("resampler: flush: %w", err)
	}
	owed := max(s.expected()-s.out, 0)
	if int64(len(tail)) > owed {
		tail = tail[:owed]
	} else if pad := owed - int64(len(tail)); pad > 0 {
		tail = append(tail, make([]float32, pad)...)
	}
	s.out += int64(len(tail))
	if len(tail) == 0 {
		return nil, nil
	}
	return tail, nil
}

// Reset discards converter history so the next Push starts a new signal.
func (s *Stream) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passthrough || s.closeErr != nil {
		return nil
	}
	if err := s.conv.reset(); err != nil {
		return fmt.Errorf("%w: reset: %v", ErrUnavailable, err)
	}
	s.in, s.out = 0, 0
	return nil
}

// Close releases the converter. Subsequent Push calls return
// io.ErrClosedPipe. Close is idempotent.
func (s *Stream) Close() error {
	return s.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError releases the converter with a custom error returned by
// subsequent calls.
func (s *Stream) CloseWithError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		s.closeErr = err
	}
	s.conv = nil
	return nil
}

func toFloat32(in []float64) []float32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
