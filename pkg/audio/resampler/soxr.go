package resampler

import (
	"slices"

	resampling "github.com/tphakala/go-audio-resampling"
)

// engine32 is the float32 streaming surface of the soxr port.
type engine32 interface {
	Process(in []float32) ([]float32, error)
	Flush() ([]float32, error)
}

// soxr adapts the pure Go soxr port to the converter interface.
type soxr struct {
	srcRate, dstRate int
	r                engine32
}

func newSoxr(srcRate, dstRate int) (*soxr, error) {
	s := &soxr{srcRate: srcRate, dstRate: dstRate}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// process copies the output; the engine may reuse its buffer.
func (s *soxr) process(in []float32) ([]float32, error) {
	out, err := s.r.Process(in)
	return slices.Clone(out), err
}

func (s *soxr) flush() ([]float32, error) {
	return s.r.Flush()
}

func (s *soxr) reset() error {
	r, err := resampling.NewEngineFloat32(float64(s.srcRate), float64(s.dstRate), resampling.QualityHigh)
	if err != nil {
		return err
	}
	s.r = r
	return nil
}
