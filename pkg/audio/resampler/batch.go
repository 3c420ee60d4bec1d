package resampler

import "fmt"

// Resample converts a whole mono buffer from nativeRate in one pass and
// flushes the converter tail. A buffer already at the target rate is
// returned as a copy.
func Resample(samples []float32, nativeRate int, opts ...Option) ([]float32, error) {
	s, err := NewStream(nativeRate, opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	out, err := s.Push(samples)
	if err != nil {
		return nil, err
	}
	tail, err := s.Flush()
	if err != nil {
		return nil, err
	}
	return append(out, tail...), nil
}

// Trim drops tail samples so that (len - frameSize) is a whole number of
// hops. Buffers shorter than one frame hold no frames and are returned
// unchanged.
func Trim(samples []float32, frameSize, hop int) ([]float32, error) {
	if frameSize <= 0 || hop <= 0 {
		return nil, fmt.Errorf("resampler: invalid framing %d/%d", frameSize, hop)
	}
	if len(samples) < frameSize {
		return samples, nil
	}
	n := frameSize + (len(samples)-frameSize)/hop*hop
	return samples[:n], nil
}
