package resampler

// Format describes interleaved float32 audio handed to the resampler.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 44100, 48000).
	SampleRate int

	// Channels is the interleaved channel count. Zero means mono.
	Channels int
}

func (f Format) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}

// Downmix averages interleaved channels into a mono signal. Mono input is
// returned as-is. A trailing partial frame is dropped.
func (f Format) Downmix(interleaved []float32) []float32 {
	n := f.channels()
	if n == 1 {
		return interleaved
	}
	frames := len(interleaved) / n
	out := make([]float32, frames)
	scale := 1 / float32(n)
	for i := range frames {
		var sum float32
		for _, s := range interleaved[i*n : i*n+n] {
			sum += s
		}
		out[i] = sum * scale
	}
	return out
}
