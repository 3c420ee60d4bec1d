// Package wav reads and writes WAV files as float32 samples.
//
// Decoding is done by github.com/go-audio/wav. Integer PCM of 8, 16, 24 and
// 32 bits and 32-bit IEEE float are supported; multi-channel audio is
// downmixed to mono by averaging.
package wav

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/haivivi/pitchscope/pkg/audio/resampler"
)

// WAVE format tags.
const (
	formatPCM   = 1
	formatFloat = 3
)

// ErrFormat reports a file that is not a WAV file or uses an unsupported
// encoding.
var ErrFormat = errors.New("wav: unsupported format")

// Audio is a decoded file.
type Audio struct {
	// Samples is mono, in [-1, 1].
	Samples []float32

	Rate     int
	Channels int // channels in the file, before downmix
	BitDepth int
}

// Duration returns the length of the audio in seconds.
func (a *Audio) Duration() float64 {
	if a.Rate == 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.Rate)
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Decode reads a whole WAV stream.
func Decode(r io.ReadSeeker) (*Audio, error) {
	d := gowav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrFormat)
	}

	depth := int(d.BitDepth)
	switch d.WavAudioFormat {
	case formatPCM:
		if depth != 8 && depth != 16 && depth != 24 && depth != 32 {
			return nil, fmt.Errorf("%w: %d-bit PCM", ErrFormat, depth)
		}
	case formatFloat:
		if depth != 32 {
			return nil, fmt.Errorf("%w: %d-bit float", ErrFormat, depth)
		}
	default:
		return nil, fmt.Errorf("%w: format tag %d", ErrFormat, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav: read samples: %w", err)
	}

	var interleaved []float32
	if d.WavAudioFormat == formatFloat {
		interleaved = floatSamples(buf)
	} else {
		interleaved = intSamples(buf, depth)
	}

	channels := int(d.NumChans)
	f := resampler.Format{SampleRate: int(d.SampleRate), Channels: channels}
	return &Audio{
		Samples:  f.Downmix(interleaved),
		Rate:     int(d.SampleRate),
		Channels: channels,
		BitDepth: depth,
	}, nil
}

// intSamples scales integer PCM to [-1, 1]. 8-bit WAV is unsigned.
func intSamples(buf *audio.IntBuffer, depth int) []float32 {
	out := make([]float32, len(buf.Data))
	if depth == 8 {
		for i, v := range buf.Data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := 1 / math.Exp2(float64(depth-1))
	for i, v := range buf.Data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// floatSamples recovers IEEE floats from the raw 32-bit words the decoder
// returns as ints.
func floatSamples(buf *audio.IntBuffer) []float32 {
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = math.Float32frombits(uint32(int32(v)))
	}
	return out
}

// Encode writes mono samples as 16-bit PCM. Samples outside [-1, 1] are
// clipped.
func Encode(w io.WriteSeeker, samples []float32, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("wav: invalid rate %d", rate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(max(-32768, min(32767, v)))
	}

	e := gowav.NewEncoder(w, rate, 16, 1, formatPCM)
	if err := e.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	if err := e.Close(); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	return nil
}

// WriteFile writes mono samples to path as 16-bit PCM.
func WriteFile(path string, samples []float32, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, samples, rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
