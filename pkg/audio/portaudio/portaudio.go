// Package portaudio captures microphone audio through the PortAudio C
// library.
//
// Capture reads float32 samples at the device's native rate and delivers
// mono chunks to a callback; resampling is left to the caller.
//
// Requires PortAudio via pkg-config (brew install portaudio, or
// apt install portaudio19-dev).
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>

// PaStream is opaque; pass it around as void*.
static PaError pa_open_input(void **stream, const PaStreamParameters *in,
                             double rate, unsigned long frames) {
    return Pa_OpenStream((PaStream**)stream, in, NULL, rate, frames,
                         paClipOff, NULL, NULL);
}

static PaError pa_start_stream(void *stream) { return Pa_StartStream((PaStream*)stream); }
static PaError pa_stop_stream(void *stream)  { return Pa_StopStream((PaStream*)stream); }
static PaError pa_abort_stream(void *stream) { return Pa_AbortStream((PaStream*)stream); }
static PaError pa_close_stream(void *stream) { return Pa_CloseStream((PaStream*)stream); }

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}

static double pa_stream_rate(void *stream) {
    const PaStreamInfo *info = Pa_GetStreamInfo((PaStream*)stream);
    return info ? info->sampleRate : 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// ErrNoDevice is returned when no input device is available.
var ErrNoDevice = errors.New("portaudio: no input device")

var (
	initOnce sync.Once
	initErr  error
)

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return fmt.Errorf("portaudio: %s", C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library. It is safe to call multiple
// times; only the first call has an effect.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate releases the PortAudio library. Call it once at process exit,
// after every Capture is closed.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// DeviceInfo describes an input-capable device.
type DeviceInfo struct {
	Index             int     `json:"index" yaml:"index"`
	Name              string  `json:"name" yaml:"name"`
	HostAPI           string  `json:"hostApi" yaml:"host_api"`
	MaxInputChannels  int     `json:"maxInputChannels" yaml:"max_input_channels"`
	DefaultSampleRate float64 `json:"defaultSampleRate" yaml:"default_sample_rate"`
	LowInputLatency   float64 `json:"lowInputLatency" yaml:"low_input_latency"`
	IsDefault         bool    `json:"isDefault" yaml:"is_default"`
}

func deviceInfo(idx C.PaDeviceIndex, def C.PaDeviceIndex) (DeviceInfo, bool) {
	info := C.Pa_GetDeviceInfo(idx)
	if info == nil || info.maxInputChannels <= 0 {
		return DeviceInfo{}, false
	}
	d := DeviceInfo{
		Index:             int(idx),
		Name:              C.GoString(info.name),
		MaxInputChannels:  int(info.maxInputChannels),
		DefaultSampleRate: float64(info.defaultSampleRate),
		LowInputLatency:   float64(info.defaultLowInputLatency),
		IsDefault:         idx == def,
	}
	if api := C.Pa_GetHostApiInfo(info.hostApi); api != nil {
		d.HostAPI = C.GoString(api.name)
	}
	return d, true
}

// InputDevices lists devices with at least one input channel.
func InputDevices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}
	def := C.Pa_GetDefaultInputDevice()

	var out []DeviceInfo
	for i := range count {
		if d, ok := deviceInfo(C.PaDeviceIndex(i), def); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// DefaultInputDevice returns the default input device.
func DefaultInputDevice() (DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return DeviceInfo{}, err
	}
	def := C.Pa_GetDefaultInputDevice()
	if def == C.paNoDevice {
		return DeviceInfo{}, ErrNoDevice
	}
	d, ok := deviceInfo(def, def)
	if !ok {
		return DeviceInfo{}, ErrNoDevice
	}
	return d, nil
}

// inputStream is an open blocking-read input stream with a C-side buffer
// of float32 samples.
type inputStream struct {
	stream   unsafe.Pointer
	buffer   unsafe.Pointer
	frames   int
	channels int
	rate     float64
}

func openInput(dev DeviceInfo, channels int, rate float64, frames int) (*inputStream, error) {
	params := C.PaStreamParameters{
		device:                    C.PaDeviceIndex(dev.Index),
		channelCount:              C.int(channels),
		sampleFormat:              C.paFloat32,
		suggestedLatency:          C.PaTime(dev.LowInputLatency),
		hostApiSpecificStreamInfo: nil,
	}
	var s unsafe.Pointer
	if err := paError(C.pa_open_input(&s, &params, C.double(rate), C.ulong(frames))); err != nil {
		return nil, fmt.Errorf("%w (device %d %q at %.0f Hz)", err, dev.Index, dev.Name, rate)
	}

	actual := float64(C.pa_stream_rate(s))
	if actual <= 0 {
		actual = rate
	}
	return &inputStream{
		stream:   s,
		buffer:   C.calloc(C.size_t(frames*channels), C.size_t(unsafe.Sizeof(C.float(0)))),
		frames:   frames,
		channels: channels,
		rate:     actual,
	}, nil
}

func (s *inputStream) start() error { return paError(C.pa_start_stream(s.stream)) }

func (s *inputStream) stop() error { return paError(C.pa_stop_stream(s.stream)) }

// read blocks for one buffer and appends its interleaved samples to dst.
// An input overflow is reported but the samples are still returned.
func (s *inputStream) read(dst []float32) ([]float32, bool, error) {
	code := C.pa_read_stream(s.stream, s.buffer, C.ulong(s.frames))
	overflow := code == C.paInputOverflowed
	if code != C.paNoError && !overflow {
		return dst, false, paError(code)
	}
	src := unsafe.Slice((*float32)(s.buffer), s.frames*s.channels)
	return append(dst, src...), overflow, nil
}

func (s *inputStream) close() error {
	C.pa_abort_stream(s.stream)
	err := paError(C.pa_close_stream(s.stream))
	C.free(s.buffer)
	s.buffer = nil
	return err
}
