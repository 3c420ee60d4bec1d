// Package audio groups the audio input sub-packages of pitchscope:
//
//   - portaudio: microphone capture at the device's native rate
//   - resampler: streaming and batch conversion to 16 kHz mono
//   - wav: float32 WAV decoding and encoding
//
// All of them exchange mono float32 samples in [-1, 1].
//
//	audio, err := wav.ReadFile("take1.wav")
//	if err != nil {
//	    return err
//	}
//	samples, err := resampler.Resample(audio.Samples, audio.Rate)
package audio
