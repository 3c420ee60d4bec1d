// Package resampler converts mono float32 audio from an arbitrary native
// sample rate to the fixed 16 kHz rate the pitch model consumes.
//
// It supports:
//   - Streaming conversion via [Stream], where successive Push calls form one
//     continuous signal with no artifacts at chunk edges
//   - One-shot conversion of a whole buffer via [Resample]
//   - Tail trimming via [Trim] so a batch buffer splits into whole hops
//   - Channel downmixing via [Format.Downmix]
//
// Two engines are available. [EngineSoxr] (the default) is a pure Go port of
// libsoxr. [EnginePolyphase] is a rational polyphase FIR. When the native rate
// already equals the target rate no converter is constructed and Push returns
// a copy of its input.
//
// Example usage:
//
//	s, err := resampler.NewStream(48000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	out, err := s.Push(chunk) // 16 kHz samples
package resampler
