// Package stream turns audio into a live sequence of pitch points.
//
// The data path is
//
//	Source -> resampler.Stream -> Framer -> Scheduler -> crepe.Adapter
//	       -> pitch.Decode -> Sink
//
// The producer side (resampling, framing, admission) runs synchronously on
// the capture callback and never blocks. At most one frame is in inference
// at a time; frames produced while it runs are dropped, so latency stays
// bounded by one inference regardless of backend speed.
//
// [Pipeline] owns every piece of state. [Batch] runs the same framing over
// a whole buffer without dropping.
package stream

import (
	"github.com/haivivi/pitchscope/pkg/crepe"
)

// DefaultCapacity is the number of points a Sink keeps by default.
const DefaultCapacity = 100

// Point is one decoded pitch observation.
type Point struct {
	// Idx is assigned by the Sink: 0, 1, 2, ... with no gaps for dropped
	// frames.
	Idx int64 `json:"idx" msgpack:"idx"`

	PitchHz    float64 `json:"pitchHz" msgpack:"hz"`
	PitchCents float64 `json:"pitchCents" msgpack:"cents"`
	PitchNote  string  `json:"pitchNote" msgpack:"note"`
	Confidence float64 `json:"confidence" msgpack:"conf"`

	// TimestampMs is the frame start on the sample clock.
	TimestampMs float64 `json:"timestampMs" msgpack:"ts"`

	// LatencyMs is the wall time from admission to decode.
	LatencyMs float64 `json:"latencyMs" msgpack:"lat"`
}

// frameTimeMs returns the start time of frame idx in milliseconds.
func frameTimeMs(idx int64, hop int) float64 {
	return float64(idx*int64(hop)) * 1000 / crepe.SampleRate
}
