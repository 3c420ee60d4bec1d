package stream

import (
	"fmt"
	"iter"

	"github.com/haivivi/pitchscope/pkg/buffer"
	"github.com/haivivi/pitchscope/pkg/crepe"
)

// Framer cuts a continuous sample stream into overlapping frames.
//
// Frame k covers stream samples [k*hop, k*hop+frameSize). The first frame
// is emitted once frameSize samples have arrived and one more after every
// further hop samples, independent of how the input is chunked.
type Framer struct {
	frameSize int
	hop       int
	window    *buffer.RingBuffer[float32]
	total     int64 // samples consumed
	next      int64 // total at which the next frame ends
	idx       int64 // index of the next frame
}

// NewFramer returns a Framer. It panics if frameSize or hop is not
// positive.
func NewFramer(frameSize, hop int) *Framer {
	if frameSize <= 0 || hop <= 0 {
		panic(fmt.Sprintf("stream: invalid framing %d/%d", frameSize, hop))
	}
	return &Framer{
		frameSize: frameSize,
		hop:       hop,
		window:    buffer.RingN[float32](frameSize),
		next:      int64(frameSize),
	}
}

// Push consumes samples and calls emit for every frame completed, in order.
// Each frame is a fresh copy the callee may keep.
func (f *Framer) Push(samples []float32, emit func(idx int64, frame crepe.Frame)) {
	for len(samples) > 0 {
		n := int(min(f.next-f.total, int64(len(samples))))
		f.window.Write(samples[:n])
		f.total += int64(n)
		samples = samples[n:]

		if f.total == f.next {
			frame := f.window.AppendTo(make(crepe.Frame, 0, f.frameSize))
			emit(f.idx, frame)
			f.idx++
			f.next += int64(f.hop)
		}
	}
}

// Reset discards the window and restarts frame numbering.
func (f *Framer) Reset() {
	f.window.Reset()
	f.total = 0
	f.next = int64(f.frameSize)
	f.idx = 0
}

// Emitted returns the number of frames emitted since creation or Reset.
func (f *Framer) Emitted() int64 {
	return f.idx
}

// Count returns the number of frames a stream of n samples yields.
func Count(n, frameSize, hop int) int {
	if n < frameSize || frameSize <= 0 || hop <= 0 {
		return 0
	}
	return (n-frameSize)/hop + 1
}

// Frames yields the frames of a complete buffer with their indexes. The
// frames alias samples; a consumer that keeps one must copy it.
func Frames(samples []float32, frameSize, hop int) iter.Seq2[int, crepe.Frame] {
	return func(yield func(int, crepe.Frame) bool) {
		for k := range Count(len(samples), frameSize, hop) {
			start := k * hop
			if !yield(k, crepe.Frame(samples[start:start+frameSize])) {
				return
			}
		}
	}
}
