// Package buffer provides a generic, thread-safe ring buffer.
//
// A RingBuffer keeps the most recent Cap() elements and silently evicts the
// oldest on overflow. The framer keeps its sample window in one and the
// point sink its bounded history.
//
//	rb := buffer.RingN[float32](1024)
//	rb.Write(chunk)
//	window := rb.AppendTo(scratch[:0])
package buffer
