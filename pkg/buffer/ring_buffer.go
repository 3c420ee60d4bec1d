package buffer

import (
	"fmt"
	"io"
	"sync"
)

// RingBuffer is a thread-safe, fixed-capacity sequence that overwrites the
// oldest elements when full. It keeps the most recent Cap() elements in
// insertion order, which makes it suitable for sliding windows over a stream
// and for bounded histories read concurrently by a display.
//
// head and tail are absolute positions; tail-head is the current length and
// never exceeds the capacity.
type RingBuffer[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeErr   error
}

// RingN creates a new RingBuffer with the specified capacity. It panics if
// size is not positive.
func RingN[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic(fmt.Sprintf("buffer: invalid ring size %d", size))
	}
	return &RingBuffer[T]{buf: make([]T, size)}
}

// Add appends a single element. If the buffer is full the oldest element is
// evicted.
func (rb *RingBuffer[T]) Add(t T) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr != nil {
		return fmt.Errorf("buffer: write to closed buffer: %w", rb.closeErr)
	}
	rb.buf[rb.tail%int64(len(rb.buf))] = t
	rb.tail++
	if rb.tail-rb.head > int64(len(rb.buf)) {
		rb.head++
	}
	return nil
}

// Write appends p. When p overflows the capacity, only its trailing Cap()
// elements survive together with whatever older elements still fit.
func (rb *RingBuffer[T]) Write(p []T) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr != nil {
		return 0, fmt.Errorf("buffer: write to closed buffer: %w", rb.closeErr)
	}

	bufsz := int64(len(rb.buf))
	avail := int(bufsz - (rb.tail - rb.head))
	tail := int(rb.tail % bufsz)

	var wn int
	if avail > 0 {
		if tail+avail <= len(rb.buf) {
			wn = copy(rb.buf[tail:tail+avail], p)
		} else {
			wn = copy(rb.buf[tail:], p)
			wn += copy(rb.buf[:avail-wn], p[wn:])
		}
		rb.tail += int64(wn)
	}

	leftn := len(p) - wn
	if leftn == 0 {
		return wn, nil
	}

	// The buffer is full. Of the remaining input only the last len(buf)
	// elements matter: `c` is the part that lands past the current head in
	// this lap and `b` the part that precedes it.
	//
	//  [buffer]
	//   ......
	//   ....bb
	//   cccc
	var cbuf, bbuf []T
	if leftn <= len(rb.buf) {
		cbuf = p[len(p)-leftn:]
	} else {
		cn := leftn % len(rb.buf)
		cbuf = p[len(p)-cn:]
		bbuf = p[len(p)-len(rb.buf) : len(p)-cn]
	}

	head := int(rb.head % bufsz)
	if cp1 := copy(rb.buf[head:], cbuf); cp1 < len(cbuf) {
		// h....t  ->  ccbbcc
		cp2 := copy(rb.buf, cbuf[cp1:])
		copy(rb.buf[cp2:], bbuf)
	} else {
		// h....t  ->  bccccb
		bp1 := copy(rb.buf[head+cp1:], bbuf)
		copy(rb.buf, bbuf[bp1:])
	}

	rb.head += int64(len(cbuf))
	rb.tail += int64(len(cbuf))
	return len(p), nil
}

// Snapshot returns a copy of the buffered elements, oldest first. Later
// writes never alias the returned slice.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.appendLocked(make([]T, 0, rb.tail-rb.head))
}

// AppendTo appends the buffered elements, oldest first, to dst and returns
// the extended slice. Callers reuse dst to snapshot without allocating.
func (rb *RingBuffer[T]) AppendTo(dst []T) []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.appendLocked(dst)
}

func (rb *RingBuffer[T]) appendLocked(dst []T) []T {
	n := int(rb.tail - rb.head)
	if n == 0 {
		return dst
	}
	h := int(rb.head % int64(len(rb.buf)))
	if h+n <= len(rb.buf) {
		return append(dst, rb.buf[h:h+n]...)
	}
	dst = append(dst, rb.buf[h:]...)
	return append(dst, rb.buf[:n-(len(rb.buf)-h)]...)
}

// Last returns the most recently added element.
func (rb *RingBuffer[T]) Last() (t T, ok bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.tail == rb.head {
		return t, false
	}
	return rb.buf[(rb.tail-1)%int64(len(rb.buf))], true
}

// Discard drops the oldest n elements. If n exceeds the length, the buffer
// is emptied.
func (rb *RingBuffer[T]) Discard(n int) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr != nil {
		return fmt.Errorf("buffer: discard from closed buffer: %w", rb.closeErr)
	}
	if n > int(rb.tail-rb.head) {
		rb.head = rb.tail
		return nil
	}
	rb.head += int64(n)
	return nil
}

// Reset discards all elements and zeroes the backing storage so evicted
// values can be collected.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.buf)
	rb.head = 0
	rb.tail = 0
}

// Len returns the number of elements currently in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return int(rb.tail - rb.head)
}

// Cap returns the fixed capacity.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.buf)
}

// Full reports whether Len() == Cap().
func (rb *RingBuffer[T]) Full() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.tail-rb.head == int64(len(rb.buf))
}

// CloseWithError closes the buffer. Subsequent writes return err.
func (rb *RingBuffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closeErr == nil {
		rb.closeErr = err
	}
	return nil
}

// Close is equivalent to CloseWithError(io.ErrClosedPipe).
func (rb *RingBuffer[T]) Close() error {
	return rb.CloseWithError(io.ErrClosedPipe)
}
