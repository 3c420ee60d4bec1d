package stream

import (
	"sync"

	"github.com/haivivi/pitchscope/pkg/buffer"
)

// Sink is the bounded, ordered store of emitted points. It keeps the most
// recent Cap() points and assigns each appended point the next idx.
//
// A Sink is safe for concurrent use. Readers never observe a partially
// written Point.
type Sink struct {
	mu     sync.Mutex
	points *buffer.RingBuffer[Point]
	next   int64
	subs   map[int]chan Point
	nextID int
}

// NewSink creates a Sink holding up to capacity points. A non-positive
// capacity selects DefaultCapacity.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		points: buffer.RingN[Point](capacity),
		subs:   make(map[int]chan Point),
	}
}

// Append stores p with the next idx, evicting the oldest point when full,
// and returns the stored point.
//
// Subscribers receive the point without blocking; a subscriber whose
// buffer is full misses it.
func (s *Sink) Append(p Point) Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Idx = s.next
	s.next++
	s.points.Add(p)

	for _, ch := range s.subs {
		select {
		case ch <- p:
		default:
		}
	}
	return p
}

// Snapshot returns a copy of the stored points, oldest first.
func (s *Sink) Snapshot() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points.Snapshot()
}

// Last returns the most recent point.
func (s *Sink) Last() (Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points.Last()
}

// Reset clears all points and restarts idx at 0.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points.Reset()
	s.next = 0
}

// NextIdx returns the idx the next appended point will get.
func (s *Sink) NextIdx() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Len returns the number of stored points.
func (s *Sink) Len() int {
	return s.points.Len()
}

// Cap returns the capacity.
func (s *Sink) Cap() int {
	return s.points.Cap()
}

// Subscribe registers a channel that receives every point appended from
// now on. buf sets the channel buffer (minimum 1). The returned cancel
// function unregisters and closes the channel; it may be called more than
// once.
func (s *Sink) Subscribe(buf int) (<-chan Point, func()) {
	_, ch, cancel := s.subscribe(buf, false)
	return ch, cancel
}

// Follow is Subscribe with the stored points taken under the same lock.
// The channel carries exactly the points appended after the snapshot, so
// a reader needs no idx bookkeeping, including across Reset.
func (s *Sink) Follow(buf int) ([]Point, <-chan Point, func()) {
	return s.subscribe(buf, true)
}

func (s *Sink) subscribe(buf int, snapshot bool) ([]Point, <-chan Point, func()) {
	ch := make(chan Point, max(buf, 1))

	s.mu.Lock()
	var points []Point
	if snapshot {
		points = s.points.Snapshot()
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return points, ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}
