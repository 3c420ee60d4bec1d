package stream

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestReplayFast(t *testing.T) {
	samples := ramp(1050)
	r := NewReplay(samples, 16000, 100)
	r.Fast = true

	var (
		mu  sync.Mutex
		got []float32
	)
	if err := r.Start(func(chunk []float32) {
		mu.Lock()
		got = append(got, chunk...)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, samples) {
		t.Fatalf("delivered %d samples, want %d in order", len(got), len(samples))
	}
}

func TestReplayStopEarly(t *testing.T) {
	r := NewReplay(make([]float32, 16000*60), 16000, 0)
	if r.Rate() != 16000 {
		t.Fatalf("Rate() = %d", r.Rate())
	}
	var calls int
	if err := r.Start(func([]float32) { calls++ }); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(func([]float32) {}); err == nil {
		t.Fatal("second Start succeeded")
	}

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("Stop took %v", d)
	}
	n := calls
	time.Sleep(30 * time.Millisecond)
	if calls != n {
		t.Fatal("chunks delivered after Stop")
	}
	if n >= 6000 {
		t.Fatalf("calls = %d, replay was not paced", n)
	}
}

func TestReplayStopBeforeStart(t *testing.T) {
	r := NewReplay(nil, 8000, 0)
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if r.Done() != nil {
		t.Fatal("Done() non-nil before Start")
	}
}

func TestReplayOnEnd(t *testing.T) {
	r := NewReplay(ramp(1050), 16000, 100)
	r.Fast = true

	var (
		mu        sync.Mutex
		delivered int
		atEnd     = -1
		ends      int
	)
	r.OnEnd(func() {
		mu.Lock()
		defer mu.Unlock()
		ends++
		atEnd = delivered
	})
	if err := r.Start(func(chunk []float32) {
		mu.Lock()
		delivered += len(chunk)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}
	<-r.Done()
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	if ends != 1 || atEnd != 1050 {
		t.Fatalf("OnEnd calls = %d after %d samples, want 1 after 1050", ends, atEnd)
	}
}

func TestReplayOnEndSkippedOnStop(t *testing.T) {
	r := NewReplay(make([]float32, 16000*60), 16000, 0)
	called := make(chan struct{}, 1)
	r.OnEnd(func() { called <- struct{}{} })
	if err := r.Start(func([]float32) {}); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
		t.Fatal("OnEnd called after Stop")
	default:
	}
}
