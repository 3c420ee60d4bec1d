package portaudio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestInputDevices(t *testing.T) {
	devices, err := InputDevices()
	if err != nil {
		t.Skipf("portaudio unavailable: %v", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			t.Errorf("device %d %q listed with %d input channels", d.Index, d.Name, d.MaxInputChannels)
		}
		if d.DefaultSampleRate <= 0 {
			t.Errorf("device %d %q default rate = %v", d.Index, d.Name, d.DefaultSampleRate)
		}
	}
}

func TestOpenUnknownDevice(t *testing.T) {
	if _, err := InputDevices(); err != nil {
		t.Skipf("portaudio unavailable: %v", err)
	}
	_, err := Open(Config{Device: 1 << 20})
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Open = %v, want ErrNoDevice", err)
	}
}

func TestCapture(t *testing.T) {
	if _, err := DefaultInputDevice(); err != nil {
		t.Skipf("no input device: %v", err)
	}
	c, err := Open(Config{Device: -1, Chunk: 20 * time.Millisecond})
	if err != nil {
		t.Skipf("open default input: %v", err)
	}
	defer c.Close()

	if c.Rate() <= 0 {
		t.Fatalf("Rate() = %d", c.Rate())
	}
	want := int(float64(c.Rate()) * 0.02)

	var chunks, badLen atomic.Int32
	if err := c.Start(func(chunk []float32) {
		chunks.Add(1)
		if d := len(chunk) - want; d < -1 || d > 1 {
			badLen.Add(1)
		}
	}); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(func([]float32) {}); err == nil {
		t.Fatal("second Start succeeded")
	}
	time.Sleep(200 * time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	n := chunks.Load()
	if n == 0 {
		t.Fatal("no chunks delivered")
	}
	if badLen.Load() != 0 {
		t.Fatalf("%d chunks with unexpected length, want %d samples", badLen.Load(), want)
	}
	time.Sleep(50 * time.Millisecond)
	if chunks.Load() != n {
		t.Fatal("chunks delivered after Stop")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
