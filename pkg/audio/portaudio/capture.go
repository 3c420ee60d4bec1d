package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/haivivi/pitchscope/pkg/audio/resampler"
)

// Config selects the capture device and buffer size.
type Config struct {
	// Device is a device index from InputDevices. Negative selects the
	// default input device.
	Device int

	// Rate requests a sample rate. Zero uses the device's native rate.
	Rate float64

	// Channels to open. Zero means mono. Multi-channel input is
	// downmixed before delivery.
	Channels int

	// Chunk is the duration of each delivered chunk. Default 10ms.
	Chunk time.Duration

	Logger *slog.Logger
}

// Capture records from an input device. It delivers mono float32 chunks
// at the device rate from its own goroutine.
type Capture struct {
	cfg    Config
	device DeviceInfo
	in     *inputStream
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	quit    chan struct{}
	done    chan struct{}
}

// Open opens the configured device without starting it.
func Open(cfg Config) (*Capture, error) {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Chunk <= 0 {
		cfg.Chunk = 10 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dev, err := findDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	if cfg.Channels > dev.MaxInputChannels {
		return nil, fmt.Errorf("portaudio: device %q has %d input channels, want %d",
			dev.Name, dev.MaxInputChannels, cfg.Channels)
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = dev.DefaultSampleRate
	}
	frames := int(math.Round(rate * cfg.Chunk.Seconds()))
	if frames <= 0 {
		return nil, fmt.Errorf("portaudio: chunk %v too short at %.0f Hz", cfg.Chunk, rate)
	}

	in, err := openInput(dev, cfg.Channels, rate, frames)
	if err != nil {
		return nil, err
	}
	logger.Debug("capture opened", "device", dev.Name, "rate", in.rate, "frames", frames)
	return &Capture{cfg: cfg, device: dev, in: in, logger: logger}, nil
}

func findDevice(index int) (DeviceInfo, error) {
	if index < 0 {
		return DefaultInputDevice()
	}
	devices, err := InputDevices()
	if err != nil {
		return DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.Index == index {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("%w: index %d", ErrNoDevice, index)
}

// Device returns the opened device.
func (c *Capture) Device() DeviceInfo { return c.device }

// Rate returns the stream's actual sample rate.
func (c *Capture) Rate() int { return int(math.Round(c.in.rate)) }

// Start starts the device and the read loop. onChunk must not block and
// must not retain the chunk.
func (c *Capture) Start(onChunk func(chunk []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return errors.New("portaudio: capture closed")
	case c.running:
		return errors.New("portaudio: capture already started")
	}
	if err := c.in.start(); err != nil {
		return err
	}
	c.running = true
	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(onChunk, c.quit, c.done)
	return nil
}

func (c *Capture) loop(onChunk func([]float32), quit, done chan struct{}) {
	defer close(done)
	format := resampler.Format{SampleRate: c.Rate(), Channels: c.in.channels}
	buf := make([]float32, 0, c.in.frames*c.in.channels)
	overflows := 0

	for {
		select {
		case <-quit:
			if overflows > 0 {
				c.logger.Warn("capture input overflowed", "count", overflows)
			}
			return
		default:
		}

		var (
			overflow bool
			err      error
		)
		buf, overflow, err = c.in.read(buf[:0])
		if err != nil {
			c.logger.Error("capture read failed", "error", err)
			return
		}
		if overflow {
			overflows++
		}
		onChunk(format.Downmix(buf))
	}
}

// Stop stops delivery and waits for the read loop to exit. The device
// can be started again.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	quit, done := c.quit, c.done
	c.mu.Unlock()

	close(quit)
	<-done
	return c.in.stop()
}

// Close stops the capture and releases the device.
func (c *Capture) Close() error {
	stopErr := c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(stopErr, c.in.close())
}
