// Package duplex owns the local microphone and speaker. Capture is a blocking
// per-frame read; playback runs on its own goroutine fed by an unbounded queue
// so that device write latency never stalls the caller that enqueues audio.
package duplex

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/parley/audio"
)

var (
	// ErrDevice is returned when a stream cannot be opened or written.
	ErrDevice = errors.New("audio device error")

	// ErrStreamRead is returned when a capture read fails, including overflow.
	ErrStreamRead = errors.New("audio stream read error")

	// ErrNotStarted is returned when the duplex is used before Start.
	ErrNotStarted = errors.New("audio duplex not started")
)

// DefaultDevice selects the host's default input or output device.
const DefaultDevice = -1

// Device is the hardware side of the duplex. Read fills exactly one frame.
type Device interface {
	Read(frame []int16) error
	Write(pcm []byte) error
	CloseInput() error
	CloseOutput() error
	Release() error
}

// Opener opens the input and output streams of a Device.
type Opener func(cfg Config, inputID, outputID int) (Device, error)

// Config holds the fixed stream parameters.
type Config struct {
	SampleRate   int
	FrameSize    int
	WriteChunk   int
	PollInterval time.Duration
	StopTimeout  time.Duration
}

// DefaultConfig returns 24 kHz mono with 512-sample frames and 4096-byte writes.
func DefaultConfig() Config {
	return Config{
		SampleRate:   audio.SampleRate,
		FrameSize:    audio.FrameSize,
		WriteChunk:   audio.WriteChunkSize,
		PollInterval: 100 * time.Millisecond,
		StopTimeout:  3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if c.WriteChunk <= 0 {
		c.WriteChunk = d.WriteChunk
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	return c
}

// Option configures a Duplex.
type Option func(*Duplex)

// WithOpener replaces the PortAudio opener. Used by tests.
func WithOpener(open Opener) Option {
	return func(d *Duplex) { d.open = open }
}

// WithLogger sets the logger used for playback diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(d *Duplex) { d.log = log }
}

// Duplex is a bidirectional fixed-rate PCM stream.
type Duplex struct {
	cfg  Config
	open Opener
	log  *slog.Logger

	mu    sync.Mutex
	dev   Device
	queue *playbackQueue
	done  chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// New creates a Duplex. Nothing is opened until Start.
func New(cfg Config, opts ...Option) *Duplex {
	d := &Duplex{
		cfg:  cfg.withDefaults(),
		open: OpenPortAudio,
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Config returns the effective stream parameters.
func (d *Duplex) Config() Config { return d.cfg }

// Start opens both streams and launches the playback consumer. Use
// DefaultDevice for either id to pick the host default.
func (d *Duplex) Start(inputID, outputID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev != nil {
		return nil
	}

	dev, err := d.open(d.cfg, inputID, outputID)
	if err != nil {
		return fmt.Errorf("%w: failed to open streams: %w", ErrDevice, err)
	}

	d.dev = dev
	d.queue = newPlaybackQueue()
	d.done = make(chan struct{})

	go d.playbackLoop(dev, d.queue, d.done)

	d.log.Info("Audio streams initialized",
		"sampleRate", d.cfg.SampleRate,
		"frameSize", d.cfg.FrameSize,
		"inputDevice", inputID,
		"outputDevice", outputID)
	return nil
}

// CaptureFrame blocks until one full frame has been read from the input.
func (d *Duplex) CaptureFrame() (audio.Frame, error) {
	d.mu.Lock()
	dev := d.dev
	d.mu.Unlock()
	if dev == nil {
		return nil, ErrNotStarted
	}

	frame := make(audio.Frame, d.cfg.FrameSize)
	if err := dev.Read(frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamRead, err)
	}
	return frame, nil
}

// Enqueue hands decoded output audio to the playback consumer. It copies pcm
// and never blocks.
func (d *Duplex) Enqueue(pcm []byte) {
	d.mu.Lock()
	q := d.queue
	d.mu.Unlock()
	if q == nil || len(pcm) == 0 {
		return
	}
	if !q.push(append([]byte(nil), pcm...)) {
		d.log.Debug("Dropping playback audio after stop", "bytes", len(pcm))
	}
}

// Pending reports how many enqueued items the consumer has not picked up yet.
func (d *Duplex) Pending() int {
	d.mu.Lock()
	q := d.queue
	d.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.len()
}

// Stop ends playback, waits for the consumer up to StopTimeout, then closes
// the input stream, the output stream and the device handle. Every step runs
// even if an earlier one fails.
func (d *Duplex) Stop() error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		dev, q, done := d.dev, d.queue, d.done
		d.mu.Unlock()
		if dev == nil {
			return
		}

		q.close()
		select {
		case <-done:
		case <-time.After(d.cfg.StopTimeout):
			d.log.Warn("Playback consumer did not stop in time", "timeout", d.cfg.StopTimeout)
		}

		var errs []error
		if err := dev.CloseInput(); err != nil {
			d.log.Error("Failed to close input stream", "error", err)
			errs = append(errs, err)
		}
		if err := dev.CloseOutput(); err != nil {
			d.log.Error("Failed to close output stream", "error", err)
			errs = append(errs, err)
		}
		if err := dev.Release(); err != nil {
			d.log.Error("Failed to release audio device", "error", err)
			errs = append(errs, err)
		}
		d.stopErr = errors.Join(errs...)
		d.log.Debug("Audio streams stopped")
	})
	return d.stopErr
}

func (d *Duplex) playbackLoop(dev Device, q *playbackQueue, done chan struct{}) {
	defer close(done)

	err := playback(q, dev.Write, d.cfg.WriteChunk, d.cfg.PollInterval)
	if err != nil {
		d.log.Error("Playback stopped after output write failure", "error", err)
	}
}
