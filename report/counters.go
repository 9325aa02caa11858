// Package report collects session counters and turns a finished session
// into transcript, metrics and evaluation files.
package report

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bosley/parley/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counters are the live session performance counters. Each field has one
// writer; the response time series is guarded by a mutex.
type Counters struct {
	chunksSent     atomic.Int64
	bytesSent      atomic.Int64
	chunksReceived atomic.Int64
	bytesReceived  atomic.Int64
	gatedFrames    atomic.Int64
	errors         atomic.Int64
	exchanges      atomic.Int64

	mu            sync.Mutex
	responseTimes []time.Duration

	inst *Instruments
}

// NewCounters returns zeroed counters. inst may be nil.
func NewCounters(inst *Instruments) *Counters {
	return &Counters{inst: inst}
}

// AudioSent records one frame of n bytes sent to the service.
func (c *Counters) AudioSent(ctx context.Context, n int) {
	c.chunksSent.Add(1)
	c.bytesSent.Add(int64(n))
	if c.inst != nil {
		c.inst.AudioChunksSent.Add(ctx, 1)
		c.inst.AudioBytesSent.Add(ctx, int64(n))
	}
}

// AudioReceived records one audio delta of n bytes.
func (c *Counters) AudioReceived(ctx context.Context, n int) {
	c.chunksReceived.Add(1)
	c.bytesReceived.Add(int64(n))
	if c.inst != nil {
		c.inst.AudioChunksReceived.Add(ctx, 1)
		c.inst.AudioBytesReceived.Add(ctx, int64(n))
	}
}

// FrameGated records a frame that passed the energy gate.
func (c *Counters) FrameGated() {
	c.gatedFrames.Add(1)
}

func (c *Counters) Error(ctx context.Context, kind string) {
	c.errors.Add(1)
	if c.inst != nil {
		c.inst.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (c *Counters) Exchange(ctx context.Context, phase string) {
	c.exchanges.Add(1)
	if c.inst != nil {
		c.inst.Exchanges.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
	}
}

func (c *Counters) PhaseTransition(ctx context.Context, to string) {
	if c.inst != nil {
		c.inst.PhaseTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", to)))
	}
}

// ResponseTime appends one response latency.
func (c *Counters) ResponseTime(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	c.responseTimes = append(c.responseTimes, d)
	c.mu.Unlock()
	if c.inst != nil {
		c.inst.ResponseTime.Record(ctx, d.Seconds())
	}
}

// Latency summarises the response time series.
type Latency struct {
	Count   int       `json:"total_responses"`
	Average float64   `json:"average_response_time_seconds"`
	Min     float64   `json:"min_response_time_seconds"`
	Max     float64   `json:"max_response_time_seconds"`
	Series  []float64 `json:"response_times_seconds"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ChunksSent     int64   `json:"input_chunks_sent"`
	BytesSent      int64   `json:"total_input_bytes"`
	ChunksReceived int64   `json:"output_chunks_received"`
	BytesReceived  int64   `json:"total_output_bytes"`
	GatedFrames    int64   `json:"gated_input_frames"`
	Errors         int64   `json:"errors"`
	Exchanges      int64   `json:"exchanges"`
	InputSeconds   float64 `json:"input_audio_seconds"`
	OutputSeconds  float64 `json:"output_audio_seconds"`
	Latency        Latency `json:"latency"`
}

// Snapshot copies the counters. Audio seconds assume 16-bit mono at rate.
func (c *Counters) Snapshot(rate int) Snapshot {
	s := Snapshot{
		ChunksSent:     c.chunksSent.Load(),
		BytesSent:      c.bytesSent.Load(),
		ChunksReceived: c.chunksReceived.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		GatedFrames:    c.gatedFrames.Load(),
		Errors:         c.errors.Load(),
		Exchanges:      c.exchanges.Load(),
	}
	s.InputSeconds = audio.Seconds(int(s.BytesSent), rate)
	s.OutputSeconds = audio.Seconds(int(s.BytesReceived), rate)

	c.mu.Lock()
	times := slices.Clone(c.responseTimes)
	c.mu.Unlock()

	s.Latency.Count = len(times)
	if len(times) == 0 {
		return s
	}
	var total time.Duration
	s.Latency.Series = make([]float64, len(times))
	for i, d := range times {
		total += d
		s.Latency.Series[i] = d.Seconds()
	}
	s.Latency.Average = (total / time.Duration(len(times))).Seconds()
	s.Latency.Min = slices.Min(times).Seconds()
	s.Latency.Max = slices.Max(times).Seconds()
	return s
}
