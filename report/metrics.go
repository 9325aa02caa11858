package report

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// meterName is the instrumentation scope for every session metric.
const meterName = "github.com/bosley/parley"

var latencyBuckets = []float64{
	0.25, 0.5, 1, 1.5, 2, 3, 5, 8, 13, 20,
}

// Instruments mirrors the session counters into OpenTelemetry.
type Instruments struct {
	AudioChunksSent     metric.Int64Counter
	AudioBytesSent      metric.Int64Counter
	AudioChunksReceived metric.Int64Counter
	AudioBytesReceived  metric.Int64Counter
	Exchanges           metric.Int64Counter
	Errors              metric.Int64Counter
	ResponseTime        metric.Float64Histogram
	PhaseTransitions    metric.Int64Counter
}

// NewInstruments creates every instrument on mp.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	m := mp.Meter(meterName)
	var err error
	inst := &Instruments{}

	if inst.AudioChunksSent, err = m.Int64Counter("parley.audio.chunks_sent",
		metric.WithDescription("Microphone frames sent to the realtime service."),
	); err != nil {
		return nil, err
	}
	if inst.AudioBytesSent, err = m.Int64Counter("parley.audio.bytes_sent",
		metric.WithDescription("PCM bytes sent to the realtime service."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if inst.AudioChunksReceived, err = m.Int64Counter("parley.audio.chunks_received",
		metric.WithDescription("Audio deltas received from the realtime service."),
	); err != nil {
		return nil, err
	}
	if inst.AudioBytesReceived, err = m.Int64Counter("parley.audio.bytes_received",
		metric.WithDescription("PCM bytes received from the realtime service."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if inst.Exchanges, err = m.Int64Counter("parley.exchanges",
		metric.WithDescription("Completed user and assistant exchanges."),
	); err != nil {
		return nil, err
	}
	if inst.Errors, err = m.Int64Counter("parley.errors",
		metric.WithDescription("Error events reported by the realtime service."),
	); err != nil {
		return nil, err
	}
	if inst.ResponseTime, err = m.Float64Histogram("parley.response.duration",
		metric.WithDescription("Time from response start to response completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if inst.PhaseTransitions, err = m.Int64Counter("parley.phase.transitions",
		metric.WithDescription("Interview phase changes."),
	); err != nil {
		return nil, err
	}
	return inst, nil
}

// Provider bundles a meter provider with the handler that serves it.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// Shutdown flushes and closes the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}

// InitProvider creates a meter provider exported through a private
// Prometheus registry, so /metrics only shows this process's session metrics.
func InitProvider() (*Provider, error) {
	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, errors.Join(errors.New("failed to create prometheus exporter"), err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	return &Provider{
		MeterProvider: mp,
		Handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}
