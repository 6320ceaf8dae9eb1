// Package observe holds the telemetry plumbing of sensekit: OpenTelemetry
// instruments for the scheduler and the TTS backends, trace helpers that tie
// log lines to spans, and the HTTP middleware of the control API.
//
// [InitProvider] bridges the instruments to Prometheus for /metrics. Tests
// build their own [Metrics] with [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sensekit metrics.
const meterName = "github.com/MrWong99/sensekit"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TTSDuration tracks text-to-speech synthesis latency. Use with attribute:
	//   attribute.String("provider", ...)
	TTSDuration metric.Float64Histogram

	// SpeechLatency tracks the time from dispatch to end of playback.
	SpeechLatency metric.Float64Histogram

	// --- Counters ---

	// ItemsEnqueued counts speech items accepted into the queue.
	ItemsEnqueued metric.Int64Counter

	// ItemsDropped counts items that left without playing. Use with attribute:
	//   attribute.String("reason", ...)
	ItemsDropped metric.Int64Counter

	// ItemsDispatched counts items bound to a channel.
	ItemsDispatched metric.Int64Counter

	// ItemsCompleted counts items that finished playback.
	ItemsCompleted metric.Int64Counter

	// SynthesisFailures counts items that produced no playable audio.
	SynthesisFailures metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("breaker", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of queued speech items.
	QueueDepth metric.Int64UpDownCounter

	// ActiveChannels tracks the number of channels bound to an item.
	ActiveChannels metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// short cues up to long announcements.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.TTSDuration, "sensekit.tts.duration", "Latency of text-to-speech synthesis.", latencyBuckets},
		{&met.SpeechLatency, "sensekit.speech.latency", "Time from dispatch to the end of playback.", latencyBuckets},
		{&met.HTTPRequestDuration, "sensekit.http.request.duration", "HTTP request latency by method and path.", nil},
	}
	for _, h := range histograms {
		opts := []metric.Float64HistogramOption{metric.WithDescription(h.desc), metric.WithUnit("s")}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}
		if *h.dst, err = m.Float64Histogram(h.name, opts...); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ItemsEnqueued, "sensekit.speech.enqueued", "Speech items accepted into the queue."},
		{&met.ItemsDropped, "sensekit.speech.dropped", "Speech items dropped without playing, by reason."},
		{&met.ItemsDispatched, "sensekit.speech.dispatched", "Speech items bound to a channel."},
		{&met.ItemsCompleted, "sensekit.speech.completed", "Speech items that finished playback."},
		{&met.SynthesisFailures, "sensekit.speech.synthesis_failures", "Speech items that produced no playable audio."},
		{&met.ProviderRequests, "sensekit.provider.requests", "Provider API requests by provider, kind and status."},
		{&met.BreakerTransitions, "sensekit.breaker.transitions", "Circuit breaker state changes by breaker and target state."},
		{&met.ProviderErrors, "sensekit.provider.errors", "Provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	gauges := []struct {
		dst  *metric.Int64UpDownCounter
		name string
		desc string
	}{
		{&met.QueueDepth, "sensekit.speech.queue_depth", "Queued speech items."},
		{&met.ActiveChannels, "sensekit.speech.active_channels", "Spatial channels bound to an item."},
	}
	for _, g := range gauges {
		if *g.dst, err = m.Int64UpDownCounter(g.name, metric.WithDescription(g.desc)); err != nil {
			return nil, err
		}
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}
