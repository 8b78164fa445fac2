// Package observe provides OpenTelemetry metrics for the tutoring pipeline.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// via a Prometheus bridge ([InitProvider]) so they can be scraped from the
// standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all shuoba metrics.
const meterName = "github.com/wenjiez/shuoba"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", "transcribe"|"translate"|"generate"|"synthesize")
	StageDuration metric.Float64Histogram

	// Turns counts completed pipeline turns. Use with attribute:
	//   attribute.String("status", "ok"|"degraded")
	Turns metric.Int64Counter

	// Degradations counts stages that fell back to sentinel output. Use with
	// attribute: attribute.String("stage", ...)
	Degradations metric.Int64Counter

	// SynthesisWins counts which TTS provider produced the served clip. Use
	// with attribute: attribute.String("provider", ...)
	SynthesisWins metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// hosted speech and LLM API round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("shuoba.pipeline.stage.duration",
		metric.WithDescription("Latency of each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("shuoba.pipeline.turns",
		metric.WithDescription("Completed pipeline turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Degradations, err = m.Int64Counter("shuoba.pipeline.degradations",
		metric.WithDescription("Stages that degraded to sentinel output."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisWins, err = m.Int64Counter("shuoba.tts.wins",
		metric.WithDescription("Served clips by winning synthesis provider."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("shuoba.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterHistorySize registers an observable gauge that reports the current
// number of stored conversation turns. count is invoked at collection time
// and must be safe for concurrent use.
func RegisterHistorySize(mp metric.MeterProvider, count func(context.Context) (int64, error)) error {
	m := mp.Meter(meterName)
	_, err := m.Int64ObservableGauge("shuoba.history.turns",
		metric.WithDescription("Turns currently stored in the conversation log."),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			n, err := count(ctx)
			if err != nil {
				return err
			}
			o.Observe(n)
			return nil
		}),
	)
	return err
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordStage records one pipeline stage's duration.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordTurn records a completed turn with its status.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordDegradation records a stage falling back to sentinel output.
func (m *Metrics) RecordDegradation(ctx context.Context, stage string) {
	m.Degradations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordSynthesisWin records which provider produced the served clip.
func (m *Metrics) RecordSynthesisWin(ctx context.Context, provider string) {
	m.SynthesisWins.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)))
}
