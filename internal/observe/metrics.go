// Package observe provides application-wide observability primitives for
// wordsplice: OpenTelemetry metrics, tracing, trace-aware structured logging,
// and HTTP middleware for the metrics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so they can be scraped from
// /metrics. A package-level default [Metrics] instance ([DefaultMetrics]) is
// provided for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all wordsplice metrics.
const meterName = "github.com/MrWong99/wordsplice"

// Metrics holds all OpenTelemetry instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Resolution ---

	// ResolveOutcomes counts resolver results by attribute "method"
	// (caption, transcribed, fallback).
	ResolveOutcomes metric.Int64Counter

	// CandidatesProbed records how many candidates one resolution touched.
	CandidatesProbed metric.Int64Histogram

	// --- Transcription and verification ---

	// TranscriptionDuration tracks backend latency by attribute "backend".
	TranscriptionDuration metric.Float64Histogram

	// VerifyOutcomes counts verification results by attribute "result"
	// (accepted, not_found, silent, error).
	VerifyOutcomes metric.Int64Counter

	// CacheLookups counts verification cache lookups by attribute "result"
	// (hit, miss).
	CacheLookups metric.Int64Counter

	// --- Ranking and assembly ---

	// RankCombinations records the cross-product size of each ranking.
	RankCombinations metric.Int64Histogram

	// RenderDuration tracks the time to render and store one phrase.
	RenderDuration metric.Float64Histogram

	// --- Providers ---

	// ProviderRequests counts provider calls by "provider", "kind", "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by
	// "provider", "from" and "to".
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks request processing time on the metrics
	// listener by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Transcription of a
// full-length source can take minutes, so the range is wide.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180,
}

// combinationBuckets cover ranking cross-products from trivial to the
// default combination guard.
var combinationBuckets = []float64{
	1, 10, 100, 1000, 10000, 100000,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResolveOutcomes, err = m.Int64Counter("wordsplice.resolve.outcomes",
		metric.WithDescription("Resolver results by winning phase."),
	); err != nil {
		return nil, err
	}
	if met.CandidatesProbed, err = m.Int64Histogram("wordsplice.resolve.candidates_probed",
		metric.WithDescription("Candidates probed per resolution."),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("wordsplice.transcription.duration",
		metric.WithDescription("Latency of transcription backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VerifyOutcomes, err = m.Int64Counter("wordsplice.verify.outcomes",
		metric.WithDescription("Clip verification results."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("wordsplice.cache.lookups",
		metric.WithDescription("Verification cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.RankCombinations, err = m.Int64Histogram("wordsplice.rank.combinations",
		metric.WithDescription("Sequences enumerated per ranking."),
		metric.WithExplicitBucketBoundaries(combinationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RenderDuration, err = m.Float64Histogram("wordsplice.render.duration",
		metric.WithDescription("Latency of rendering and storing one phrase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("wordsplice.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("wordsplice.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("wordsplice.provider.breaker_transitions",
		metric.WithDescription("Circuit breaker state changes per provider."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("wordsplice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordResolve records one resolver outcome.
func (m *Metrics) RecordResolve(ctx context.Context, method string, probed int) {
	m.ResolveOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
	m.CandidatesProbed.Record(ctx, int64(probed))
}

// RecordTranscription records backend latency and, on failure, a provider
// error of kind "stt".
func (m *Metrics) RecordTranscription(ctx context.Context, backend string, d time.Duration, err error) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("backend", backend)),
	)
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, backend, "stt")
	}
	m.RecordProviderRequest(ctx, backend, "stt", status)
}

// RecordVerify records one verification outcome.
func (m *Metrics) RecordVerify(ctx context.Context, result string) {
	m.VerifyOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRank records the number of sequences one ranking enumerated.
func (m *Metrics) RecordRank(ctx context.Context, combinations int) {
	m.RankCombinations.Record(ctx, int64(combinations))
}

// RecordRender records the latency of rendering one phrase.
func (m *Metrics) RecordRender(ctx context.Context, d time.Duration) {
	m.RenderDuration.Record(ctx, d.Seconds())
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, from, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
