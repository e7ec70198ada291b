package bookfile

import (
	"context"
	"strconv"
	"sync"
	"time"

	"bookgate/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	bookfileOnce     sync.Once
	bookfileTracer   trace.Tracer
	pipelineLatency  metric.Float64Histogram
	fileRequests     metric.Int64Counter
	fileErrors       metric.Int64Counter
	trialFallbacks   metric.Int64Counter
	sliceCacheEvents metric.Int64Counter
)

func initBookfileTelemetry() {
	bookfileOnce.Do(func() {
		logger := logging.GetLogger()
		bookfileTracer = otel.Tracer("bookgate/services/bookfile")
		meter := otel.GetMeterProvider().Meter("bookgate/services/bookfile")

		var err error

		if pipelineLatency, err = meter.Float64Histogram(
			"bookgate_bookfile_pipeline_duration_ms",
			metric.WithUnit("ms"),
			metric.WithDescription("Book file pipeline latency"),
		); err != nil {
			logger.Warn("Failed to register pipeline latency metric: %v", err)
		}

		if fileRequests, err = meter.Int64Counter(
			"bookgate_bookfile_requests_total",
			metric.WithDescription("Book file requests by resolved mode"),
		); err != nil {
			logger.Warn("Failed to register file request counter: %v", err)
		}

		if fileErrors, err = meter.Int64Counter(
			"bookgate_bookfile_errors_total",
			metric.WithDescription("Book file requests that failed"),
		); err != nil {
			logger.Warn("Failed to register file error counter: %v", err)
		}

		if trialFallbacks, err = meter.Int64Counter(
			"bookgate_trial_fallback_total",
			metric.WithDescription("Trials served as a raw byte prefix"),
		); err != nil {
			logger.Warn("Failed to register trial fallback counter: %v", err)
		}

		if sliceCacheEvents, err = meter.Int64Counter(
			"bookgate_trial_cache_events_total",
			metric.WithDescription("Trial slice cache hit/miss events"),
		); err != nil {
			logger.Warn("Failed to register trial cache metric: %v", err)
		}
	})
}

func startBookfileSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	initBookfileTelemetry()
	if bookfileTracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return bookfileTracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// recordFileTelemetry is called once per file request. mode is the resolved
// mode, or "none" when the request failed before resolution.
func recordFileTelemetry(ctx context.Context, duration time.Duration, mode string, status int) {
	initBookfileTelemetry()
	attrs := []attribute.KeyValue{
		attribute.String("resolved_mode", mode),
		attribute.String("status", strconv.Itoa(status)),
	}
	if pipelineLatency != nil {
		pipelineLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	}
	if fileRequests != nil {
		fileRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if status >= 400 && fileErrors != nil {
		fileErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordTrialFallback(ctx context.Context) {
	initBookfileTelemetry()
	if trialFallbacks != nil {
		trialFallbacks.Add(ctx, 1)
	}
}

func recordSliceCacheEvent(ctx context.Context, hit bool) {
	initBookfileTelemetry()
	if sliceCacheEvents == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	sliceCacheEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}
