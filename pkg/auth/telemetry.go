package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"bookgate/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	authTelemetryOnce sync.Once
	authMeter         metric.Meter

	authTokenValidationLatency metric.Float64Histogram
	authTokenValidationCounter metric.Int64Counter
	authJWKSCacheEvents        metric.Int64Counter
	authIdPRequestLatency      metric.Float64Histogram
)

func initAuthTelemetry() {
	authTelemetryOnce.Do(func() {
		logger := logging.GetLogger()
		authMeter = otel.GetMeterProvider().Meter("bookgate/pkg/auth")

		var err error
		if authTokenValidationLatency, err = authMeter.Float64Histogram(
			"bookgate_auth_token_validation_duration_ms",
			metric.WithDescription("Latency of bearer token validation"),
			metric.WithUnit("ms"),
		); err != nil {
			logger.Warn("Failed to register auth token validation latency: %v", err)
		}

		if authTokenValidationCounter, err = authMeter.Int64Counter(
			"bookgate_auth_token_validation_total",
			metric.WithDescription("Bearer token validation attempts by mode and result"),
		); err != nil {
			logger.Warn("Failed to register auth token validation counter: %v", err)
		}

		if authJWKSCacheEvents, err = authMeter.Int64Counter(
			"bookgate_auth_jwks_fetch_total",
			metric.WithDescription("JWKS fetches made by the OIDC verifier"),
		); err != nil {
			logger.Warn("Failed to register auth JWKS counter: %v", err)
		}

		if authIdPRequestLatency, err = authMeter.Float64Histogram(
			"bookgate_auth_idp_http_duration_ms",
			metric.WithDescription("Latency of HTTP calls to the identity provider"),
			metric.WithUnit("ms"),
		); err != nil {
			logger.Warn("Failed to register auth IdP request histogram: %v", err)
		}
	})
}

// recordTokenValidation never records the token or the error text
func recordTokenValidation(ctx context.Context, mode string, duration time.Duration, result string) {
	initAuthTelemetry()
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("result", result),
	)
	if authTokenValidationLatency != nil {
		authTokenValidationLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if authTokenValidationCounter != nil {
		authTokenValidationCounter.Add(ctx, 1, attrs)
	}
}

func recordJWKSFetch(ctx context.Context, result string, statusCode int) {
	initAuthTelemetry()
	if authJWKSCacheEvents == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("result", result)}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("status_code", statusCode))
	}
	authJWKSCacheEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func recordIdPRequest(ctx context.Context, method, path, status string, statusCode int, duration time.Duration) {
	initAuthTelemetry()
	if authIdPRequestLatency == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("status_code", statusCode))
	}
	authIdPRequestLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

type instrumentedTransport struct {
	base http.RoundTripper
}

func newInstrumentedTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &instrumentedTransport{base: base}
}

func (it *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := it.base.RoundTrip(req)
	duration := time.Since(start)

	status := "success"
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
		if resp.StatusCode >= http.StatusBadRequest {
			status = "error"
		}
	}
	if err != nil {
		status = "error"
	}

	recordIdPRequest(req.Context(), req.Method, req.URL.Path, status, statusCode, duration)

	if strings.Contains(strings.ToLower(req.URL.Path), "jwks") || strings.HasSuffix(req.URL.Path, "/certs") {
		recordJWKSFetch(req.Context(), status, statusCode)
	}

	return resp, err
}
