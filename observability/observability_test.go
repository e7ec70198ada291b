package observability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookgate/config"
	"bookgate/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func quietLogger() *logging.Logger {
	l := logging.NewLogger()
	l.SetOutput(io.Discard)
	return l
}

func TestInit_Disabled(t *testing.T) {
	cfg := &config.Config{Service: config.ServiceConfig{Environment: "test"}}

	var buf bytes.Buffer
	logger := logging.NewLogger()
	logger.SetOutput(&buf)

	p, err := Init(context.Background(), cfg, logger, "bookfile-server", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.MetricsHandler())
	assert.Contains(t, buf.String(), "Tracing disabled for bookfile-server")
	assert.Contains(t, buf.String(), "Metrics disabled for bookfile-server")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Metrics(t *testing.T) {
	cfg := &config.Config{
		Service: config.ServiceConfig{Environment: "test"},
		Observability: config.ObservabilityConfig{
			Metrics: config.MetricsConfig{Enabled: true, Address: "127.0.0.1:0", Path: "metrics"},
		},
	}

	p, err := Init(context.Background(), cfg, quietLogger(), "bookfile-server", "1.0.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	counter, err := otel.Meter("test").Int64Counter("bookgate_test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	handler := p.MetricsHandler()
	require.NotNil(t, handler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bookgate_test_total")
}

func TestMetricsPath(t *testing.T) {
	assert.Equal(t, "/metrics", metricsPath(""))
	assert.Equal(t, "/prom", metricsPath("prom"))
	assert.Equal(t, "/custom/metrics", metricsPath("/custom/metrics"))
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Nil(t, p.MetricsHandler())
}
