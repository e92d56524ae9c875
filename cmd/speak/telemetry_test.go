package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSetupTelemetryPrintsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := setupTelemetry(telemetryConfig{TraceOut: &buf}, discardLogger())
	require.NoError(t, err)

	_, span := otel.Tracer("speak-test").Start(context.Background(), "probe")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "probe"`)
	assert.Contains(t, buf.String(), serviceName)
}

func TestSetupTelemetryServesMetrics(t *testing.T) {
	shutdown, err := setupTelemetry(telemetryConfig{MetricsAddr: "127.0.0.1:0"}, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTelemetryRejectsBadAddress(t *testing.T) {
	_, err := setupTelemetry(telemetryConfig{MetricsAddr: "not-an-address"}, discardLogger())
	assert.ErrorContains(t, err, "listen metrics")
}

func TestTelemetryConfigEnabled(t *testing.T) {
	assert.False(t, telemetryConfig{}.enabled())
	assert.True(t, telemetryConfig{OTLPEndpoint: "localhost:4317"}.enabled())
	assert.True(t, telemetryConfig{MetricsAddr: ":9464"}.enabled())
}
