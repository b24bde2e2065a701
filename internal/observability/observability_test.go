package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production")

	logger.Info("hello", "code", "abc123")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "abc123", entry["code"])
	assert.Equal(t, "production", entry["env"])
	assert.Contains(t, entry, "source")
}

func TestNewLogger_DevelopmentLogsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "development")

	logger.Debug("details")

	assert.Contains(t, buf.String(), "msg=details")
}

func TestSetup_ExposesMetricsOnRegistry(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	obs, err := Setup(ctx, Config{ServiceName: "glasslink-test", Environment: "test", Registerer: reg})
	require.NoError(t, err)
	defer obs.Shutdown(ctx)

	counter, err := obs.MeterProvider.Meter("test").Int64Counter("links_created")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes())

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "links_created_total" {
			found = true
			assert.Equal(t, float64(2), f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "links_created_total not exported")
}

func TestNewResource_CarriesEnvironment(t *testing.T) {
	res, err := newResource(context.Background(), "glasslink-test", "staging")
	require.NoError(t, err)

	attrs := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "glasslink-test", attrs[semconv.ServiceNameKey])
	assert.Equal(t, "staging", attrs[semconv.DeploymentEnvironmentKey])
}

func TestNewTracerProvider_SamplesByRatio(t *testing.T) {
	ctx := context.Background()
	res, err := newResource(ctx, "glasslink-test", "test")
	require.NoError(t, err)

	tests := []struct {
		name    string
		ratio   float64
		sampled bool
	}{
		{"all", 1, true},
		{"none", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := NewTracerProvider(ctx, res, TraceOptions{SampleRatio: tt.ratio})
			require.NoError(t, err)
			defer func() { _ = tp.Shutdown(ctx) }()

			_, span := tp.Tracer("test").Start(ctx, "redirect")
			defer span.End()
			assert.True(t, span.SpanContext().HasTraceID(), "trace ids exist even when not sampled")
			assert.Equal(t, tt.sampled, span.SpanContext().IsSampled())
		})
	}
}
