package observability

import (
	"context"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments recorded during a deploy run:
// - Latency: How long each pipeline step takes
// - Traffic: Steps executed, files deleted and uploaded
// - Errors: Failed steps by error class
type Metrics struct {
	meter metric.Meter

	// Step metrics (Latency, Traffic, Errors)
	StepDuration    metric.Float64Histogram
	StepsTotal      metric.Int64Counter
	StepErrorsTotal metric.Int64Counter

	// Transfer metrics (Traffic)
	ArtifactsUploaded metric.Int64Counter
	UploadBytes       metric.Int64Counter
	FilesDeleted      metric.Int64Counter
}

// NewMetrics creates all instruments on a Prometheus exporter backed by a
// private registry. The returned gatherer reads that registry.
func NewMetrics(ctx context.Context) (*Metrics, promclient.Gatherer, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("paneldeploy")
	m := &Metrics{meter: meter}

	// Step metrics
	m.StepDuration, err = meter.Float64Histogram(
		"deploy_step_duration_seconds",
		metric.WithDescription("Pipeline step latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StepsTotal, err = meter.Int64Counter(
		"deploy_steps_total",
		metric.WithDescription("Total number of pipeline steps executed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StepErrorsTotal, err = meter.Int64Counter(
		"deploy_step_errors_total",
		metric.WithDescription("Total number of failed pipeline steps"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Transfer metrics
	m.ArtifactsUploaded, err = meter.Int64Counter(
		"deploy_artifacts_uploaded_total",
		metric.WithDescription("Total number of artifacts uploaded"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.UploadBytes, err = meter.Int64Counter(
		"deploy_upload_bytes_total",
		metric.WithDescription("Total artifact bytes uploaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.FilesDeleted, err = meter.Int64Counter(
		"deploy_files_deleted_total",
		metric.WithDescription("Total number of stale remote files deleted"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, registry, nil
}

// RecordStep records one pipeline step. err is nil on success.
func (m *Metrics) RecordStep(ctx context.Context, step string, err error, durationSeconds float64) {
	attrs := metric.WithAttributes(stepAttr(step), successAttr(err == nil))

	m.StepDuration.Record(ctx, durationSeconds, attrs)
	m.StepsTotal.Add(ctx, 1, attrs)

	if err != nil {
		m.StepErrorsTotal.Add(ctx, 1, metric.WithAttributes(stepAttr(step), errorClassAttr(err)))
	}
}

// RecordDeleted records stale files removed from the panel.
func (m *Metrics) RecordDeleted(ctx context.Context, count int) {
	m.FilesDeleted.Add(ctx, int64(count))
}

// RecordUploaded records a completed upload.
func (m *Metrics) RecordUploaded(ctx context.Context, count int, bytes int64) {
	m.ArtifactsUploaded.Add(ctx, int64(count))
	m.UploadBytes.Add(ctx, bytes)
}
