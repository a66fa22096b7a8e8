package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the meter provider and the service's instruments.
// A nil or disabled Telemetry is safe everywhere; every method degrades
// to a no-op.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	// RED metrics for the readiness API
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Provisioning metrics
	provisionsTotal   metric.Int64Counter
	provisionDuration metric.Float64Histogram
	downloadsActive   metric.Int64UpDownCounter
	downloadedBytes   metric.Int64Counter

	// Fetcher metrics
	fetchOperationsTotal metric.Int64Counter
	fetchErrors          metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint enables a periodic OTLP gRPC metric push when set.
	OTLPEndpoint string
}

// New creates a telemetry instance with a Prometheus pull exporter and,
// optionally, an OTLP push reader. It also starts Go runtime metric
// collection on the same provider.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         otel.Meter(cfg.ServiceName),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// RecordHTTPRequest records RED metrics for one handled request.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordProvision records one provisioning attempt by outcome and reason.
func (t *Telemetry) RecordProvision(outcome, reason string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	)

	if t.provisionsTotal != nil {
		t.provisionsTotal.Add(context.Background(), 1, attrs)
	}

	if t.provisionDuration != nil {
		t.provisionDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// IncrementActiveDownloads increments the in-flight download gauge.
func (t *Telemetry) IncrementActiveDownloads() {
	if t != nil && t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), 1)
	}
}

// DecrementActiveDownloads decrements the in-flight download gauge.
func (t *Telemetry) DecrementActiveDownloads() {
	if t != nil && t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), -1)
	}
}

// AddDownloadedBytes adds to the cumulative downloaded-byte counter.
func (t *Telemetry) AddDownloadedBytes(n int64) {
	if t != nil && t.downloadedBytes != nil && n > 0 {
		t.downloadedBytes.Add(context.Background(), n)
	}
}

// RecordFetch records one fetcher operation by scheme and status.
func (t *Telemetry) RecordFetch(scheme, status string) {
	if t == nil {
		return
	}

	if t.fetchOperationsTotal != nil {
		t.fetchOperationsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("scheme", scheme),
				attribute.String("status", status),
			),
		)
	}

	if status == "error" && t.fetchErrors != nil {
		t.fetchErrors.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("scheme", scheme)),
		)
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}

	return nil
}

func (t *Telemetry) initializeMetrics() error {
	instruments := []struct {
		create func() error
	}{
		{func() (err error) {
			t.httpRequestsTotal, err = t.meter.Int64Counter("http_requests_total",
				metric.WithDescription("Total number of HTTP requests"), metric.WithUnit("1"))
			return err
		}},
		{func() (err error) {
			t.httpRequestDuration, err = t.meter.Float64Histogram("http_request_duration_seconds",
				metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s"))
			return err
		}},
		{func() (err error) {
			t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter("http_requests_in_flight",
				metric.WithDescription("Number of HTTP requests currently being processed"), metric.WithUnit("1"))
			return err
		}},
		{func() (err error) {
			t.provisionsTotal, err = t.meter.Int64Counter("dataset_provisions_total",
				metric.WithDescription("Total number of dataset provisioning attempts"), metric.WithUnit("1"))
			return err
		}},
		{func() (err error) {
			t.provisionDuration, err = t.meter.Float64Histogram("dataset_provision_duration_seconds",
				metric.WithDescription("Dataset provisioning duration in seconds"), metric.WithUnit("s"))
			return err
		}},
		{func() (err error) {
			t.downloadsActive, err = t.meter.Int64UpDownCounter("dataset_downloads_active",
				metric.WithDescription("Number of dataset downloads currently in flight"), metric.WithUnit("1"))
			return err
		}},
		{func() (err error) {
			t.downloadedBytes, err = t.meter.Int64Counter("dataset_downloaded_bytes_total",
				metric.WithDescription("Total bytes downloaded into the data directory"), metric.WithUnit("By"))
			return err
		}},
		{func() (err error) {
			t.fetchOperationsTotal, err = t.meter.Int64Counter("fetch_operations_total",
				metric.WithDescription("Total number of remote fetch operations"), metric.WithUnit("1"))
			return err
		}},
		{func() (err error) {
			t.fetchErrors, err = t.meter.Int64Counter("fetch_errors_total",
				metric.WithDescription("Total number of failed remote fetch operations"), metric.WithUnit("1"))
			return err
		}},
	}

	for _, in := range instruments {
		if err := in.create(); err != nil {
			return err
		}
	}

	return nil
}
