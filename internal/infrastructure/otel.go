package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"sensorstd/pkg/contracts"
)

const (
	ServiceName = "sensor-standardization-engine"
	MeterName   = "sensorstd"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: contracts.Version,
		EnableMetrics:  true,
		EnableTracing:  false,
		SampleRatio:    1.0,
	}
}

// InitializeOTel initializes OpenTelemetry metrics and tracing
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("service.instance.id", uuid.New().String()),
	)

	providers := &OTelProviders{Logger: logger}

	if cfg.EnableTracing {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetTracerProvider(tp)
	}

	if cfg.EnableMetrics {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		providers.PrometheusHTTP = promhttp.Handler()
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialization complete",
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

// Shutdown flushes and stops the providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ConversionMetrics holds the engine's application metrics
type ConversionMetrics struct {
	ConversionsTotal   metric.Int64Counter
	ConversionDuration metric.Float64Histogram
	RowsWritten        metric.Int64Counter
	IssuesTotal        metric.Int64Counter
	FilesParsed        metric.Int64Counter
	ActiveConversions  metric.Int64UpDownCounter
}

// CreateConversionMetrics creates the engine's metric instruments
func CreateConversionMetrics(meter metric.Meter) (*ConversionMetrics, error) {
	conversionsTotal, err := meter.Int64Counter(
		"conversions_total",
		metric.WithDescription("Total number of participant/modality conversion attempts"),
	)
	if err != nil {
		return nil, err
	}

	conversionDuration, err := meter.Float64Histogram(
		"conversion_duration_seconds",
		metric.WithDescription("Conversion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rowsWritten, err := meter.Int64Counter(
		"rows_written_total",
		metric.WithDescription("Total canonical data rows written"),
	)
	if err != nil {
		return nil, err
	}

	issuesTotal, err := meter.Int64Counter(
		"validation_issues_total",
		metric.WithDescription("Total validation issues recorded"),
	)
	if err != nil {
		return nil, err
	}

	filesParsed, err := meter.Int64Counter(
		"raw_files_parsed_total",
		metric.WithDescription("Total raw device files parsed"),
	)
	if err != nil {
		return nil, err
	}

	activeConversions, err := meter.Int64UpDownCounter(
		"active_conversions",
		metric.WithDescription("Number of conversions currently in flight"),
	)
	if err != nil {
		return nil, err
	}

	return &ConversionMetrics{
		ConversionsTotal:   conversionsTotal,
		ConversionDuration: conversionDuration,
		RowsWritten:        rowsWritten,
		IssuesTotal:        issuesTotal,
		FilesParsed:        filesParsed,
		ActiveConversions:  activeConversions,
	}, nil
}

// RecordConversion records the outcome of one conversion attempt.
func (m *ConversionMetrics) RecordConversion(ctx context.Context, modality string, success bool, seconds float64, rows, issues int) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("modality", modality),
		attribute.String("outcome", outcome),
	)
	m.ConversionsTotal.Add(ctx, 1, attrs)
	m.ConversionDuration.Record(ctx, seconds, attrs)
	m.RowsWritten.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("modality", modality)))
	m.IssuesTotal.Add(ctx, int64(issues), metric.WithAttributes(attribute.String("modality", modality)))
}
