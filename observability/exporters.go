package observability

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// PrometheusProvider bundles a meter provider exporting to a dedicated
// Prometheus registry and the HTTP handler serving that registry.
type PrometheusProvider struct {
	MeterProvider *sdkmetric.MeterProvider
	Registry      *prometheus.Registry
	Handler       http.Handler
}

// NewPrometheusProvider creates a meter provider backed by the OpenTelemetry
// Prometheus exporter.
func NewPrometheusProvider() (*PrometheusProvider, error) {
	reg := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &PrometheusProvider{
		MeterProvider: mp,
		Registry:      reg,
		Handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil
}

// Metrics creates the runner instruments on this provider.
func (p *PrometheusProvider) Metrics() (*Metrics, error) {
	return NewMetrics(p.MeterProvider.Meter(MeterName))
}

// NewStdoutTracerProvider creates a tracer provider that writes finished
// spans as JSON to w.
func NewStdoutTracerProvider(w io.Writer, pretty bool) (*sdktrace.TracerProvider, error) {
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}

	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), nil
}
