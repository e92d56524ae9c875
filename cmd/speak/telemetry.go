package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const serviceName = "speak"

type telemetryConfig struct {
	// TraceOut 非 nil 时 span 以 JSON 打印到这里
	TraceOut io.Writer
	// OTLPEndpoint 非空时 span 通过 gRPC 发往 collector，优先于 TraceOut
	OTLPEndpoint string
	OTLPInsecure bool
	// MetricsAddr 非空时在该地址提供 /metrics
	MetricsAddr string
}

func (c telemetryConfig) enabled() bool {
	return c.TraceOut != nil || c.OTLPEndpoint != "" || c.MetricsAddr != ""
}

// setupTelemetry 按需安装全局 TracerProvider 和 MeterProvider，返回的函数负责 flush 并关闭所有 exporter
func setupTelemetry(cfg telemetryConfig, logger logrus.FieldLogger) (func(context.Context) error, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	exporter, err := newSpanExporter(cfg)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if cfg.MetricsAddr != "" {
		handler, mp, err := initMetrics(res)
		if err != nil {
			_ = shutdown(context.Background())
			return nil, err
		}
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)

		srv, err := serveMetrics(cfg.MetricsAddr, handler, logger)
		if err != nil {
			_ = shutdown(context.Background())
			return nil, err
		}
		shutdowns = append(shutdowns, srv.Shutdown)
	}

	return shutdown, nil
}

func newSpanExporter(cfg telemetryConfig) (sdktrace.SpanExporter, error) {
	if cfg.OTLPEndpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exporter, nil
	}
	if cfg.TraceOut != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.TraceOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exporter, nil
	}
	return nil, nil
}

func initMetrics(res *resource.Resource) (http.Handler, *sdkmetric.MeterProvider, error) {
	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), mp, nil
}

func serveMetrics(addr string, handler http.Handler, logger logrus.FieldLogger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("speak: metrics server: %v", err)
		}
	}()
	logger.Infof("speak: serving metrics on http://%s/metrics", ln.Addr())
	return srv, nil
}
