package lsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("codegraph.lsp")
	meter  = otel.Meter("codegraph.lsp")
)

var (
	operationLatency metric.Float64Histogram
	operationTotal   metric.Int64Counter
	serverSpawns     metric.Int64Counter
	resultCount      metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"lsp_operation_duration_seconds",
			metric.WithDescription("Duration of LSP operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		operationTotal, err = meter.Int64Counter(
			"lsp_operation_total",
			metric.WithDescription("Total number of LSP operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"lsp_server_spawns_total",
			metric.WithDescription("Total number of LSP server spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resultCount, err = meter.Int64Histogram(
			"lsp_result_count",
			metric.WithDescription("Number of definition candidates returned"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func startOperationSpan(ctx context.Context, operation, server, uri string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lsp."+operation,
		trace.WithAttributes(
			attribute.String("lsp.operation", operation),
			attribute.String("lsp.server", server),
			attribute.String("lsp.uri", uri),
		),
	)
}

func setOperationSpanResult(span trace.Span, n int, success bool) {
	span.SetAttributes(
		attribute.Int("lsp.result_count", n),
		attribute.Bool("lsp.success", success),
	)
}

func setOperationSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func recordOperationMetrics(ctx context.Context, operation, server string, d time.Duration, n int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("server", server),
		attribute.Bool("success", success),
	)
	operationLatency.Record(ctx, d.Seconds(), attrs)
	operationTotal.Add(ctx, 1, attrs)
	if success {
		resultCount.Record(ctx, int64(n), metric.WithAttributes(attribute.String("operation", operation)))
	}
}

func recordServerSpawn(ctx context.Context, server string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
		attribute.Bool("success", success),
	))
}
