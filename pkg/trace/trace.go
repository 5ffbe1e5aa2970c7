package trace

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Exporters accepted by InitTrace.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// InitTrace 初始化 OpenTelemetry TracerProvider 并设为全局.
// exporter: otlp (endpoint 为 OTLP gRPC 地址, 比如 localhost:4317), stdout 或 none.
// 返回的关闭函数在服务退出时调用.
func InitTrace(serviceName, exporter, endpoint string) (func(context.Context) error, error) {
	ctx := context.Background()

	var exp sdktrace.SpanExporter
	switch exporter {
	case ExporterNone, "":
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
		e, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exp = e
	case ExporterOTLP:
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(), // 没有 tls
		)
		e, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exp = e
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", exporter)
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
