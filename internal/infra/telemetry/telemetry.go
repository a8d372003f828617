// Package telemetry はトレーシング・構造化ログ・Prometheus メトリクスを提供する。
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName は認証コアが生成するスパンのトレーサー名。
const TracerName = "k1s0-auth-core"

// TelemetryConfig は telemetry の初期化設定を保持する。
type TelemetryConfig struct {
	ServiceName   string
	Version       string
	Tier          string
	Environment   string
	TraceEndpoint string
	SampleRate    float64
	LogLevel      string
	LogFormat     string
}

// Provider は TracerProvider と Logger を保持し、シャットダウンを管理する。
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	logger         *slog.Logger
}

// InitTelemetry は W3C Trace Context の伝播設定・TracerProvider・構造化ロガーを初期化する。
// 伝播設定は常に行い、上流から受け取ったトレースをログに引き継ぐ。
// TraceEndpoint が空の場合はスパンをエクスポートしない。
func InitTelemetry(ctx context.Context, cfg TelemetryConfig) (*Provider, error) {
	otel.SetTextMapPropagator(Propagator())

	logger := NewLogger(cfg)
	if cfg.TraceEndpoint == "" {
		return &Provider{logger: logger}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.TraceEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampSampleRate(cfg.SampleRate)))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
			semconv.ServiceNamespaceKey.String(cfg.Tier),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		)),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tracerProvider: tp, logger: logger}, nil
}

// Propagator はリクエストヘッダ・gRPC メタデータからトレースを引き継ぐ伝播設定を返す。
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

func clampSampleRate(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// Shutdown は TracerProvider をシャットダウンし、未送信のスパンを送り切る。
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	return p.tracerProvider.Shutdown(ctx)
}

// Logger は構造化ロガーを返す。
func (p *Provider) Logger() *slog.Logger {
	return p.logger
}

// Tracer は認証コア用のトレーサーを返す。
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
