package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// RedactedValue は秘匿属性の値を置き換える文字列。
const RedactedValue = "[REDACTED]"

// sensitiveKeys はログに値を出力しない属性キー。トークン本体や資格情報を含みうる。
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
	"authorization": {},
	"password":      {},
	"client_secret": {},
}

// NewLogger は TelemetryConfig に基づいて構造化ロガーを生成する。
// サービス名・バージョン・Tier・環境を標準フィールドとして付与し、トークン等の秘匿属性はマスクする。
func NewLogger(cfg TelemetryConfig) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg TelemetryConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLogLevel(cfg.LogLevel),
		ReplaceAttr: redactSensitive,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.Version),
		slog.String("tier", cfg.Tier),
		slog.String("environment", cfg.Environment),
	)
}

// ParseLogLevel はログレベル文字列を slog.Level に変換する。
// 大文字小文字は区別せず、"warn+2" のようなオフセット指定も受け付ける。空や不正な値は INFO。
func ParseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func redactSensitive(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}

// LogWithTrace は OpenTelemetry のスパンコンテキストからトレース ID とスパン ID を
// ロガーに付与して返す。スパンが存在しない場合はそのまま返す。
func LogWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// DiscardLogger は出力を捨てるロガーを返す。ロガー未指定時の既定値に使う。
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
