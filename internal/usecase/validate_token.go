package usecase

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

// ValidateTokenUseCase は JWT トークン検証ユースケース。
// issuer・audience を含むクレーム検証は TokenVerifier が行う。
type ValidateTokenUseCase struct {
	verifier TokenVerifier
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// NewValidateTokenUseCase は新しい ValidateTokenUseCase を作成する。
func NewValidateTokenUseCase(verifier TokenVerifier, logger *slog.Logger, metrics *telemetry.Metrics) *ValidateTokenUseCase {
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	return &ValidateTokenUseCase{
		verifier: verifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute はトークンを検証し、Claims を返却する。
// 失敗時は *model.TokenError、または呼び出し元のコンテキストのエラーを返す。
func (uc *ValidateTokenUseCase) Execute(ctx context.Context, tokenString string) (*model.Claims, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ValidateToken")
	defer span.End()

	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		err := model.NewTokenError(model.TokenMalformed, "token is empty", nil)
		uc.reject(ctx, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	claims, err := uc.verifier.VerifyToken(ctx, tokenString)
	if err != nil {
		uc.reject(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uc.metrics.RecordTokenValidation("valid")
	span.SetAttributes(attribute.String("auth.subject", claims.Subject))
	return claims, nil
}

func (uc *ValidateTokenUseCase) reject(ctx context.Context, err error) {
	result := "error"
	if kind, ok := model.TokenErrorKindOf(err); ok {
		result = strings.ToLower(string(kind))
	}
	uc.metrics.RecordTokenValidation(result)
	telemetry.LogWithTrace(ctx, uc.logger).Debug("token rejected",
		slog.String("reason", result),
		slog.String("error", err.Error()),
	)
}
