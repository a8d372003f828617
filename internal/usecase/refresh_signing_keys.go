package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/repository"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

// RefreshSigningKeysOutput は JWKS 再取得後の KeySet の概要。
type RefreshSigningKeysOutput struct {
	Generation uint64    `json:"generation"`
	KeyCount   int       `json:"key_count"`
	KeyIDs     []string  `json:"kids"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// RefreshSigningKeysUseCase は最小再取得間隔を無視して JWKS を再取得するユースケース。
// 鍵ローテーションの即時反映や起動時のウォームアップに使う。
type RefreshSigningKeysUseCase struct {
	keys   repository.SigningKeyRepository
	logger *slog.Logger
}

// NewRefreshSigningKeysUseCase は新しい RefreshSigningKeysUseCase を作成する。
func NewRefreshSigningKeysUseCase(keys repository.SigningKeyRepository, logger *slog.Logger) *RefreshSigningKeysUseCase {
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	return &RefreshSigningKeysUseCase{keys: keys, logger: logger}
}

// Execute は JWKS を再取得する。失敗しても既存の KeySet は保持される。
func (uc *RefreshSigningKeysUseCase) Execute(ctx context.Context) (*RefreshSigningKeysOutput, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "RefreshSigningKeys")
	defer span.End()

	if err := uc.keys.ForceRefresh(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrSigningKeysUnavailable, err)
	}

	ks := uc.keys.Current()
	out := &RefreshSigningKeysOutput{
		Generation: ks.Generation(),
		KeyCount:   ks.Len(),
		KeyIDs:     ks.KIDs(),
		FetchedAt:  ks.FetchedAt(),
	}
	telemetry.LogWithTrace(ctx, uc.logger).Info("signing keys refreshed on request",
		slog.Uint64("generation", out.Generation),
		slog.Int("keys", out.KeyCount),
	)
	return out, nil
}
