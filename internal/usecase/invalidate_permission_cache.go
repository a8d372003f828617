package usecase

import (
	"context"
	"log/slog"

	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

// CacheInvalidator は判定キャッシュを全消去する。infra/cache.DecisionCache が実装する。
type CacheInvalidator interface {
	InvalidateAll()
}

// InvalidatePermissionCacheUseCase はパーミッション判定キャッシュを全消去するユースケース。
type InvalidatePermissionCacheUseCase struct {
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewInvalidatePermissionCacheUseCase は新しい InvalidatePermissionCacheUseCase を作成する。
func NewInvalidatePermissionCacheUseCase(cache CacheInvalidator, logger *slog.Logger) *InvalidatePermissionCacheUseCase {
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	return &InvalidatePermissionCacheUseCase{cache: cache, logger: logger}
}

// Execute は判定キャッシュを全消去する。次回以降の判定はパーミッション表から再計算される。
func (uc *InvalidatePermissionCacheUseCase) Execute(ctx context.Context) {
	uc.cache.InvalidateAll()
	telemetry.LogWithTrace(ctx, uc.logger).Info("permission decision cache invalidated")
}
