package repository

import (
	"context"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
)

// AuditLogRepository は監査ログの永続化インターフェース。
type AuditLogRepository interface {
	// Create は監査ログエントリを作成する。
	Create(ctx context.Context, log *model.AuditLog) error
}
