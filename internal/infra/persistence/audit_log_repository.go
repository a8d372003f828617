package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/repository"
)

var _ repository.AuditLogRepository = (*AuditLogRepositoryImpl)(nil)

// AuditLogRepositoryImpl は AuditLogRepository の PostgreSQL 実装。
type AuditLogRepositoryImpl struct {
	db *DB
}

// NewAuditLogRepository は新しい AuditLogRepositoryImpl を作成する。
func NewAuditLogRepository(db *DB) *AuditLogRepositoryImpl {
	return &AuditLogRepositoryImpl{db: db}
}

// Create は監査ログエントリを PostgreSQL に保存する。
func (r *AuditLogRepositoryImpl) Create(ctx context.Context, log *model.AuditLog) error {
	metadataJSON, err := json.Marshal(log.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO audit_logs (id, event_type, user_id, request_id, resource, action, result, reason, metadata, recorded_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.conn.ExecContext(ctx, query,
		log.ID, log.EventType, log.UserID, log.RequestID,
		log.Resource, log.Action, log.Result, log.Reason, metadataJSON, log.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}
