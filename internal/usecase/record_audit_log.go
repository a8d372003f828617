package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/repository"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

// AuditEventPublisher は監査イベントの非同期配信インターフェース。
type AuditEventPublisher interface {
	Publish(ctx context.Context, log *model.AuditLog) error
}

// RecordAuditLogUseCase は監査ログ記録ユースケース。
// auditRepo・publisher はどちらも nil を許容し、設定されているものにだけ記録する。
type RecordAuditLogUseCase struct {
	auditRepo repository.AuditLogRepository
	publisher AuditEventPublisher
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// NewRecordAuditLogUseCase は新しい RecordAuditLogUseCase を作成する。
func NewRecordAuditLogUseCase(
	auditRepo repository.AuditLogRepository,
	publisher AuditEventPublisher,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) *RecordAuditLogUseCase {
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	return &RecordAuditLogUseCase{
		auditRepo: auditRepo,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// RecordAuditLogInput は監査ログ記録の入力パラメータ。
type RecordAuditLogInput struct {
	EventType string            `json:"event_type" validate:"required"`
	UserID    string            `json:"user_id"`
	RequestID string            `json:"request_id"`
	Resource  string            `json:"resource"`
	Action    string            `json:"action"`
	Result    string            `json:"result" validate:"required,oneof=SUCCESS FAILURE"`
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata"`
}

// RecordAuditLogOutput は監査ログ記録の出力。
type RecordAuditLogOutput struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Execute は監査ログエントリを記録する。
// DB への保存失敗はエラーとして返し、Kafka への配信失敗はログに残して無視する。
func (uc *RecordAuditLogUseCase) Execute(ctx context.Context, input RecordAuditLogInput) (*RecordAuditLogOutput, error) {
	now := time.Now().UTC()
	auditLog := &model.AuditLog{
		ID:         uuid.New().String(),
		EventType:  input.EventType,
		UserID:     input.UserID,
		RequestID:  input.RequestID,
		Resource:   input.Resource,
		Action:     input.Action,
		Result:     input.Result,
		Reason:     input.Reason,
		Metadata:   input.Metadata,
		RecordedAt: now,
	}

	if uc.auditRepo != nil {
		if err := uc.auditRepo.Create(ctx, auditLog); err != nil {
			uc.metrics.RecordAuditPublishFailure()
			return nil, fmt.Errorf("failed to store audit log: %w", err)
		}
	}

	if uc.publisher != nil {
		if err := uc.publisher.Publish(ctx, auditLog); err != nil {
			uc.metrics.RecordAuditPublishFailure()
			telemetry.LogWithTrace(ctx, uc.logger).Warn("failed to publish audit event",
				slog.String("audit_id", auditLog.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &RecordAuditLogOutput{
		ID:         auditLog.ID,
		RecordedAt: now,
	}, nil
}
