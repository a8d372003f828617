package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

const auditTimeout = 5 * time.Second

// DecisionResolver はパーミッション判定を返す。infra/cache.DecisionCache が実装する。
type DecisionResolver interface {
	Resolve(roles []string, resource string, action model.Action) model.PermissionDecision
}

// AuditRecorder は判定結果を監査ログとして記録する。RecordAuditLogUseCase が実装する。
type AuditRecorder interface {
	Execute(ctx context.Context, input RecordAuditLogInput) (*RecordAuditLogOutput, error)
}

// CheckPermissionInput はパーミッション確認の入力。
// Roles は認証済みトークン由来のものとして扱い、Subject・RequestID は監査記録にのみ使う。
type CheckPermissionInput struct {
	Roles      []string `json:"roles"`
	Permission string   `json:"permission" validate:"required"`
	Resource   string   `json:"resource" validate:"required"`
	Subject    string   `json:"subject,omitempty"`
	RequestID  string   `json:"-"`
}

// CheckPermissionOutput はパーミッション確認の出力。
type CheckPermissionOutput struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckPermissionUseCase はパーミッション確認ユースケース。
// 判定結果は呼び出し元を待たせずに監査記録へ渡す。
type CheckPermissionUseCase struct {
	resolver DecisionResolver
	audit    AuditRecorder
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	inflight sync.WaitGroup
}

// NewCheckPermissionUseCase は新しい CheckPermissionUseCase を作成する。audit は nil を許容する。
func NewCheckPermissionUseCase(resolver DecisionResolver, audit AuditRecorder, logger *slog.Logger, metrics *telemetry.Metrics) *CheckPermissionUseCase {
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	return &CheckPermissionUseCase{
		resolver: resolver,
		audit:    audit,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute はロールベースのアクセス制御判定を行う。
// 判定自体は失敗しないが、未定義のアクションやリソース未指定は入力エラーとして返す。
func (uc *CheckPermissionUseCase) Execute(ctx context.Context, input CheckPermissionInput) (*CheckPermissionOutput, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "CheckPermission")
	defer span.End()

	action, err := model.ParseAction(input.Permission)
	if err != nil {
		return nil, err
	}
	if input.Resource == "" {
		return nil, ErrResourceRequired
	}

	decision := uc.resolver.Resolve(input.Roles, input.Resource, action)
	uc.metrics.RecordPermissionCheck(decision.Allowed)
	span.SetAttributes(
		attribute.String("auth.resource", input.Resource),
		attribute.String("auth.action", action.String()),
		attribute.Bool("auth.allowed", decision.Allowed),
	)

	uc.recordAsync(ctx, input, action, decision)

	return &CheckPermissionOutput{
		Allowed: decision.Allowed,
		Reason:  decision.Reason,
	}, nil
}

// Wait は実行中の監査記録の完了を待つ。シャットダウン時に使う。
func (uc *CheckPermissionUseCase) Wait() {
	uc.inflight.Wait()
}

func (uc *CheckPermissionUseCase) recordAsync(ctx context.Context, input CheckPermissionInput, action model.Action, decision model.PermissionDecision) {
	if uc.audit == nil {
		return
	}

	result := model.AuditResultSuccess
	if !decision.Allowed {
		result = model.AuditResultFailure
	}
	record := RecordAuditLogInput{
		EventType: model.AuditEventPermissionCheck,
		UserID:    input.Subject,
		RequestID: input.RequestID,
		Resource:  input.Resource,
		Action:    action.String(),
		Result:    result,
		Reason:    decision.Reason,
		Metadata: map[string]string{
			"roles": strings.Join(model.NormalizeRoles(input.Roles), ","),
		},
	}

	// 呼び出し元のキャンセルに巻き込まれないようにする
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	uc.inflight.Add(1)
	go func() {
		defer uc.inflight.Done()
		defer cancel()
		if _, err := uc.audit.Execute(auditCtx, record); err != nil {
			telemetry.LogWithTrace(auditCtx, uc.logger).Warn("failed to record permission check",
				slog.String("resource", record.Resource),
				slog.String("action", record.Action),
				slog.String("error", err.Error()),
			)
		}
	}()
}
