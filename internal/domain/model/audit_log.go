package model

import "time"

const (
	// AuditEventPermissionCheck はパーミッション判定の監査イベント種別。
	AuditEventPermissionCheck = "PERMISSION_CHECK"

	AuditResultSuccess = "SUCCESS"
	AuditResultFailure = "FAILURE"
)

// AuditLog は監査ログエントリを表す。
type AuditLog struct {
	ID         string            `json:"id" db:"id"`
	EventType  string            `json:"event_type" db:"event_type"`
	UserID     string            `json:"user_id" db:"user_id"`
	RequestID  string            `json:"request_id" db:"request_id"`
	Resource   string            `json:"resource" db:"resource"`
	Action     string            `json:"action" db:"action"`
	Result     string            `json:"result" db:"result"`
	Reason     string            `json:"reason,omitempty" db:"reason"`
	Metadata   map[string]string `json:"metadata" db:"metadata"`
	RecordedAt time.Time         `json:"recorded_at" db:"recorded_at"`
}
