package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAction は未定義のアクション文字列を受け取った場合のエラー。
var ErrInvalidAction = errors.New("invalid action")

// Action はリソースに対する操作種別。
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// AllActions は定義済みの全アクション。
var AllActions = []Action{ActionRead, ActionWrite, ActionDelete, ActionAdmin}

// ParseAction は文字列を Action に変換する。
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionRead, ActionWrite, ActionDelete, ActionAdmin:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

func (a Action) String() string { return string(a) }

func (a Action) bit() ActionSet {
	switch a {
	case ActionRead:
		return 1 << 0
	case ActionWrite:
		return 1 << 1
	case ActionDelete:
		return 1 << 2
	case ActionAdmin:
		return 1 << 3
	}
	return 0
}

// ActionSet は付与されたアクションの集合（ビット集合）。
type ActionSet uint8

// NewActionSet は ActionSet を生成する。
func NewActionSet(actions ...Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s |= a.bit()
	}
	return s
}

func (s ActionSet) Has(a Action) bool {
	b := a.bit()
	return b != 0 && s&b == b
}

func (s ActionSet) Union(o ActionSet) ActionSet { return s | o }

// Actions は集合に含まれるアクションを定義順で返す。
func (s ActionSet) Actions() []Action {
	out := make([]Action, 0, len(AllActions))
	for _, a := range AllActions {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// PermissionQuery はパーミッション判定の入力。
// Roles は NewPermissionQuery により重複排除・ソート済みになる。
type PermissionQuery struct {
	Roles    []string
	Resource string
	Action   Action
}

// NewPermissionQuery はロール集合を正規化した PermissionQuery を生成する。
func NewPermissionQuery(roles []string, resource string, action Action) PermissionQuery {
	return PermissionQuery{
		Roles:    NormalizeRoles(roles),
		Resource: resource,
		Action:   action,
	}
}

// CacheKey はロールの並び順に依存しないキャッシュキーを返す。
// 各要素を長さ付きで連結するため、区切り文字を含む値でも別のクエリと衝突しない。
func (q PermissionQuery) CacheKey() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(q.Roles)))
	b.WriteByte('#')
	for _, r := range q.Roles {
		writeLengthPrefixed(&b, r)
	}
	writeLengthPrefixed(&b, q.Resource)
	writeLengthPrefixed(&b, string(q.Action))
	return b.String()
}

func writeLengthPrefixed(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// PermissionDecision はパーミッション判定の結果。許可時は Reason が空。
type PermissionDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow は許可の判定を返す。
func Allow() PermissionDecision {
	return PermissionDecision{Allowed: true}
}

// Deny は拒否の判定を返す。
func Deny(reason string) PermissionDecision {
	return PermissionDecision{Allowed: false, Reason: reason}
}
