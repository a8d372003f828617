package service

import (
	"fmt"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
)

const reasonNoRoles = "no roles present"

// PermissionResolver はロール一覧からパーミッションを判定するドメインサービス。
// 副作用を持たず、同じ入力には常に同じ判定を返す。
type PermissionResolver struct {
	table *model.PermissionTable
}

// NewPermissionResolver は新しい PermissionResolver を作成する。table が nil の場合は DefaultPermissionTable を使う。
func NewPermissionResolver(table *model.PermissionTable) *PermissionResolver {
	if table == nil {
		table = DefaultPermissionTable(model.DefaultAdminRole)
	}
	return &PermissionResolver{table: table}
}

// Table は判定に使うパーミッション表を返す。
func (r *PermissionResolver) Table() *model.PermissionTable {
	return r.table
}

// Resolve はパーミッションを判定する。
// ロールは辞書順に評価し、拒否理由には先頭のロールを用いる。
func (r *PermissionResolver) Resolve(q model.PermissionQuery) model.PermissionDecision {
	roles := model.NormalizeRoles(q.Roles)
	if len(roles) == 0 {
		return model.Deny(reasonNoRoles)
	}

	admin := r.table.AdminRole()
	for _, role := range roles {
		if role == admin {
			return model.Allow()
		}
	}

	if !r.table.HasResource(q.Resource) {
		return model.Deny(fmt.Sprintf("unknown resource '%s'", q.Resource))
	}

	var granted model.ActionSet
	for _, role := range roles {
		granted = granted.Union(r.table.Granted(q.Resource, role))
	}
	if granted.Has(q.Action) {
		return model.Allow()
	}

	return model.Deny(fmt.Sprintf("role '%s' does not have '%s' permission on resource '%s'",
		roles[0], q.Action, q.Resource))
}

// DefaultPermissionTable はデフォルトのロール・パーミッション表を返す。
// adminRole が空の場合は DefaultAdminRole を全許可ロールとする。
func DefaultPermissionTable(adminRole string) *model.PermissionTable {
	return model.NewPermissionTable(adminRole,
		map[string][]model.Action{
			"sys_admin":    {model.ActionRead, model.ActionWrite, model.ActionDelete, model.ActionAdmin},
			"sys_operator": {model.ActionRead, model.ActionWrite},
			"sys_auditor":  {model.ActionRead},
		},
		map[string]map[string][]model.Action{
			"users": {
				"sys_operator": {model.ActionRead},
			},
			"auth_config": {},
			"audit_logs":  {},
		},
	)
}
