package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
)

func TestPermissionResolver_Resolve(t *testing.T) {
	r := NewPermissionResolver(nil)

	tests := []struct {
		name       string
		action     model.Action
		resource   string
		roles      []string
		wantAllow  bool
		wantReason string
	}{
		{
			name:      "sys_admin は全リソースに対して全権限を持つ",
			action:    model.ActionAdmin,
			resource:  "users",
			roles:     []string{"sys_admin"},
			wantAllow: true,
		},
		{
			name:      "sys_admin は audit_logs を delete 可能",
			action:    model.ActionDelete,
			resource:  "audit_logs",
			roles:     []string{"sys_admin"},
			wantAllow: true,
		},
		{
			name:      "sys_operator は users を read 可能",
			action:    model.ActionRead,
			resource:  "users",
			roles:     []string{"sys_operator"},
			wantAllow: true,
		},
		{
			name:      "sys_operator は audit_logs を write 可能",
			action:    model.ActionWrite,
			resource:  "audit_logs",
			roles:     []string{"sys_operator"},
			wantAllow: true,
		},
		{
			name:       "sys_operator は users を write 不可（リソース固有の上書き）",
			action:     model.ActionWrite,
			resource:   "users",
			roles:      []string{"sys_operator"},
			wantAllow:  false,
			wantReason: "role 'sys_operator' does not have 'write' permission on resource 'users'",
		},
		{
			name:      "sys_auditor は audit_logs を read 可能",
			action:    model.ActionRead,
			resource:  "audit_logs",
			roles:     []string{"sys_auditor"},
			wantAllow: true,
		},
		{
			name:       "sys_auditor は audit_logs を write 不可",
			action:     model.ActionWrite,
			resource:   "audit_logs",
			roles:      []string{"sys_auditor"},
			wantAllow:  false,
			wantReason: "role 'sys_auditor' does not have 'write' permission on resource 'audit_logs'",
		},
		{
			name:      "複数ロールの付与アクションは和集合で評価される",
			action:    model.ActionWrite,
			resource:  "auth_config",
			roles:     []string{"sys_auditor", "sys_operator"},
			wantAllow: true,
		},
		{
			name:      "admin ロールは未知のリソースでも許可",
			action:    model.ActionDelete,
			resource:  "anything",
			roles:     []string{"viewer", "admin"},
			wantAllow: true,
		},
		{
			name:       "sys_admin でも未知のリソースは拒否",
			action:     model.ActionRead,
			resource:   "anything",
			roles:      []string{"sys_admin"},
			wantAllow:  false,
			wantReason: "unknown resource 'anything'",
		},
		{
			name:       "未知のロールは拒否",
			action:     model.ActionRead,
			resource:   "users",
			roles:      []string{"unknown_role"},
			wantAllow:  false,
			wantReason: "role 'unknown_role' does not have 'read' permission on resource 'users'",
		},
		{
			name:       "ロールなしは拒否",
			action:     model.ActionRead,
			resource:   "users",
			roles:      []string{},
			wantAllow:  false,
			wantReason: "no roles present",
		},
		{
			name:       "拒否理由は辞書順で先頭のロールを使う",
			action:     model.ActionDelete,
			resource:   "users",
			roles:      []string{"sys_operator", "sys_auditor"},
			wantAllow:  false,
			wantReason: "role 'sys_auditor' does not have 'delete' permission on resource 'users'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(model.NewPermissionQuery(tt.roles, tt.resource, tt.action))
			assert.Equal(t, tt.wantAllow, d.Allowed)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestPermissionResolver_DeterministicReason(t *testing.T) {
	r := NewPermissionResolver(nil)
	q := model.PermissionQuery{Roles: []string{"auditor"}, Resource: "audit_logs", Action: model.ActionWrite}

	first := r.Resolve(q)
	assert.False(t, first.Allowed)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, r.Resolve(q))
	}

	unsorted := model.PermissionQuery{Roles: []string{"z_role", "b_role", "m_role"}, Resource: "users", Action: model.ActionAdmin}
	d := r.Resolve(unsorted)
	assert.Equal(t, "role 'b_role' does not have 'admin' permission on resource 'users'", d.Reason)
}

func TestPermissionResolver_CustomAdminRole(t *testing.T) {
	table := model.NewPermissionTable("root", nil, map[string]map[string][]model.Action{"users": {}})
	r := NewPermissionResolver(table)

	assert.True(t, r.Resolve(model.NewPermissionQuery([]string{"root"}, "unknown", model.ActionAdmin)).Allowed)
	assert.False(t, r.Resolve(model.NewPermissionQuery([]string{"admin"}, "users", model.ActionRead)).Allowed)
	assert.Same(t, table, r.Table())
}

func TestDefaultPermissionTable_AdminRole(t *testing.T) {
	r := NewPermissionResolver(DefaultPermissionTable("superuser"))

	assert.Equal(t, "superuser", r.Table().AdminRole())
	assert.True(t, r.Resolve(model.NewPermissionQuery([]string{"superuser"}, "users", model.ActionDelete)).Allowed)
	assert.False(t, r.Resolve(model.NewPermissionQuery([]string{"admin"}, "users", model.ActionDelete)).Allowed)
	// 既定のロール階層はそのまま使われる
	assert.True(t, r.Resolve(model.NewPermissionQuery([]string{"sys_admin"}, "users", model.ActionDelete)).Allowed)
}
