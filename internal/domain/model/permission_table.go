package model

import "sort"

// DefaultAdminRole は全リソース・全アクションを暗黙に許可する唯一のロール名。
const DefaultAdminRole = "admin"

// PermissionTable は起動時に設定から構築する不変のロール・パーミッション表。
//
//	roles:     ロール -> 付与アクション（リソース共通の階層定義）
//	resources: リソース -> ロール -> 付与アクション（リソース固有の上書き）
//
// resources に登録されたリソースのみを既知リソースとして扱う。
type PermissionTable struct {
	adminRole string
	roles     map[string]ActionSet
	resources map[string]map[string]ActionSet
}

// NewPermissionTable は PermissionTable を構築する。adminRole が空の場合は DefaultAdminRole を使う。
func NewPermissionTable(adminRole string, roles map[string][]Action, resources map[string]map[string][]Action) *PermissionTable {
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}
	t := &PermissionTable{
		adminRole: adminRole,
		roles:     make(map[string]ActionSet, len(roles)),
		resources: make(map[string]map[string]ActionSet, len(resources)),
	}
	for role, actions := range roles {
		t.roles[role] = NewActionSet(actions...)
	}
	for resource, overrides := range resources {
		m := make(map[string]ActionSet, len(overrides))
		for role, actions := range overrides {
			m[role] = NewActionSet(actions...)
		}
		t.resources[resource] = m
	}
	return t
}

func (t *PermissionTable) AdminRole() string { return t.adminRole }

// HasResource は既知リソースかを返す。
func (t *PermissionTable) HasResource(resource string) bool {
	_, ok := t.resources[resource]
	return ok
}

// Granted は role が resource に対して持つアクション集合を返す。
// リソース固有の上書きがあればそれを優先する。
func (t *PermissionTable) Granted(resource, role string) ActionSet {
	if overrides, ok := t.resources[resource]; ok {
		if set, ok := overrides[role]; ok {
			return set
		}
	}
	return t.roles[role]
}

// Resources は既知リソースをソート済みで返す。
func (t *PermissionTable) Resources() []string {
	out := make([]string, 0, len(t.resources))
	for r := range t.resources {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
