package model

import (
	"fmt"
	"sort"
	"time"
)

// Claims は署名検証・クレーム検証を通過したトークンのペイロード。
// TokenVerifier が検証成功時にのみ生成し、部分的に埋まった状態では返さない。
type Claims struct {
	Subject       string              `json:"sub"`
	Issuer        string              `json:"iss"`
	Audience      []string            `json:"aud"`
	ExpiresAt     time.Time           `json:"exp"`
	IssuedAt      time.Time           `json:"iat"`
	TokenID       string              `json:"jti"`
	Username      string              `json:"preferred_username"`
	Email         string              `json:"email"`
	RealmRoles    []string            `json:"realm_roles"`
	ResourceRoles map[string][]string `json:"resource_roles"`
	TierAccess    []string            `json:"tier_access"`

	// Keycloak 固有の付随情報（introspection 応答用）。
	TokenType       string `json:"typ,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
	Scope           string `json:"scope,omitempty"`
}

// HasRealmRole はレルムロールを保持しているかを返す。
func (c *Claims) HasRealmRole(role string) bool {
	i := sort.SearchStrings(c.RealmRoles, role)
	return i < len(c.RealmRoles) && c.RealmRoles[i] == role
}

// ResourceRolesFor はリソース（クライアント）固有のロールを返す。
func (c *Claims) ResourceRolesFor(resource string) []string {
	return c.ResourceRoles[resource]
}

// String は Claims のデバッグ用文字列を返す。
func (c *Claims) String() string {
	return fmt.Sprintf("Claims{sub=%s, iss=%s, aud=%v, username=%s, email=%s}",
		c.Subject, c.Issuer, c.Audience, c.Username, c.Email)
}

// NormalizeRoles はロール集合を重複排除・辞書順ソートした新しいスライスで返す。
func NormalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
