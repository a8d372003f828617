package presenter

import (
	"time"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
)

const (
	CodeValidationFailed = "SYS_AUTH_VALIDATION_FAILED"
	CodeTokenInvalid     = "SYS_AUTH_TOKEN_INVALID"
	CodeKeysUnavailable  = "SYS_AUTH_SIGNING_KEYS_UNAVAILABLE"
	CodeInternalError    = "SYS_AUTH_INTERNAL_ERROR"
	tokenErrorCodePrefix = "SYS_AUTH_TOKEN_"
)

// ErrorBody はエラーレスポンスの本体。
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse はエラーレスポンスの表現。
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// TokenErrorCode はトークン検証エラーのエラーコードを返す。
// 例: 期限切れは SYS_AUTH_TOKEN_EXPIRED。
func TokenErrorCode(err error) string {
	if kind, ok := model.TokenErrorKindOf(err); ok {
		return tokenErrorCodePrefix + string(kind)
	}
	return CodeTokenInvalid
}

// ClaimsResponse は検証済みクレームのレスポンス表現。
type ClaimsResponse struct {
	Sub               string              `json:"sub"`
	Iss               string              `json:"iss"`
	Aud               []string            `json:"aud"`
	Exp               int64               `json:"exp"`
	Iat               int64               `json:"iat"`
	Jti               string              `json:"jti,omitempty"`
	PreferredUsername string              `json:"preferred_username,omitempty"`
	Email             string              `json:"email,omitempty"`
	RealmRoles        []string            `json:"realm_roles"`
	ResourceRoles     map[string][]string `json:"resource_roles,omitempty"`
	TierAccess        []string            `json:"tier_access,omitempty"`
}

// NewClaimsResponse は Claims からレスポンスを作成する。
func NewClaimsResponse(c *model.Claims) ClaimsResponse {
	return ClaimsResponse{
		Sub:               c.Subject,
		Iss:               c.Issuer,
		Aud:               c.Audience,
		Exp:               c.ExpiresAt.Unix(),
		Iat:               c.IssuedAt.Unix(),
		Jti:               c.TokenID,
		PreferredUsername: c.Username,
		Email:             c.Email,
		RealmRoles:        c.RealmRoles,
		ResourceRoles:     c.ResourceRoles,
		TierAccess:        c.TierAccess,
	}
}

// IntrospectResponse は RFC 7662 形式のイントロスペクション応答。
// 無効なトークンの場合は Active=false のみを返す。
type IntrospectResponse struct {
	Active      bool     `json:"active"`
	Sub         string   `json:"sub,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
	Username    string   `json:"username,omitempty"`
	TokenType   string   `json:"token_type,omitempty"`
	Exp         int64    `json:"exp,omitempty"`
	Iat         int64    `json:"iat,omitempty"`
	Iss         string   `json:"iss,omitempty"`
	Aud         []string `json:"aud,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	RealmAccess *Roles   `json:"realm_access,omitempty"`
}

// Roles はロール一覧の表現。
type Roles struct {
	Roles []string `json:"roles"`
}

// NewIntrospectResponse は Claims からイントロスペクション応答を作成する。
func NewIntrospectResponse(c *model.Claims) IntrospectResponse {
	if c == nil {
		return IntrospectResponse{Active: false}
	}
	return IntrospectResponse{
		Active:      true,
		Sub:         c.Subject,
		ClientID:    c.AuthorizedParty,
		Username:    c.Username,
		TokenType:   c.TokenType,
		Exp:         c.ExpiresAt.Unix(),
		Iat:         c.IssuedAt.Unix(),
		Iss:         c.Issuer,
		Aud:         c.Audience,
		Scope:       c.Scope,
		RealmAccess: &Roles{Roles: c.RealmRoles},
	}
}

// KeySetResponse は JWKS 再取得結果のレスポンス表現。
type KeySetResponse struct {
	Generation  uint64   `json:"generation"`
	KeyCount    int      `json:"key_count"`
	KeyIDs      []string `json:"kids"`
	RefreshedAt string   `json:"refreshed_at"`
}

// NewKeySetResponse は KeySet の概要からレスポンスを作成する。
func NewKeySetResponse(generation uint64, kids []string, refreshedAt time.Time) KeySetResponse {
	return KeySetResponse{
		Generation:  generation,
		KeyCount:    len(kids),
		KeyIDs:      kids,
		RefreshedAt: refreshedAt.UTC().Format(time.RFC3339),
	}
}
