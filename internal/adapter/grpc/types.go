package grpc

// proto 生成コードが未生成のため、auth_service.proto に対応する Go 構造体を手動定義する。
// buf generate 後にこのファイルは生成コードに置き換える。

// --- ValidateToken ---

// ValidateTokenRequest はトークン検証リクエスト。
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse はトークン検証レスポンス。
// 検証失敗は gRPC エラーではなく Valid=false と ErrorCode で返す。
type ValidateTokenResponse struct {
	Valid        bool           `json:"valid"`
	Claims       *PbTokenClaims `json:"claims,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// PbTokenClaims は proto の TokenClaims に対応する構造体。
type PbTokenClaims struct {
	Sub               string                    `json:"sub"`
	Iss               string                    `json:"iss"`
	Aud               []string                  `json:"aud"`
	Exp               int64                     `json:"exp"`
	Iat               int64                     `json:"iat"`
	Jti               string                    `json:"jti,omitempty"`
	PreferredUsername string                    `json:"preferred_username,omitempty"`
	Email             string                    `json:"email,omitempty"`
	RealmAccess       *PbRealmAccess            `json:"realm_access,omitempty"`
	ResourceAccess    map[string]*PbClientRoles `json:"resource_access,omitempty"`
	TierAccess        []string                  `json:"tier_access,omitempty"`
}

// PbRealmAccess は proto の RealmAccess に対応する構造体。
type PbRealmAccess struct {
	Roles []string `json:"roles"`
}

// PbClientRoles は proto の ClientRoles に対応する構造体。
type PbClientRoles struct {
	Roles []string `json:"roles"`
}

// --- Permission ---

// CheckPermissionRequest はパーミッション確認リクエスト。
type CheckPermissionRequest struct {
	UserId     string   `json:"user_id,omitempty"`
	Roles      []string `json:"roles"`
	Permission string   `json:"permission"`
	Resource   string   `json:"resource"`
}

// CheckPermissionResponse はパーミッション確認レスポンス。
type CheckPermissionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
