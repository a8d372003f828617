package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/repository"
)

// DefaultClockSkew は iat / nbf の検証に許容する時刻のずれ。
const DefaultClockSkew = 30 * time.Second

// ErrInsecureAlgorithm は許可アルゴリズムに none や共通鍵方式が含まれている場合のエラー。
var ErrInsecureAlgorithm = errors.New("insecure signature algorithm")

var asymmetricAlgorithms = map[jwa.SignatureAlgorithm]struct{}{
	jwa.RS256: {}, jwa.RS384: {}, jwa.RS512: {},
	jwa.PS256: {}, jwa.PS384: {}, jwa.PS512: {},
	jwa.ES256: {}, jwa.ES384: {}, jwa.ES512: {},
	jwa.EdDSA: {},
}

// TokenVerifierConfig は TokenVerifier の検証設定。
type TokenVerifierConfig struct {
	Issuer            string
	Audience          string
	AllowedAlgorithms []string
	ClockSkew         time.Duration
}

// TokenVerifier は署名付きトークンを検証し、Claims を返す。
type TokenVerifier struct {
	keys     repository.SigningKeyRepository
	issuer   string
	audience string
	allowed  map[jwa.SignatureAlgorithm]struct{}
	skew     time.Duration
	clock    clock.Clock
}

// NewTokenVerifier は TokenVerifier を生成する。
// AllowedAlgorithms が空の場合は RS256 のみを許可する。clk が nil の場合は実時刻を使う。
func NewTokenVerifier(keys repository.SigningKeyRepository, cfg TokenVerifierConfig, clk clock.Clock) (*TokenVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	algs := cfg.AllowedAlgorithms
	if len(algs) == 0 {
		algs = []string{jwa.RS256.String()}
	}

	allowed := make(map[jwa.SignatureAlgorithm]struct{}, len(algs))
	for _, a := range algs {
		alg := jwa.SignatureAlgorithm(a)
		if alg == jwa.NoSignature || strings.HasPrefix(strings.ToUpper(a), "HS") {
			return nil, fmt.Errorf("%w: %s", ErrInsecureAlgorithm, a)
		}
		if _, ok := asymmetricAlgorithms[alg]; !ok {
			return nil, fmt.Errorf("unsupported signature algorithm: %s", a)
		}
		allowed[alg] = struct{}{}
	}

	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &TokenVerifier{
		keys:     keys,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		allowed:  allowed,
		skew:     skew,
		clock:    clk,
	}, nil
}

// VerifyToken はトークン文字列を検証する。
// 構造 → アルゴリズム → 鍵 → 署名 → exp / iss / aud / iat / nbf の順に検証し、
// 最初に失敗した段階の TokenError を返す。
// 鍵の取得待ちの間に ctx がキャンセルされた場合は ctx.Err() を返す。
func (v *TokenVerifier) VerifyToken(ctx context.Context, token string) (*model.Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, model.NewTokenError(model.TokenMalformed, "token must have three segments", nil)
	}
	msg, err := jws.ParseString(token)
	if err != nil {
		return nil, model.NewTokenError(model.TokenMalformed, "", err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, model.NewTokenError(model.TokenMalformed, "expected exactly one signature", nil)
	}
	hdr := sigs[0].ProtectedHeaders()

	alg := hdr.Algorithm()
	if _, ok := v.allowed[alg]; !ok {
		return nil, model.NewTokenError(model.TokenUnsupportedAlgorithm, "alg="+alg.String(), nil)
	}

	kid := hdr.KeyID()
	if kid == "" {
		return nil, model.NewTokenError(model.TokenUnknownKey, "missing kid", nil)
	}
	key, err := v.keys.GetKey(ctx, kid)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewTokenError(model.TokenUnknownKey, "", err)
	}
	if key.Algorithm != "" && key.Algorithm != alg.String() {
		return nil, model.NewTokenError(model.TokenUnsupportedAlgorithm,
			fmt.Sprintf("alg=%s does not match key alg=%s", alg, key.Algorithm), nil)
	}

	payload, err := jws.Verify([]byte(token), jws.WithKey(alg, key.PublicKey))
	if err != nil {
		return nil, model.NewTokenError(model.TokenInvalidSignature, "", err)
	}

	parsed := jwt.New()
	if err := json.Unmarshal(payload, parsed); err != nil {
		return nil, model.NewTokenError(model.TokenMalformed, "invalid payload", err)
	}

	if err := v.validate(parsed); err != nil {
		return nil, err
	}
	return extractClaims(parsed), nil
}

func (v *TokenVerifier) validate(t jwt.Token) error {
	now := v.clock.Now()

	exp := t.Expiration()
	if exp.IsZero() {
		return model.NewTokenError(model.TokenExpired, "missing exp", nil)
	}
	if !exp.After(now) {
		return model.NewTokenError(model.TokenExpired, "exp="+exp.UTC().Format(time.RFC3339), nil)
	}

	if t.Issuer() != v.issuer {
		return model.NewTokenError(model.TokenInvalidIssuer, fmt.Sprintf("iss=%q", t.Issuer()), nil)
	}

	if !containsString(t.Audience(), v.audience) {
		return model.NewTokenError(model.TokenInvalidAudience, fmt.Sprintf("aud=%v", t.Audience()), nil)
	}

	limit := now.Add(v.skew)
	if iat := t.IssuedAt(); !iat.IsZero() && iat.After(limit) {
		return model.NewTokenError(model.TokenIssuedInFuture, "iat="+iat.UTC().Format(time.RFC3339), nil)
	}
	if nbf := t.NotBefore(); !nbf.IsZero() && nbf.After(limit) {
		return model.NewTokenError(model.TokenNotYetValid, "nbf="+nbf.UTC().Format(time.RFC3339), nil)
	}
	return nil
}

// extractClaims は検証済みの jwt.Token から Claims を生成する。
func extractClaims(t jwt.Token) *model.Claims {
	c := &model.Claims{
		Subject:       t.Subject(),
		Issuer:        t.Issuer(),
		Audience:      t.Audience(),
		ExpiresAt:     t.Expiration(),
		IssuedAt:      t.IssuedAt(),
		TokenID:       t.JwtID(),
		RealmRoles:    []string{},
		ResourceRoles: map[string][]string{},
	}

	c.TokenType = stringClaim(t, "typ")
	c.AuthorizedParty = stringClaim(t, "azp")
	c.Scope = stringClaim(t, "scope")
	c.Username = stringClaim(t, "preferred_username")
	c.Email = stringClaim(t, "email")

	// realm_access
	if v, ok := t.Get("realm_access"); ok {
		if m, ok := v.(map[string]interface{}); ok {
			c.RealmRoles = model.NormalizeRoles(parseStringSlice(m["roles"]))
		}
	}

	// resource_access
	if v, ok := t.Get("resource_access"); ok {
		if m, ok := v.(map[string]interface{}); ok {
			for resource, val := range m {
				am, ok := val.(map[string]interface{})
				if !ok {
					continue
				}
				c.ResourceRoles[resource] = model.NormalizeRoles(parseStringSlice(am["roles"]))
			}
		}
	}

	// tier_access
	if v, ok := t.Get("tier_access"); ok {
		c.TierAccess = parseStringSlice(v)
	}

	return c
}

func stringClaim(t jwt.Token, name string) string {
	v, ok := t.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// parseStringSlice はインターフェースを []string に変換する。
func parseStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
