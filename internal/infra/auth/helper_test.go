package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/require"
)

// --- テストヘルパー ---

const (
	testIssuer   = "https://auth.example/realms/k1s0"
	testAudience = "k1s0-api"
	testJWKSURI  = "https://auth.example/realms/k1s0/protocol/openid-connect/certs"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// testSigner はテスト用の RSA 秘密鍵と kid の組。
type testSigner struct {
	kid  string
	priv *rsa.PrivateKey
}

func newTestSigner(t *testing.T, kid string) *testSigner {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &testSigner{kid: kid, priv: priv}
}

// publicJWK は公開鍵を JWK として返す。
func (s *testSigner) publicJWK(t *testing.T) jwk.Key {
	t.Helper()
	key, err := jwk.FromRaw(s.priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, s.kid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))
	return key
}

// sign は payload を RS256 で署名したコンパクト形式のトークンを返す。
func (s *testSigner) sign(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	return s.signWith(t, jwa.RS256, s.priv, s.kid, payload)
}

func (s *testSigner) signWith(t *testing.T, alg jwa.SignatureAlgorithm, key interface{}, kid string, payload map[string]interface{}) string {
	t.Helper()
	buf, err := json.Marshal(payload)
	require.NoError(t, err)

	hdrs := jws.NewHeaders()
	if kid != "" {
		require.NoError(t, hdrs.Set(jws.KeyIDKey, kid))
	}
	require.NoError(t, hdrs.Set(jws.TypeKey, "JWT"))

	signed, err := jws.Sign(buf, jws.WithKey(alg, key, jws.WithProtectedHeaders(hdrs)))
	require.NoError(t, err)
	return string(signed)
}

// keySetOf は signer の公開鍵からなる jwk.Set を返す。
func keySetOf(t *testing.T, signers ...*testSigner) jwk.Set {
	t.Helper()
	set := jwk.NewSet()
	for _, s := range signers {
		require.NoError(t, set.AddKey(s.publicJWK(t)))
	}
	return set
}

// validPayload は testEpoch 時点で有効なクレームを返す。
func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"sub":                "u1",
		"iss":                testIssuer,
		"aud":                testAudience,
		"exp":                testEpoch.Add(15 * time.Minute).Unix(),
		"iat":                testEpoch.Unix(),
		"jti":                "token-uuid-5678",
		"typ":                "Bearer",
		"azp":                "react-spa",
		"scope":              "openid profile email",
		"preferred_username": "taro.yamada",
		"email":              "taro.yamada@example.com",
		"realm_access": map[string]interface{}{
			"roles": []interface{}{"sys_operator", "sys_auditor", "sys_operator"},
		},
		"resource_access": map[string]interface{}{
			"order-service": map[string]interface{}{
				"roles": []interface{}{"write", "read"},
			},
		},
		"tier_access": []interface{}{"system", "business"},
	}
}

// fakeFetcher は呼び出し回数を数える JWKSFetcher。
type fakeFetcher struct {
	calls atomic.Int32

	mu  sync.Mutex
	fn  func(ctx context.Context) (jwk.Set, error)
	uri string
}

func newFakeFetcher(fn func(ctx context.Context) (jwk.Set, error)) *fakeFetcher {
	return &fakeFetcher{fn: fn}
}

func (f *fakeFetcher) FetchKeys(ctx context.Context, uri string) (jwk.Set, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.uri = uri
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeFetcher) set(fn func(ctx context.Context) (jwk.Set, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func returning(set jwk.Set, err error) func(ctx context.Context) (jwk.Set, error) {
	return func(context.Context) (jwk.Set, error) { return set, err }
}
