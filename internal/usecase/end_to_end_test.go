package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/service"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/auth"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/cache"
)

const (
	e2eIssuer   = "https://auth.example/realms/k1s0"
	e2eAudience = "k1s0-api"
)

// staticFetcher は差し替え可能な jwk.Set を返す JWKSFetcher。
type staticFetcher struct {
	set   atomic.Pointer[jwk.Set]
	calls atomic.Int32
}

func (f *staticFetcher) FetchKeys(_ context.Context, _ string) (jwk.Set, error) {
	f.calls.Add(1)
	return *f.set.Load(), nil
}

func (f *staticFetcher) publish(set jwk.Set) {
	f.set.Store(&set)
}

type e2eSigner struct {
	kid  string
	priv *rsa.PrivateKey
}

func newE2ESigner(t *testing.T, kid string) *e2eSigner {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &e2eSigner{kid: kid, priv: priv}
}

func (s *e2eSigner) jwk(t *testing.T) jwk.Key {
	t.Helper()
	key, err := jwk.FromRaw(s.priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, s.kid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	return key
}

func (s *e2eSigner) sign(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	buf, err := json.Marshal(payload)
	require.NoError(t, err)
	hdrs := jws.NewHeaders()
	require.NoError(t, hdrs.Set(jws.KeyIDKey, s.kid))
	signed, err := jws.Sign(buf, jws.WithKey(jwa.RS256, s.priv, jws.WithProtectedHeaders(hdrs)))
	require.NoError(t, err)
	return string(signed)
}

func setOf(t *testing.T, signers ...*e2eSigner) jwk.Set {
	t.Helper()
	set := jwk.NewSet()
	for _, s := range signers {
		require.NoError(t, set.AddKey(s.jwk(t)))
	}
	return set
}

// recordingAudit は記録された監査入力を保持する AuditRecorder。
type recordingAudit struct {
	mu      sync.Mutex
	records []RecordAuditLogInput
}

func (r *recordingAudit) Execute(_ context.Context, input RecordAuditLogInput) (*RecordAuditLogOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, input)
	return &RecordAuditLogOutput{ID: "audit"}, nil
}

type authCore struct {
	clock      *testclock.Clock
	fetcher    *staticFetcher
	keys       *auth.KeySetCache
	validate   *ValidateTokenUseCase
	check      *CheckPermissionUseCase
	refresh    *RefreshSigningKeysUseCase
	invalidate *InvalidatePermissionCacheUseCase
	audit      *recordingAudit
	resolver   *countingResolver
}

// countingResolver は判定の再計算回数を数える。
type countingResolver struct {
	inner *service.PermissionResolver
	calls atomic.Int32
}

func (r *countingResolver) Resolve(q model.PermissionQuery) model.PermissionDecision {
	r.calls.Add(1)
	return r.inner.Resolve(q)
}

func newAuthCore(t *testing.T, initial jwk.Set) *authCore {
	t.Helper()
	clk := testclock.NewClock(time.Now())
	fetcher := &staticFetcher{}
	fetcher.publish(initial)

	keys := auth.NewKeySetCache("https://auth.example/certs", 10*time.Minute, fetcher,
		auth.WithClock(clk),
		auth.WithMinRefreshInterval(0),
	)
	verifier, err := auth.NewTokenVerifier(keys, auth.TokenVerifierConfig{
		Issuer:   e2eIssuer,
		Audience: e2eAudience,
	}, clk)
	require.NoError(t, err)

	resolver := &countingResolver{inner: service.NewPermissionResolver(nil)}
	decisions, err := cache.NewDecisionCache(resolver, 100, time.Minute, clk, nil)
	require.NoError(t, err)

	audit := &recordingAudit{}
	return &authCore{
		clock:      clk,
		fetcher:    fetcher,
		keys:       keys,
		validate:   NewValidateTokenUseCase(verifier, nil, nil),
		check:      NewCheckPermissionUseCase(decisions, audit, nil, nil),
		refresh:    NewRefreshSigningKeysUseCase(keys, nil),
		invalidate: NewInvalidatePermissionCacheUseCase(decisions, nil),
		audit:      audit,
		resolver:   resolver,
	}
}

func (c *authCore) payload(roles ...string) map[string]interface{} {
	now := c.clock.Now()
	r := make([]interface{}, 0, len(roles))
	for _, role := range roles {
		r = append(r, role)
	}
	return map[string]interface{}{
		"sub":          "u1",
		"iss":          e2eIssuer,
		"aud":          e2eAudience,
		"iat":          now.Unix(),
		"exp":          now.Add(5 * time.Minute).Unix(),
		"realm_access": map[string]interface{}{"roles": r},
	}
}

func TestAuthCore_ValidateThenCheckPermission(t *testing.T) {
	k1 := newE2ESigner(t, "k1")
	core := newAuthCore(t, setOf(t, k1))
	ctx := context.Background()

	claims, err := core.validate.Execute(ctx, k1.sign(t, core.payload("sys_auditor")))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, []string{"sys_auditor"}, claims.RealmRoles)

	out, err := core.check.Execute(ctx, CheckPermissionInput{
		Roles:      claims.RealmRoles,
		Permission: "write",
		Resource:   "audit_logs",
		Subject:    claims.Subject,
	})
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, "role 'sys_auditor' does not have 'write' permission on resource 'audit_logs'", out.Reason)

	out, err = core.check.Execute(ctx, CheckPermissionInput{
		Roles:      claims.RealmRoles,
		Permission: "read",
		Resource:   "audit_logs",
		Subject:    claims.Subject,
	})
	require.NoError(t, err)
	assert.True(t, out.Allowed)

	core.check.Wait()
	require.Len(t, core.audit.records, 2)
	results := map[string]RecordAuditLogInput{}
	for _, r := range core.audit.records {
		results[r.Action] = r
	}
	assert.Equal(t, model.AuditResultFailure, results["write"].Result)
	assert.Equal(t, out.Reason, results["read"].Reason)
	assert.Equal(t, "u1", results["write"].UserID)
	assert.Equal(t, "sys_auditor", results["write"].Metadata["roles"])
	assert.Equal(t, model.AuditResultSuccess, results["read"].Result)
	assert.Equal(t, int32(1), core.fetcher.calls.Load())
}

func TestAuthCore_KeyRotation(t *testing.T) {
	k1 := newE2ESigner(t, "k1")
	k2 := newE2ESigner(t, "k2")
	core := newAuthCore(t, setOf(t, k1))
	ctx := context.Background()

	_, err := core.validate.Execute(ctx, k1.sign(t, core.payload("sys_operator")))
	require.NoError(t, err)

	// IdP が k2 に切り替えた後、未知の kid をきっかけに再取得する
	core.fetcher.publish(setOf(t, k2))
	claims, err := core.validate.Execute(ctx, k2.sign(t, core.payload("sys_operator")))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, uint64(2), core.keys.Current().Generation())

	// k1 は最新の JWKS に存在しないため未知の鍵になる
	_, err = core.validate.Execute(ctx, k1.sign(t, core.payload("sys_operator")))
	assert.ErrorIs(t, err, model.ErrTokenUnknownKey)
}

func TestAuthCore_ExpiryAndRefreshEntryPoints(t *testing.T) {
	k1 := newE2ESigner(t, "k1")
	core := newAuthCore(t, setOf(t, k1))
	ctx := context.Background()

	token := k1.sign(t, core.payload("sys_admin"))
	_, err := core.validate.Execute(ctx, token)
	require.NoError(t, err)

	core.clock.Advance(6 * time.Minute)
	_, err = core.validate.Execute(ctx, token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)

	out, err := core.refresh.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, out.KeyIDs)
	assert.Greater(t, out.Generation, uint64(1))
}

func TestAuthCore_InvalidateRecomputesDecision(t *testing.T) {
	k1 := newE2ESigner(t, "k1")
	core := newAuthCore(t, setOf(t, k1))
	ctx := context.Background()

	input := CheckPermissionInput{Roles: []string{"sys_operator"}, Permission: "read", Resource: "users"}
	for i := 0; i < 3; i++ {
		_, err := core.check.Execute(ctx, input)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), core.resolver.calls.Load())

	core.invalidate.Execute(ctx)
	_, err := core.check.Execute(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, int32(2), core.resolver.calls.Load())

	core.check.Wait()
}

