package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/service"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

// countingResolver は呼び出し回数を数えて実際の判定に委譲する。
type countingResolver struct {
	calls atomic.Int32
	inner Resolver
}

func (r *countingResolver) Resolve(q model.PermissionQuery) model.PermissionDecision {
	r.calls.Add(1)
	return r.inner.Resolve(q)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, size int) (*DecisionCache, *countingResolver, *testclock.Clock, *telemetry.Metrics) {
	t.Helper()
	r := &countingResolver{inner: service.NewPermissionResolver(nil)}
	clk := testclock.NewClock(t0)
	m := telemetry.NewMetrics("auth-core", prometheus.NewRegistry())
	c, err := NewDecisionCache(r, size, 60*time.Second, clk, m)
	require.NoError(t, err)
	return c, r, clk, m
}

func TestDecisionCache_HitWithinTTL(t *testing.T) {
	c, r, clk, m := newTestCache(t, 0)

	d := c.Resolve([]string{"sys_auditor"}, "audit_logs", model.ActionRead)
	assert.True(t, d.Allowed)

	clk.Advance(59 * time.Second)
	d = c.Resolve([]string{"sys_auditor"}, "audit_logs", model.ActionRead)
	assert.True(t, d.Allowed)

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionCacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionCacheLookups.WithLabelValues("miss")))
}

func TestDecisionCache_ExpiresAfterTTL(t *testing.T) {
	c, r, clk, _ := newTestCache(t, 0)

	c.Resolve([]string{"sys_auditor"}, "audit_logs", model.ActionWrite)

	clk.Advance(61 * time.Second)
	d := c.Resolve([]string{"sys_auditor"}, "audit_logs", model.ActionWrite)
	assert.False(t, d.Allowed)
	assert.Equal(t, "role 'sys_auditor' does not have 'write' permission on resource 'audit_logs'", d.Reason)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestDecisionCache_ExpiresExactlyAtTTL(t *testing.T) {
	c, r, clk, _ := newTestCache(t, 0)

	c.Resolve([]string{"sys_operator"}, "users", model.ActionRead)
	clk.Advance(60 * time.Second)
	c.Resolve([]string{"sys_operator"}, "users", model.ActionRead)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestDecisionCache_RoleOrderAndDuplicatesShareEntry(t *testing.T) {
	c, r, _, _ := newTestCache(t, 0)

	d1 := c.Resolve([]string{"sys_operator", "sys_auditor"}, "users", model.ActionWrite)
	d2 := c.Resolve([]string{"sys_auditor", "sys_operator", "sys_auditor"}, "users", model.ActionWrite)

	assert.Equal(t, d1, d2)
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestDecisionCache_DistinctKeys(t *testing.T) {
	c, r, _, _ := newTestCache(t, 0)

	c.Resolve([]string{"sys_operator"}, "users", model.ActionRead)
	c.Resolve([]string{"sys_operator"}, "users", model.ActionWrite)
	c.Resolve([]string{"sys_operator"}, "audit_logs", model.ActionRead)
	c.Resolve([]string{"sys_auditor"}, "users", model.ActionRead)

	assert.Equal(t, int32(4), r.calls.Load())
	assert.Equal(t, 4, c.Len())
}

func TestDecisionCache_InvalidateAll(t *testing.T) {
	c, r, _, m := newTestCache(t, 0)

	c.Resolve([]string{"sys_admin"}, "auth_config", model.ActionAdmin)
	c.Resolve([]string{"sys_admin"}, "auth_config", model.ActionAdmin)
	assert.Equal(t, int32(1), r.calls.Load())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())

	c.Resolve([]string{"sys_admin"}, "auth_config", model.ActionAdmin)
	assert.Equal(t, int32(2), r.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionCacheInvalidate))
}

func TestDecisionCache_BoundedSize(t *testing.T) {
	c, _, _, _ := newTestCache(t, 2)

	c.Resolve([]string{"a"}, "users", model.ActionRead)
	c.Resolve([]string{"b"}, "users", model.ActionRead)
	c.Resolve([]string{"c"}, "users", model.ActionRead)
	assert.Equal(t, 2, c.Len())
}

func TestDecisionCache_ConcurrentAccess(t *testing.T) {
	c, _, _, _ := newTestCache(t, 0)
	roles := [][]string{{"sys_admin"}, {"sys_operator"}, {"sys_auditor"}, {}}
	actions := []model.Action{model.ActionRead, model.ActionWrite, model.ActionDelete}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Resolve(roles[(i+j)%len(roles)], "audit_logs", actions[j%len(actions)])
				if j%50 == 0 {
					c.InvalidateAll()
				}
			}
		}(i)
	}
	wg.Wait()

	d := c.Resolve(nil, "audit_logs", model.ActionRead)
	assert.Equal(t, model.Deny("no roles present"), d)
}

// invalidatingResolver は判定の途中でキャッシュを全消去する。
type invalidatingResolver struct {
	cache *DecisionCache
	inner Resolver
	calls atomic.Int32
}

func (r *invalidatingResolver) Resolve(q model.PermissionQuery) model.PermissionDecision {
	if r.calls.Add(1) == 1 {
		r.cache.InvalidateAll()
	}
	return r.inner.Resolve(q)
}

func TestDecisionCache_InvalidateDuringResolveDropsResult(t *testing.T) {
	r := &invalidatingResolver{inner: service.NewPermissionResolver(nil)}
	c, err := NewDecisionCache(r, 0, 60*time.Second, testclock.NewClock(t0), nil)
	require.NoError(t, err)
	r.cache = c

	d := c.Resolve([]string{"sys_admin"}, "users", model.ActionRead)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, c.Len())

	c.Resolve([]string{"sys_admin"}, "users", model.ActionRead)
	assert.Equal(t, int32(2), r.calls.Load())
	assert.Equal(t, 1, c.Len())

	c.Resolve([]string{"sys_admin"}, "users", model.ActionRead)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestDecisionCache_SeparatorBytesDoNotShareEntry(t *testing.T) {
	c, r, _, _ := newTestCache(t, 0)

	d1 := c.Resolve([]string{"admin"}, "x\x1eusers", model.ActionDelete)
	d2 := c.Resolve([]string{"admin\x1ex"}, "users", model.ActionDelete)

	assert.True(t, d1.Allowed)
	assert.False(t, d2.Allowed)
	assert.Equal(t, "role 'admin\x1ex' does not have 'delete' permission on resource 'users'", d2.Reason)
	assert.Equal(t, int32(2), r.calls.Load())
	assert.Equal(t, 2, c.Len())
}
