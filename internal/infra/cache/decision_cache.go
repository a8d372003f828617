// Package cache はパーミッション判定結果のキャッシュを提供する。
package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/juju/clock"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

const (
	DefaultDecisionCacheSize = 10000
	DefaultDecisionCacheTTL  = 60 * time.Second
)

// Resolver はパーミッション判定を行う。domain/service.PermissionResolver が実装する。
type Resolver interface {
	Resolve(q model.PermissionQuery) model.PermissionDecision
}

type entry struct {
	decision  model.PermissionDecision
	expiresAt time.Time
}

// DecisionCache は (ロール集合, リソース, アクション) ごとに判定結果を TTL 付きで保持する。
// ロール集合は正規化してキーにするため、並び順や重複の違いは同じエントリになる。
//
// 判定は純粋な計算なので、同一キーへの同時ミスはそれぞれ Resolver を呼ぶ。
// InvalidateAll より前に始まった判定の結果は、破棄後のキャッシュには保存しない。
type DecisionCache struct {
	resolver Resolver
	entries  *lru.Cache[string, entry]
	ttl      time.Duration
	clock    clock.Clock
	metrics  *telemetry.Metrics

	mu         sync.RWMutex
	generation uint64
}

// NewDecisionCache は DecisionCache を作成する。size・ttl が 0 以下の場合は既定値を使う。
func NewDecisionCache(resolver Resolver, size int, ttl time.Duration, clk clock.Clock, metrics *telemetry.Metrics) (*DecisionCache, error) {
	if size <= 0 {
		size = DefaultDecisionCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDecisionCacheTTL
	}
	if clk == nil {
		clk = clock.WallClock
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	return &DecisionCache{
		resolver: resolver,
		entries:  entries,
		ttl:      ttl,
		clock:    clk,
		metrics:  metrics,
	}, nil
}

// Resolve はキャッシュ済みの判定を返す。ミスまたは期限切れの場合は Resolver で判定して保存する。
func (c *DecisionCache) Resolve(roles []string, resource string, action model.Action) model.PermissionDecision {
	q := model.NewPermissionQuery(roles, resource, action)
	key := q.CacheKey()
	now := c.clock.Now()

	if e, ok := c.entries.Get(key); ok && now.Before(e.expiresAt) {
		c.metrics.RecordDecisionCacheLookup(true)
		return e.decision
	}
	c.metrics.RecordDecisionCacheLookup(false)

	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	decision := c.resolver.Resolve(q)

	c.mu.RLock()
	if gen == c.generation {
		c.entries.Add(key, entry{decision: decision, expiresAt: now.Add(c.ttl)})
	}
	c.mu.RUnlock()
	return decision
}

// InvalidateAll は全エントリを即時に破棄する。ロール・ポリシー定義の変更時に呼ぶ。
// 実行中の判定の結果も保存されない。
func (c *DecisionCache) InvalidateAll() {
	c.mu.Lock()
	c.generation++
	c.entries.Purge()
	c.mu.Unlock()
	c.metrics.RecordDecisionCacheInvalidation()
}

// Len は保持しているエントリ数を返す。期限切れで未削除のものも含む。
func (c *DecisionCache) Len() int {
	return c.entries.Len()
}
