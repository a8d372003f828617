package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/repository"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

const (
	refreshFlightKey = "jwks"

	DefaultJWKSCacheTTL           = 10 * time.Minute
	DefaultJWKSFetchTimeout       = 10 * time.Second
	DefaultJWKSMinRefreshInterval = 10 * time.Second
)

var _ repository.SigningKeyRepository = (*KeySetCache)(nil)

// ErrNoSigningKeys は公開中の署名鍵が 1 つもない場合のエラー。
var ErrNoSigningKeys = errors.New("no signing keys available")

// KeySetCache は JWKS から取得した署名鍵をキャッシュする。
//
// 公開中の KeySet は atomic.Pointer で丸ごと差し替えるため、読み取り側はロックを取らない。
// 再取得は singleflight で 1 本にまとめ、呼び出し元のキャンセルから切り離して実行する。
// 取得に失敗しても既存の KeySet は破棄しない。
type KeySetCache struct {
	jwksURI            string
	ttl                time.Duration
	minRefreshInterval time.Duration
	fetchTimeout       time.Duration
	fetcher            JWKSFetcher
	clock              clock.Clock
	logger             *slog.Logger
	metrics            *telemetry.Metrics

	current atomic.Pointer[model.KeySet]
	group   singleflight.Group

	mu          sync.Mutex
	flight      string
	flightSeq   uint64
	lastAttempt time.Time
	lastErr     error
}

// KeySetCacheOption は KeySetCache の設定オプション。
type KeySetCacheOption func(*KeySetCache)

// WithClock は時刻の取得元を差し替える。
func WithClock(clk clock.Clock) KeySetCacheOption {
	return func(c *KeySetCache) { c.clock = clk }
}

// WithMinRefreshInterval はキャッシュミス起因の再取得の最小間隔を設定する。0 で無効。
func WithMinRefreshInterval(d time.Duration) KeySetCacheOption {
	return func(c *KeySetCache) { c.minRefreshInterval = d }
}

// WithFetchTimeout は 1 回の JWKS 取得のタイムアウトを設定する。
func WithFetchTimeout(d time.Duration) KeySetCacheOption {
	return func(c *KeySetCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) KeySetCacheOption {
	return func(c *KeySetCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics はメトリクスを設定する。
func WithMetrics(m *telemetry.Metrics) KeySetCacheOption {
	return func(c *KeySetCache) { c.metrics = m }
}

// NewKeySetCache は新しい KeySetCache を作成する。初回の取得は最初の GetKey か ForceRefresh で行う。
func NewKeySetCache(jwksURI string, ttl time.Duration, fetcher JWKSFetcher, opts ...KeySetCacheOption) *KeySetCache {
	if ttl <= 0 {
		ttl = DefaultJWKSCacheTTL
	}
	c := &KeySetCache{
		jwksURI:            jwksURI,
		ttl:                ttl,
		minRefreshInterval: DefaultJWKSMinRefreshInterval,
		fetchTimeout:       DefaultJWKSFetchTimeout,
		fetcher:            fetcher,
		clock:              clock.WallClock,
		logger:             telemetry.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current は現在公開中の KeySet を返す。未取得の場合は nil。
func (c *KeySetCache) Current() *model.KeySet {
	return c.current.Load()
}

// GetKey は kid に対応する署名鍵を返す。
//
// 新鮮な KeySet に kid があればそのまま返す。KeySet が古いか kid が見つからない場合は
// 再取得を 1 本だけ走らせて待ち合わせ、その結果を再検索する。
// 再取得に失敗しても古い KeySet に kid があればそれを返す。
func (c *KeySetCache) GetKey(ctx context.Context, kid string) (*model.SigningKey, error) {
	ks := c.current.Load()
	if key, ok := ks.Lookup(kid); ok && !ks.IsStale(c.clock.Now(), c.ttl) {
		return key, nil
	}

	ch, started := c.startRefresh(ctx, false)
	if !started {
		// 最小再取得間隔内。直前の再取得結果で引き直す。
		if key, ok := c.current.Load().Lookup(kid); ok {
			return key, nil
		}
		return nil, &model.KeyLookupError{Kind: model.KeyLookupUnknownKID, KID: kid, Err: c.lastError()}
	}

	var refreshErr error
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		refreshErr = res.Err
	}

	if key, ok := c.current.Load().Lookup(kid); ok {
		return key, nil
	}
	return nil, &model.KeyLookupError{Kind: model.KeyLookupUnknownKID, KID: kid, Err: refreshErr}
}

// ForceRefresh は最小再取得間隔を無視して JWKS を再取得する。
// 実行中の再取得があればその結果を待つ。
func (c *KeySetCache) ForceRefresh(ctx context.Context) error {
	ch, _ := c.startRefresh(ctx, true)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// Healthy は署名鍵が 1 つ以上利用可能かを確認する。
func (c *KeySetCache) Healthy(_ context.Context) error {
	if c.current.Load().Len() == 0 {
		if err := c.lastError(); err != nil {
			return fmt.Errorf("%w: %w", ErrNoSigningKeys, err)
		}
		return ErrNoSigningKeys
	}
	return nil
}

// startRefresh は再取得を開始するか、実行中の再取得に合流する。
// force が false で最小再取得間隔内かつ実行中の再取得がない場合は開始しない。
//
// 再取得ごとに singleflight のキーを変える。refresh が flight を空にした後は、
// singleflight から消える前の終了間際の呼び出しには合流せず、新しい再取得を始める。
func (c *KeySetCache) startRefresh(ctx context.Context, force bool) (<-chan singleflight.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flight == "" {
		now := c.clock.Now()
		if !force && !c.refreshAllowedLocked(now) {
			return nil, false
		}
		c.flightSeq++
		c.flight = refreshFlightKey + "-" + strconv.FormatUint(c.flightSeq, 10)
		c.lastAttempt = now
	}

	// flight が空でない間はキーが singleflight に残っているため、fn は合流時には呼ばれない。
	detached := context.WithoutCancel(ctx)
	return c.group.DoChan(c.flight, func() (interface{}, error) {
		return c.refresh(detached)
	}), true
}

func (c *KeySetCache) refreshAllowedLocked(now time.Time) bool {
	if c.minRefreshInterval <= 0 || c.lastAttempt.IsZero() {
		return true
	}
	return now.Sub(c.lastAttempt) >= c.minRefreshInterval
}

func (c *KeySetCache) lastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// refresh は JWKS を取得し、次の世代の KeySet を構築して公開する。
// flight が設定されている間に呼ばれるため、JWKS の取得と KeySet の公開は同時に 1 本だけである。
func (c *KeySetCache) refresh(ctx context.Context) (*model.KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "KeySetCache.refresh")
	defer span.End()

	start := c.clock.Now()
	ks, err := c.fetchKeySet(ctx)
	elapsed := c.clock.Now().Sub(start)

	c.mu.Lock()
	c.flight = ""
	c.lastErr = err
	c.mu.Unlock()

	logger := telemetry.LogWithTrace(ctx, c.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RecordJWKSRefresh("failure", elapsed)
		prev := c.current.Load()
		logger.Warn("jwks refresh failed, serving previous key set",
			slog.String("jwks_uri", c.jwksURI),
			slog.Uint64("generation", prev.Generation()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("keyset.generation", int64(ks.Generation())),
		attribute.Int("keyset.keys", ks.Len()),
	)
	c.metrics.RecordJWKSRefresh("success", elapsed)
	c.metrics.SetKeySet(ks.Generation(), ks.Len())
	logger.Info("jwks refreshed",
		slog.String("jwks_uri", c.jwksURI),
		slog.Uint64("generation", ks.Generation()),
		slog.Int("keys", ks.Len()),
		slog.Any("kids", ks.KIDs()),
	)
	return ks, nil
}

func (c *KeySetCache) fetchKeySet(ctx context.Context) (*model.KeySet, error) {
	set, err := c.fetcher.FetchKeys(ctx, c.jwksURI)
	if err != nil {
		var lookupErr *model.KeyLookupError
		if errors.As(err, &lookupErr) {
			return nil, err
		}
		return nil, &model.KeyLookupError{Kind: model.KeyLookupFetchFailed, Err: err}
	}

	keys, err := signingKeysFromSet(set)
	if err != nil {
		return nil, &model.KeyLookupError{Kind: model.KeyLookupParseFailed, Err: err}
	}

	next := c.current.Load().Generation() + 1
	ks, err := model.NewKeySet(keys, next, c.clock.Now())
	if err != nil {
		return nil, &model.KeyLookupError{Kind: model.KeyLookupParseFailed, Err: err}
	}
	c.current.Store(ks)
	return ks, nil
}
