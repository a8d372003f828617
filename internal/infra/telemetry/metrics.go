package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics は Prometheus メトリクスのヘルパー構造体である。
// RED メソッド（Rate, Errors, Duration）のメトリクスに加え、
// トークン検証・JWKS 再取得・パーミッション判定のメトリクスを提供する。
//
// nil レシーバに対する記録メソッドは何もしない。
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	GRPCHandledTotal     *prometheus.CounterVec
	GRPCHandlingDuration *prometheus.HistogramVec

	TokenValidationsTotal   *prometheus.CounterVec
	JWKSRefreshesTotal      *prometheus.CounterVec
	JWKSRefreshDuration     prometheus.Histogram
	KeySetGeneration        prometheus.Gauge
	KeySetKeys              prometheus.Gauge
	PermissionChecksTotal   *prometheus.CounterVec
	DecisionCacheLookups    *prometheus.CounterVec
	DecisionCacheInvalidate prometheus.Counter
	AuditPublishFailures    prometheus.Counter
}

// NewMetrics は Prometheus メトリクスを初期化し、reg に登録して返す。
// reg が nil の場合は prometheus.DefaultRegisterer を使う。
// serviceName はメトリクスの service ラベルに使用される。
func NewMetrics(serviceName string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Histogram of HTTP request latency",
				ConstLabels: labels,
				Buckets:     latencyBuckets,
			},
			[]string{"method", "path"},
		),
		GRPCHandledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "grpc_server_handled_total",
				Help:        "Total number of RPCs completed on the server",
				ConstLabels: labels,
			},
			[]string{"grpc_service", "grpc_method", "grpc_code"},
		),
		GRPCHandlingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "grpc_server_handling_seconds",
				Help:        "Histogram of response latency of gRPC",
				ConstLabels: labels,
				Buckets:     latencyBuckets,
			},
			[]string{"grpc_service", "grpc_method"},
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_token_validations_total",
				Help:        "Total number of token validations by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		JWKSRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_jwks_refreshes_total",
				Help:        "Total number of upstream JWKS fetches by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		JWKSRefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "auth_jwks_refresh_duration_seconds",
				Help:        "Histogram of upstream JWKS fetch latency",
				ConstLabels: labels,
				Buckets:     latencyBuckets,
			},
		),
		KeySetGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "auth_keyset_generation",
				Help:        "Generation number of the currently published key set",
				ConstLabels: labels,
			},
		),
		KeySetKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "auth_keyset_keys",
				Help:        "Number of signing keys in the currently published key set",
				ConstLabels: labels,
			},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_permission_checks_total",
				Help:        "Total number of permission checks by decision",
				ConstLabels: labels,
			},
			[]string{"decision"},
		),
		DecisionCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_decision_cache_lookups_total",
				Help:        "Total number of permission decision cache lookups by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		DecisionCacheInvalidate: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "auth_decision_cache_invalidations_total",
				Help:        "Total number of permission decision cache invalidations",
				ConstLabels: labels,
			},
		),
		AuditPublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "auth_audit_publish_failures_total",
				Help:        "Total number of audit records that could not be recorded",
				ConstLabels: labels,
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCHandledTotal,
		m.GRPCHandlingDuration,
		m.TokenValidationsTotal,
		m.JWKSRefreshesTotal,
		m.JWKSRefreshDuration,
		m.KeySetGeneration,
		m.KeySetKeys,
		m.PermissionChecksTotal,
		m.DecisionCacheLookups,
		m.DecisionCacheInvalidate,
		m.AuditPublishFailures,
	)

	return m
}

// RecordTokenValidation はトークン検証結果を記録する。result は "valid" またはエラー種別。
func (m *Metrics) RecordTokenValidation(result string) {
	if m == nil {
		return
	}
	m.TokenValidationsTotal.WithLabelValues(result).Inc()
}

// RecordJWKSRefresh は JWKS 取得結果と所要時間を記録する。
func (m *Metrics) RecordJWKSRefresh(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.JWKSRefreshesTotal.WithLabelValues(result).Inc()
	m.JWKSRefreshDuration.Observe(d.Seconds())
}

// SetKeySet は公開中の KeySet の世代と鍵数を記録する。
func (m *Metrics) SetKeySet(generation uint64, keys int) {
	if m == nil {
		return
	}
	m.KeySetGeneration.Set(float64(generation))
	m.KeySetKeys.Set(float64(keys))
}

// RecordPermissionCheck はパーミッション判定結果を記録する。
func (m *Metrics) RecordPermissionCheck(allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.PermissionChecksTotal.WithLabelValues(decision).Inc()
}

// RecordDecisionCacheLookup はキャッシュのヒット・ミスを記録する。
func (m *Metrics) RecordDecisionCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.DecisionCacheLookups.WithLabelValues(result).Inc()
}

// RecordDecisionCacheInvalidation はキャッシュ全消去を記録する。
func (m *Metrics) RecordDecisionCacheInvalidation() {
	if m == nil {
		return
	}
	m.DecisionCacheInvalidate.Inc()
}

// RecordAuditPublishFailure は監査記録の失敗を記録する。
func (m *Metrics) RecordAuditPublishFailure() {
	if m == nil {
		return
	}
	m.AuditPublishFailures.Inc()
}

// MetricsHandler は /metrics エンドポイント用の HTTP ハンドラを返す。
// g が nil の場合は prometheus.DefaultGatherer を使う。
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
