package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/service"
)

const (
	defaultGRPCPort               = 50051
	defaultShutdownTimeout        = 30 * time.Second
	defaultJWKSCacheTTL           = 10 * time.Minute
	defaultJWKSFetchTimeout       = 10 * time.Second
	defaultJWKSMinRefreshInterval = 10 * time.Second
	defaultClockSkew              = 30 * time.Second
	defaultDecisionCacheTTL       = 60 * time.Second
	defaultDecisionCacheSize      = 10000
	defaultKafkaTopic             = "k1s0.system.auth.audit.v1"
)

// Config はアプリケーションの設定を表す。
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
	Permission PermissionConfig `yaml:"permission"`
}

// AppConfig はアプリケーション情報の設定。
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Tier        string `yaml:"tier"`
}

// ServerConfig は REST サーバーの設定。
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GRPCConfig は gRPC サーバーの設定。
type GRPCConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig はデータベースの設定。Host が空の場合は監査ログを DB に保存しない。
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Enabled は DB 接続が設定されているかを返す。
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// KafkaConfig は Kafka の設定。Brokers が空の場合は監査イベントを配信しない。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled は Kafka が設定されているかを返す。
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// TelemetryConfig はトレース・ログの設定。
type TelemetryConfig struct {
	TraceEndpoint string  `yaml:"trace_endpoint"`
	SampleRate    float64 `yaml:"sample_rate"`
	LogLevel      string  `yaml:"log_level"`
	LogFormat     string  `yaml:"log_format"`
}

// AuthConfig はトークン検証の設定。
type AuthConfig struct {
	JWT  JWTConfig  `yaml:"jwt"`
	OIDC OIDCConfig `yaml:"oidc"`
}

// JWTConfig は JWT 検証に必要な設定。
type JWTConfig struct {
	Issuer            string         `yaml:"issuer"`
	Audience          string         `yaml:"audience"`
	AllowedAlgorithms []string       `yaml:"allowed_algorithms"`
	ClockSkew         *time.Duration `yaml:"clock_skew"`
}

// OIDCConfig は JWKS 取得の設定。
type OIDCConfig struct {
	JWKSURI      string        `yaml:"jwks_uri"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	// JWKSFetchTimeout は 1 回の JWKS 取得のタイムアウト。
	JWKSFetchTimeout time.Duration `yaml:"jwks_fetch_timeout"`
	// JWKSMinRefreshInterval はキャッシュミス起因の再取得の最小間隔。0 を明示すると無効。
	JWKSMinRefreshInterval *time.Duration `yaml:"jwks_min_refresh_interval"`
}

// PermissionConfig はロール・パーミッション表と判定キャッシュの設定。
//
//	roles:     ロール -> 付与アクション
//	resources: リソース -> ロール -> 付与アクション（上書き）
//
// roles と resources がともに空の場合は組み込みの既定表を admin_role で使う。
type PermissionConfig struct {
	AdminRole         string                         `yaml:"admin_role"`
	DecisionCacheTTL  time.Duration                  `yaml:"decision_cache_ttl"`
	DecisionCacheSize int                            `yaml:"decision_cache_size"`
	Roles             map[string][]string            `yaml:"roles"`
	Resources         map[string]map[string][]string `yaml:"resources"`
}

// Load は設定ファイルから Config を読み込み、既定値を補完する。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults は未設定の項目に既定値を設定する。
func (c *Config) ApplyDefaults() {
	if c.GRPC.Port == 0 {
		c.GRPC.Port = defaultGRPCPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultKafkaTopic
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = "info"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1.0
	}
	if c.Auth.OIDC.JWKSCacheTTL == 0 {
		c.Auth.OIDC.JWKSCacheTTL = defaultJWKSCacheTTL
	}
	if c.Auth.OIDC.JWKSFetchTimeout == 0 {
		c.Auth.OIDC.JWKSFetchTimeout = defaultJWKSFetchTimeout
	}
	if c.Auth.OIDC.JWKSMinRefreshInterval == nil {
		d := defaultJWKSMinRefreshInterval
		c.Auth.OIDC.JWKSMinRefreshInterval = &d
	}
	if len(c.Auth.JWT.AllowedAlgorithms) == 0 {
		c.Auth.JWT.AllowedAlgorithms = []string{"RS256"}
	}
	if c.Auth.JWT.ClockSkew == nil {
		d := defaultClockSkew
		c.Auth.JWT.ClockSkew = &d
	}
	if c.Permission.AdminRole == "" {
		c.Permission.AdminRole = model.DefaultAdminRole
	}
	if c.Permission.DecisionCacheTTL == 0 {
		c.Permission.DecisionCacheTTL = defaultDecisionCacheTTL
	}
	if c.Permission.DecisionCacheSize == 0 {
		c.Permission.DecisionCacheSize = defaultDecisionCacheSize
	}
}

// Validate は設定値のバリデーションを行う。
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Auth.JWT.Issuer == "" {
		return fmt.Errorf("auth.jwt.issuer is required")
	}
	if c.Auth.JWT.Audience == "" {
		return fmt.Errorf("auth.jwt.audience is required")
	}
	for _, alg := range c.Auth.JWT.AllowedAlgorithms {
		if strings.EqualFold(alg, "none") || strings.HasPrefix(strings.ToUpper(alg), "HS") {
			return fmt.Errorf("auth.jwt.allowed_algorithms must not contain %q", alg)
		}
	}
	if c.Auth.JWT.ClockSkew != nil && *c.Auth.JWT.ClockSkew < 0 {
		return fmt.Errorf("auth.jwt.clock_skew must not be negative")
	}
	if c.Auth.OIDC.JWKSURI == "" {
		return fmt.Errorf("auth.oidc.jwks_uri is required")
	}
	if c.Auth.OIDC.JWKSCacheTTL < 0 || c.Auth.OIDC.JWKSFetchTimeout < 0 {
		return fmt.Errorf("auth.oidc durations must not be negative")
	}
	if c.Permission.DecisionCacheSize < 0 {
		return fmt.Errorf("permission.decision_cache_size must not be negative")
	}
	if c.Permission.DecisionCacheTTL < 0 {
		return fmt.Errorf("permission.decision_cache_ttl must not be negative")
	}
	if _, err := c.Permission.Table(); err != nil {
		return fmt.Errorf("permission: %w", err)
	}
	return nil
}

// DSN はデータベース接続文字列を返す。
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Table は設定からパーミッション表を構築する。
// roles と resources がともに空の場合は既定のロール階層を admin_role 付きで返す。
func (c *PermissionConfig) Table() (*model.PermissionTable, error) {
	if len(c.Roles) == 0 && len(c.Resources) == 0 {
		return service.DefaultPermissionTable(c.AdminRole), nil
	}

	roles := make(map[string][]model.Action, len(c.Roles))
	for role, names := range c.Roles {
		actions, err := parseActions(names)
		if err != nil {
			return nil, fmt.Errorf("roles.%s: %w", role, err)
		}
		roles[role] = actions
	}

	if len(c.Resources) == 0 {
		return nil, errors.New("resources must not be empty when roles are configured")
	}
	resources := make(map[string]map[string][]model.Action, len(c.Resources))
	for resource, overrides := range c.Resources {
		m := make(map[string][]model.Action, len(overrides))
		for role, names := range overrides {
			actions, err := parseActions(names)
			if err != nil {
				return nil, fmt.Errorf("resources.%s.%s: %w", resource, role, err)
			}
			m[role] = actions
		}
		resources[resource] = m
	}

	return model.NewPermissionTable(c.AdminRole, roles, resources), nil
}

func parseActions(names []string) ([]model.Action, error) {
	actions := make([]model.Action, 0, len(names))
	for _, n := range names {
		a, err := model.ParseAction(n)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}
