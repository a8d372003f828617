package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	authgrpc "github.com/k1s0-platform/system-server-go-authcore/internal/adapter/grpc"
	"github.com/k1s0-platform/system-server-go-authcore/internal/adapter/handler"
	"github.com/k1s0-platform/system-server-go-authcore/internal/adapter/middleware"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/repository"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/service"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/auth"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/cache"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/config"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/messaging"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/persistence"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
	"github.com/k1s0-platform/system-server-go-authcore/internal/usecase"
)

func main() {
	// --- Config ---
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}

	// --- Telemetry ---
	telemetryCfg := telemetry.TelemetryConfig{
		ServiceName:   cfg.App.Name,
		Version:       cfg.App.Version,
		Tier:          cfg.App.Tier,
		Environment:   cfg.App.Environment,
		TraceEndpoint: cfg.Telemetry.TraceEndpoint,
		SampleRate:    cfg.Telemetry.SampleRate,
		LogLevel:      cfg.Telemetry.LogLevel,
		LogFormat:     cfg.Telemetry.LogFormat,
	}
	tp, err := telemetry.InitTelemetry(context.Background(), telemetryCfg)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer tp.Shutdown(context.Background())
	logger := tp.Logger()
	slog.SetDefault(logger)

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(cfg.App.Name, registry)

	// --- Database (任意) ---
	var (
		auditRepo repository.AuditLogRepository
		readiness = map[string]handler.HealthChecker{}
	)
	if cfg.Database.Enabled() {
		db, err := persistence.NewDB(context.Background(), cfg.Database)
		if err != nil {
			slog.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		auditRepo = persistence.NewAuditLogRepository(db)
		readiness["database"] = db
	}

	// --- Kafka (任意) ---
	var publisher usecase.AuditEventPublisher
	if cfg.Kafka.Enabled() {
		producer := messaging.NewKafkaProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
	}

	// --- Signing keys ---
	keySetCache := auth.NewKeySetCache(
		cfg.Auth.OIDC.JWKSURI,
		cfg.Auth.OIDC.JWKSCacheTTL,
		auth.NewHTTPJWKSFetcher(nil, cfg.Auth.OIDC.JWKSFetchTimeout),
		auth.WithFetchTimeout(cfg.Auth.OIDC.JWKSFetchTimeout),
		auth.WithMinRefreshInterval(*cfg.Auth.OIDC.JWKSMinRefreshInterval),
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
	)
	readiness["signing_keys"] = keySetCache

	verifier, err := auth.NewTokenVerifier(keySetCache, auth.TokenVerifierConfig{
		Issuer:            cfg.Auth.JWT.Issuer,
		Audience:          cfg.Auth.JWT.Audience,
		AllowedAlgorithms: cfg.Auth.JWT.AllowedAlgorithms,
		ClockSkew:         *cfg.Auth.JWT.ClockSkew,
	}, clock.WallClock)
	if err != nil {
		slog.Error("failed to create token verifier", "error", err)
		os.Exit(1)
	}

	// --- Permissions ---
	table, err := cfg.Permission.Table()
	if err != nil {
		slog.Error("invalid permission table", "error", err)
		os.Exit(1)
	}
	resolver := service.NewPermissionResolver(table)
	decisionCache, err := cache.NewDecisionCache(
		resolver,
		cfg.Permission.DecisionCacheSize,
		cfg.Permission.DecisionCacheTTL,
		clock.WallClock,
		metrics,
	)
	if err != nil {
		slog.Error("failed to create decision cache", "error", err)
		os.Exit(1)
	}

	// --- Usecases ---
	validateTokenUC := usecase.NewValidateTokenUseCase(verifier, logger, metrics)
	recordAuditLogUC := usecase.NewRecordAuditLogUseCase(auditRepo, publisher, logger, metrics)
	checkPermissionUC := usecase.NewCheckPermissionUseCase(decisionCache, recordAuditLogUC, logger, metrics)
	refreshKeysUC := usecase.NewRefreshSigningKeysUseCase(keySetCache, logger)
	invalidateCacheUC := usecase.NewInvalidatePermissionCacheUseCase(decisionCache, logger)

	// 起動時に鍵を取得しておく。失敗しても最初の検証時に再試行される。
	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.Auth.OIDC.JWKSFetchTimeout)
	if _, err := refreshKeysUC.Execute(warmCtx); err != nil {
		slog.Warn("initial jwks fetch failed", "error", err)
	}
	warmCancel()

	// --- REST Router ---
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(telemetry.GinMiddleware(logger, metrics))

	// ヘルスチェック
	r.GET("/healthz", handler.HealthzHandler())
	r.GET("/readyz", handler.ReadyzHandler(readiness))

	// メトリクス
	r.GET("/metrics", gin.WrapH(telemetry.MetricsHandler(registry)))

	// Auth ハンドラー
	authHandler := handler.NewAuthHandler(validateTokenUC, checkPermissionUC, refreshKeysUC, invalidateCacheUC)
	authHandler.RegisterRoutes(r,
		middleware.Authenticate(validateTokenUC),
		middleware.RequirePermission(checkPermissionUC, "auth_config", model.ActionAdmin),
	)

	// --- gRPC Server ---
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(telemetry.GRPCUnaryServerInterceptor(logger, metrics)))
	authgrpc.RegisterAuthServiceServer(grpcServer, authgrpc.NewAuthGRPCService(validateTokenUC, checkPermissionUC))

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			slog.Error("failed to listen for gRPC", "error", err)
			os.Exit(1)
		}
		slog.Info("gRPC server starting", "port", cfg.GRPC.Port)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server failed", "error", err)
			os.Exit(1)
		}
	}()

	// --- REST Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("REST server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("REST server failed", "error", err)
			os.Exit(1)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down servers...")

	grpcServer.GracefulStop()
	slog.Info("gRPC server stopped")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("REST server forced to shutdown", "error", err)
	}

	// 送信中の監査記録を流し切ってから Kafka / DB を閉じる
	checkPermissionUC.Wait()
	slog.Info("servers exited")
}
