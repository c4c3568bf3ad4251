package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/bnpl-service/internal/adapters/logging"
	adapterports "github.com/kevin07696/bnpl-service/internal/adapters/ports"
	"github.com/kevin07696/bnpl-service/internal/adapters/postgres"
	"github.com/kevin07696/bnpl-service/internal/adapters/secrets"
	"github.com/kevin07696/bnpl-service/internal/adapters/tabby"
	"github.com/kevin07696/bnpl-service/internal/adapters/telemetry"
	"github.com/kevin07696/bnpl-service/internal/config"
	"github.com/kevin07696/bnpl-service/internal/domain"
	"github.com/kevin07696/bnpl-service/internal/domain/ports"
	callbackhandler "github.com/kevin07696/bnpl-service/internal/handlers/callback"
	checkouthandler "github.com/kevin07696/bnpl-service/internal/handlers/checkout"
	cronhandler "github.com/kevin07696/bnpl-service/internal/handlers/cron"
	checkoutsvc "github.com/kevin07696/bnpl-service/internal/services/checkout"
	"github.com/kevin07696/bnpl-service/internal/services/reconcile"
	pkghttp "github.com/kevin07696/bnpl-service/pkg/http"
	"github.com/kevin07696/bnpl-service/pkg/middleware"
	"github.com/kevin07696/bnpl-service/pkg/observability"
	"github.com/kevin07696/bnpl-service/pkg/shutdown"
)

// version identifies this build in payload metadata
var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	secretKey, err := resolveSecretKey(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("gateway secret key unavailable", zap.Error(err))
	}
	if !tabby.ValidateSecretKey(secretKey) {
		logger.Warn("gateway secret key does not match the expected format")
	}

	sink := initTelemetry(cfg.Telemetry, logger)

	adapterLogger := logging.NewZapAdapter(logger)
	tabbyClient := tabby.NewClient(
		tabby.Credentials{SecretKey: secretKey, PublicKey: cfg.Gateway.PublicKey},
		cfg.Gateway.BaseURL,
		pkghttp.NewClient(pkghttp.GatewayClientConfig()),
		adapterLogger,
		sink,
	)

	enabledCurrencies := cfg.Gateway.EnabledCurrencies
	if len(enabledCurrencies) == 0 {
		enabledCurrencies = domain.SupportedCurrencies()
	}
	if cfg.Gateway.RegisterWebhooks {
		registrar := tabby.NewWebhookRegistrar(tabbyClient, cfg.Server.BaseURL+"/payment/tabby/webhook", adapterLogger)
		if err := registrar.RegisterAll(ctx, enabledCurrencies); err != nil {
			logger.Error("webhook registration incomplete", zap.Error(err))
		}
	}

	repo := postgres.NewTransactionRepository(pool)
	orders := postgres.NewOrderStore(pool)
	postProc := postgres.NewPostProcessQueue(pool, logger)

	reconciler := reconcile.NewReconciler(
		repo,
		ports.NewBackendRegistry(tabbyClient),
		orders,
		postProc,
		logger,
		reconcile.Config{ManualCapture: cfg.Gateway.ManualCapture},
	)
	sweep := reconcile.NewPendingSweep(repo, reconciler, cfg.Sweep.Interval, cfg.Sweep.Window, logger)

	builder := checkoutsvc.NewSessionBuilder(orders, checkoutsvc.BuilderConfig{
		SuccessURL: cfg.Server.BaseURL + "/payment/tabby/success",
		CancelURL:  cfg.Server.BaseURL + "/payment/tabby/cancel",
		FailureURL: cfg.Server.BaseURL + "/payment/tabby/failure",
		Platform:   "bnpl-service",
		Version:    version,
	}, logger)
	checkoutService := checkoutsvc.NewService(repo, orders, tabbyClient, builder, logger)

	callbacks := callbackhandler.NewHandler(reconciler, sink, cfg.Server.ShopURL, logger)
	checkouts := checkouthandler.NewHandler(checkoutService, logger)
	sweeps := cronhandler.NewSweepHandler(sweep, logger, cfg.Server.CronSecret)
	health := observability.NewHealthChecker(pool)
	rateLimiter := middleware.NewRateLimiter(10, 20)

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)

	router.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		r.Get("/payment/tabby/success", callbacks.Success)
		r.Get("/payment/tabby/cancel", callbacks.Cancel)
		r.Get("/payment/tabby/failure", callbacks.Failure)
		r.Post("/payment/tabby/webhook", callbacks.Webhook)
		r.Post("/payment/tabby/session", checkouts.CreateSession)
	})
	router.Post("/cron/sweep-pending", sweeps.SweepPending)
	router.Get("/healthz", health.HealthHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go sweep.Run(sweepCtx)

	// Components shut down in reverse registration order: the HTTP servers
	// stop accepting work first, the pool and sink close last so in-flight
	// reconciliations still have their dependencies.
	manager := shutdown.NewManager(logger, 30*time.Second)
	manager.Register("database", func(context.Context) error {
		pool.Close()
		return nil
	})
	if closer, ok := sink.(*telemetry.HTTPSink); ok {
		manager.Register("telemetry-sink", func(context.Context) error {
			closer.Close()
			return nil
		})
	}
	manager.Register("rate-limiter", func(context.Context) error {
		rateLimiter.Shutdown()
		return nil
	})
	manager.Register("pending-sweep", func(context.Context) error {
		cancelSweep()
		return nil
	})
	manager.Register("metrics-server", metricsServer.Shutdown)
	manager.Register("http-server", server.Shutdown)

	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.Strings("currencies", enabledCurrencies),
			zap.Bool("manual_capture", cfg.Gateway.ManualCapture),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	manager.WaitForShutdown()
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	if cfg.Development {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	zapCfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// resolveSecretKey returns the inline secret key, or loads it from the
// configured secret manager when a path is set
func resolveSecretKey(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.Gateway.SecretKeyPath == "" {
		return cfg.Gateway.SecretKey, nil
	}

	var (
		manager adapterports.SecretManagerAdapter
		err     error
	)
	switch cfg.Secrets.Backend {
	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddress)
		vaultCfg.Token = cfg.Secrets.VaultToken
		manager, err = secrets.NewVaultAdapter(ctx, vaultCfg, logger)
	case "local":
		manager = secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger)
	default:
		manager, err = secrets.NewAWSSecretsManagerAdapter(ctx,
			secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion), logger)
	}
	if err != nil {
		return "", err
	}

	secret, err := manager.GetSecret(ctx, cfg.Gateway.SecretKeyPath)
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}

func initTelemetry(cfg config.TelemetryConfig, logger *zap.Logger) adapterports.TelemetrySink {
	if cfg.IntakeURL == "" {
		return adapterports.NopTelemetrySink{}
	}
	return telemetry.NewHTTPSink(telemetry.Config{
		IntakeURL: cfg.IntakeURL,
		APIKey:    cfg.APIKey,
		Service:   cfg.Service,
		Env:       cfg.Env,
	}, pkghttp.NewClient(pkghttp.TelemetryClientConfig()), logger)
}
