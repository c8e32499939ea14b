package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bibbank/realizer/internal/application/usecase"
	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/internal/domain/valueobject"
	"github.com/bibbank/realizer/internal/infrastructure/cache"
	"github.com/bibbank/realizer/internal/infrastructure/config"
	infraKafka "github.com/bibbank/realizer/internal/infrastructure/kafka"
	"github.com/bibbank/realizer/internal/infrastructure/lock"
	infraPG "github.com/bibbank/realizer/internal/infrastructure/postgres"
	"github.com/bibbank/realizer/internal/infrastructure/scheduler"
	grpcPresentation "github.com/bibbank/realizer/internal/presentation/grpc"
	"github.com/bibbank/realizer/internal/presentation/rest"
	"github.com/bibbank/realizer/pkg/auth"
	kafkapkg "github.com/bibbank/realizer/pkg/kafka"
	"github.com/bibbank/realizer/pkg/observability"
	pgpkg "github.com/bibbank/realizer/pkg/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("realizer stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger := observability.InitLogger(observability.LogConfig{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: cfg.Telemetry.ServiceName,
	})

	logger.Info("starting realizer",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
	)

	// Initialize tracing
	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, observability.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }() //nolint:errcheck // best-effort tracer shutdown
		}
	}

	// Initialize metrics
	meterProvider, metricsHandler, err := observability.InitMetrics(observability.MetricsConfig{
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() { _ = meterProvider.Shutdown(context.Background()) }() //nolint:errcheck // best-effort flush

	// Initialize database
	dbCfg := pgpkg.Config{
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		User:            cfg.DB.User,
		Password:        cfg.DB.Password,
		Database:        cfg.DB.Name,
		SSLMode:         cfg.DB.SSLMode,
		ApplicationName: cfg.Telemetry.ServiceName,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
	}
	pool, err := pgpkg.NewPool(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pgpkg.RunMigrations(dbCfg.DSN(), infraPG.Migrations, infraPG.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Initialize Kafka producer
	kafkaCfg := kafkapkg.Config{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      cfg.Kafka.ClientID,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		SASLEnabled:   cfg.Kafka.SASLEnabled,
		SASLMechanism: cfg.Kafka.SASLMechanism,
		SASLUsername:  cfg.Kafka.SASLUsername,
		SASLPassword:  cfg.Kafka.SASLPassword,
		TLS:           cfg.Kafka.TLS,
	}
	producer, err := kafkapkg.NewProducer(kafkaCfg)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	defer func() { _ = producer.Close() }() //nolint:errcheck // flushed on shutdown

	// Position locks
	checks := map[string]rest.Check{
		"postgres": func(ctx context.Context) error { return pgpkg.HealthCheck(ctx, pool) },
	}
	var locker port.PositionLocker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }() //nolint:errcheck // closing on exit
		redisLocker := lock.NewRedisLocker(client)
		locker = redisLocker
		checks["redis"] = redisLocker.Ping
	} else {
		logger.Warn("REDIS_ADDR not set, position locks are local to this process")
		locker = lock.NewLocalLocker()
	}

	// Wire dependencies (DI via constructors)
	ledger := cache.NewLedgerClient(infraPG.NewLedgerClient(pool), cfg.MetadataCacheTTL)
	publisher := infraKafka.NewPublisher(producer, logger)

	// Use cases
	conv := valueobject.DefaultConventions()
	conv.BaseCurrency = cfg.BaseCurrency
	calculateUC := usecase.NewCalculateRealizedResults(ledger, publisher, conv, logger)
	calculateBookUC := usecase.NewCalculateBook(ledger, locker, calculateUC, logger)
	resetUC := usecase.NewResetRealizedResults(ledger, calculateUC, logger)
	deleteResultsUC := usecase.NewDeleteTradeResults(ledger, conv, logger)
	flagRebuildUC := usecase.NewFlagRebuild(ledger, logger)

	jwtSvc, err := newJWTService(cfg.JWT)
	if err != nil {
		return fmt.Errorf("initialize JWT service: %w", err)
	}

	// gRPC server
	handler := grpcPresentation.NewRealizerHandler(calculateUC, calculateBookUC, resetUC, deleteResultsUC, flagRebuildUC, locker, logger)
	grpcServer := grpcPresentation.NewServer(grpcPresentation.ServerConfig{
		TLSCertFile: cfg.TLS.CertFile,
		TLSKeyFile:  cfg.TLS.KeyFile,
		Reflection:  os.Getenv("GRPC_REFLECTION") == "true",
	}, handler, logger, jwtSvc)

	// HTTP server (health checks + metrics)
	mux := http.NewServeMux()
	rest.NewHealthHandler(logger, checks).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsHandler)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Rebuild consumer
	rebuildHandler := infraKafka.NewRebuildHandler(resetUC, locker, publisher, logger)
	consumer, err := kafkapkg.NewConsumer(kafkaCfg, usecase.TopicRebuildRequested, rebuildHandler.Handle, logger)
	if err != nil {
		return fmt.Errorf("create rebuild consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }() //nolint:errcheck // closing on exit

	// Periodic sweep
	var sweep *scheduler.Sweep
	if cfg.Sweep.Schedule != "" {
		sweep, err = scheduler.NewSweep(ctx, cfg.Sweep.Schedule, calculateBookUC, cfg.Sweep.StockBooks, cfg.Sweep.AutoMtM, logger)
		if err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
		sweep.Start()
	}

	// Start servers
	errCh := make(chan error, 3)

	go func() {
		if err := grpcServer.Serve(fmt.Sprintf(":%d", cfg.GRPCPort)); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	go func() {
		logger.Info("HTTP server starting", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("rebuild consumer: %w", err)
		}
	}()

	// Wait for shutdown
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server error", "error", runErr)
	}
	cancel()

	// Graceful shutdown
	if sweep != nil {
		sweep.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("realizer stopped")
	return runErr
}

// newJWTService validates bearer tokens with the configured public key,
// falling back to the shared secret.
func newJWTService(cfg config.JWTConfig) (*auth.JWTService, error) {
	jwtCfg := auth.JWTConfig{Issuer: cfg.Issuer}
	switch {
	case cfg.PublicKeyFile != "":
		keyData, err := auth.LoadKeyFromFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load JWT public key: %w", err)
		}
		jwtCfg.PublicKeyPEM = string(keyData)
	case cfg.Secret != "":
		jwtCfg.Secret = cfg.Secret
	default:
		return nil, errors.New("no JWT public key or secret configured")
	}
	return auth.NewJWTService(jwtCfg)
}
