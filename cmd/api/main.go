package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/go-playground/validator/v10"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/blob"
	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/lifecycle/contract"
	"github.com/Ramsey-B/fern/pkg/lifecycle/request"
	"github.com/Ramsey-B/fern/pkg/lifecycle/transfer"
	appmw "github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/orchestrator"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

var version = "dev"

type apiValidator struct {
	validate *validator.Validate
}

func (v *apiValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = level
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTLPEnabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traceShutdown, err := initTracing(ctx, &cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	// Database. The record store may still be coming up alongside us,
	// so retry before giving up.
	var db database.DB
	var sqlxDB *sqlx.DB
	for attempt := 1; ; attempt++ {
		db, sqlxDB, err = database.Connect(database.ConnectConfig{
			Driver:          cfg.DatabaseDriver,
			Host:            cfg.DatabaseHost,
			Port:            cfg.DatabasePort,
			UserName:        cfg.DatabaseUserName,
			Password:        cfg.DatabasePassword,
			Name:            cfg.DatabaseName,
			SSLMode:         cfg.DatabaseSSLMode,
			MaxOpenConns:    cfg.DatabaseMaxOpenConns,
			MaxIdleConns:    cfg.DatabaseMaxIdleConns,
			ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
		}, logger)
		if err == nil {
			break
		}
		if attempt >= cfg.StartupMaxAttempts {
			logger.WithError(err).Error("Failed to connect to database")
			os.Exit(1)
		}
		logger.WithError(err).Warnf("Database not ready, retrying (attempt %d of %d)", attempt, cfg.StartupMaxAttempts)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	defer sqlxDB.Close()

	// Migrations
	migrationDriver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		logger.WithError(err).Error("Failed to create migration driver")
		os.Exit(1)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, migrationDriver); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	// Redis
	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisClient.Close()
	locker := redis.NewLocker(redisClient, "fern:lock:")

	// Kafka
	kafkaCfg := kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaLifecycleTopic)
	producer := kafka.NewProducer(kafkaCfg, logger)
	defer producer.Close()
	emitter := events.NewEmitter(producer, logger)

	// Repositories
	requestRepo := repositories.NewRequestRepository(db, logger)
	contractRepo := repositories.NewContractRepository(db, logger)
	transferRepo := repositories.NewTransferRepository(db, logger)
	publicationRepo := repositories.NewPublicationRepository(db, logger)

	// Services
	clk := clock.New()
	resolver := blob.NewResolver(cfg.BlobPublicBaseURL, cfg.BlobBucket, redisClient, cfg.BlobURLCacheTTL, logger)
	requestService := request.NewService(requestRepo, publicationRepo, emitter, clk, logger)
	contractService := contract.NewService(contractRepo, publicationRepo, emitter, resolver, clk, logger)
	transferService := transfer.NewService(transferRepo, contractRepo, publicationRepo, emitter, resolver, cfg.DefaultTransferMethod, clk, logger)

	orch := orchestrator.New(requestRepo, contractRepo, transferRepo, publicationRepo, emitter, locker, orchestrator.Config{
		ContractValidity: cfg.ContractValidity,
		TermsDuration:    cfg.ContractTermsDuration,
	}, clk, logger)
	requestService.SetApprovalHandler(orch)
	contractService.SetTerminationHandler(orch)

	// Sweeper
	sweeper := scheduler.NewSweeper(requestRepo, requestService, locker, scheduler.Config{
		PollInterval: cfg.SweeperPollInterval,
		BatchSize:    cfg.SweeperBatchSize,
		RequestTTL:   cfg.RequestTTL,
	}, clk, logger)
	if cfg.SweeperEnabled {
		if err := sweeper.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start sweeper")
			os.Exit(1)
		}
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = appmw.Error(logger)
	e.Validator = &apiValidator{validate: validator.New()}

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(appmw.Context())
	e.Use(appmw.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(sqlxDB, redisClient.Redis(), kafkaCfg.Brokers, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	handlers.NewPublicationHandler(publicationRepo, logger).Register(api.Group("/publications"))
	handlers.NewRequestHandler(requestService, orch, logger).Register(api.Group("/requests"))
	handlers.NewContractHandler(contractService, logger).Register(api.Group("/contracts"))
	handlers.NewTransferHandler(transferService, logger).Register(api.Group("/transfers"))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Infof("Starting %s on %s", cfg.AppName, addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped unexpectedly")
			os.Exit(1)
		}
	}()
	checker.SetReady(true)

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	checker.SetReady(false)
	if cfg.SweeperEnabled {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Sweeper shutdown failed")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}
	if err := traceShutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Trace exporter shutdown failed")
	}

	logger.Info("Shutdown complete")
}
