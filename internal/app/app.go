package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httpapi "github.com/shestoi/paystation-relay/internal/api/http"
	"github.com/shestoi/paystation-relay/internal/api/ws"
	"github.com/shestoi/paystation-relay/internal/config"
	kafkaevent "github.com/shestoi/paystation-relay/internal/event/kafka"
	"github.com/shestoi/paystation-relay/internal/gateway"
	"github.com/shestoi/paystation-relay/internal/repository"
	"github.com/shestoi/paystation-relay/internal/repository/file"
	"github.com/shestoi/paystation-relay/internal/repository/memory"
	"github.com/shestoi/paystation-relay/internal/repository/postgres"
	redisrepo "github.com/shestoi/paystation-relay/internal/repository/redis"
	"github.com/shestoi/paystation-relay/internal/router"
	"github.com/shestoi/paystation-relay/internal/service"
	platformhealth "github.com/shestoi/paystation-relay/platform/health/http"
	platformlogging "github.com/shestoi/paystation-relay/platform/logging"
	"github.com/shestoi/paystation-relay/platform/observability"
	platformshutdown "github.com/shestoi/paystation-relay/platform/shutdown"
)

const serviceName = "paystation-relay"

// App содержит все зависимости для запуска и корректного shutdown relay
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости relay
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: serviceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	cfg.Log(logger)

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	// при ошибке сборки закрываем то, что уже успели открыть
	ok := false
	defer func() {
		if !ok {
			shutdownMgr.Shutdown()
		}
	}()

	otelShutdown, err := observability.Init(ctx, observability.Config{
		Enabled:               cfg.Otel.Enabled,
		OTLPEndpoint:          cfg.Otel.Endpoint,
		SamplingRatio:         cfg.Otel.SamplingRatio,
		ServiceName:           serviceName,
		DeploymentEnvironment: string(cfg.AppEnv),
		MetricInterval:        cfg.Otel.MetricInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	shutdownMgr.Add("otel", otelShutdown)

	checks := make(map[string]platformhealth.Check)

	journal, err := buildJournal(ctx, cfg, logger, shutdownMgr, checks)
	if err != nil {
		return nil, err
	}
	store := memory.NewTransactionStore(logger, journal)
	// дописывает очередь журнала до закрытия postgres pool и после остановки опросчиков
	shutdownMgr.Add("transaction_journal", store.Close)
	restored, err := store.Restore(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Transactions restored", zap.Int("count", restored))

	cards, err := buildCardStore(ctx, cfg, logger, shutdownMgr, checks)
	if err != nil {
		return nil, err
	}

	var publisher service.CompletionPublisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher := kafkaevent.NewTransactionCompletedPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.TransactionCompletedTopic)
		shutdownMgr.Add("kafka_writer", platformshutdown.Close(kafkaPublisher))
		publisher = kafkaPublisher
		logger.Info("Kafka publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.TransactionCompletedTopic))
	} else {
		publisher = kafkaevent.NewNoOpPublisher(logger)
	}

	gw := gateway.NewClient(gateway.Config{
		URL:          cfg.Paystation.URL,
		LookupURL:    cfg.Paystation.LookupURL,
		PaystationID: cfg.Paystation.PaystationID,
		GatewayID:    cfg.Paystation.GatewayID,
		TestMode:     cfg.Paystation.TestMode,
		Timeout:      cfg.Paystation.HTTPTimeout,
	}, store, cards, logger)

	coordinator := service.NewCoordinator(logger, service.Config{
		MerchantReference: cfg.Paystation.MerchantReference,
		PollEnabled:       cfg.Poll.Enabled,
		PollInterval:      cfg.Poll.Interval,
		PollTimeout:       cfg.Poll.Timeout,
	}, gw, store, cards, router.New(logger), publisher)
	// останавливается раньше kafka writer: опросчики могут ещё публиковать события
	shutdownMgr.Add("coordinator", coordinator.Shutdown)
	coordinator.Resume(store.All(ctx))

	handler := httpapi.NewHandler(coordinator, store, cards, logger)
	mux := httpapi.NewRouter(handler, ws.NewHandler(logger, coordinator), checks, logger)

	// WriteTimeout не задаём: /ws держит соединение открытым
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	ok = true
	return &App{
		logger:      logger,
		httpServer:  httpServer,
		shutdownMgr: shutdownMgr,
	}, nil
}

// buildJournal выбирает журнал транзакций: PostgreSQL, файл или ничего
func buildJournal(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
	shutdownMgr *platformshutdown.Manager,
	checks map[string]platformhealth.Check,
) (repository.Journal, error) {
	if cfg.Storage.PostgresDSN == "" {
		if cfg.Storage.TransactionsFile == "" {
			logger.Warn("Transaction journal disabled, state is kept in memory only")
			return nil, nil
		}
		logger.Info("Using file transaction journal", zap.String("path", cfg.Storage.TransactionsFile))
		return file.NewTransactionJournal(cfg.Storage.TransactionsFile), nil
	}

	logger.Info("Applying migrations", zap.String("dir", cfg.Storage.MigrationsDir))
	if err := postgres.Migrate(ctx, cfg.Storage.PostgresDSN, cfg.Storage.MigrationsDir); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connection established")

	checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	return postgres.NewJournal(pool), nil
}

// buildCardStore выбирает хранилище карт: Redis или файл
func buildCardStore(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
	shutdownMgr *platformshutdown.Manager,
	checks map[string]platformhealth.Check,
) (repository.CardStore, error) {
	if cfg.Storage.RedisAddr == "" {
		logger.Info("Using file card store", zap.String("path", cfg.Storage.CardsFile))
		return file.NewCardStore(cfg.Storage.CardsFile, logger)
	}

	logger.Info("Connecting to Redis", zap.String("addr", cfg.Storage.RedisAddr))
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
	})
	shutdownMgr.Add("redis_client", platformshutdown.Close(client))
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return redisrepo.NewCardStore(ctx, client, cfg.Storage.RedisKey, logger)
}

// Run запускает HTTP сервер и блокируется до сигнала shutdown или отмены ctx
func (a *App) Run(ctx context.Context) error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting paystation relay", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var serveErr error
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			serveErr = err
			cancel()
		}
	}()

	a.shutdownMgr.Wait(waitCtx)

	a.wg.Wait()
	a.logger.Info("Paystation relay stopped")
	return serveErr
}
