// Package entitlements собирает основное приложение: HTTP API квот и
// выделений плюс потребитель очереди завершённых покупок.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/listing-entitlements/internal/cache"
	"github.com/magabrotheeeer/listing-entitlements/internal/config"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/migrations"
	coordinatorservice "github.com/magabrotheeeer/listing-entitlements/internal/services/coordinator"
	featureservice "github.com/magabrotheeeer/listing-entitlements/internal/services/feature"
	ledgerservice "github.com/magabrotheeeer/listing-entitlements/internal/services/ledger"
	"github.com/magabrotheeeer/listing-entitlements/internal/storage/repository"
)

// App представляет собранное приложение сервиса квот.
type App struct {
	server      *http.Server
	coordinator *coordinatorservice.CoordinatorService
	db          *repository.Storage
	conn        *amqp.Connection
	ch          *amqp.Channel
	logger      *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New инициализирует хранилище, кеш, брокер и сервисы, собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEntitlementQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	publisher := rabbitmq.NewPublisher(ch)

	ledgerService := ledgerservice.NewLedgerService(db, logger)
	featureService := featureservice.NewFeatureService(db, cacheRedis, logger)
	coordinatorService := coordinatorservice.NewCoordinatorService(
		ledgerService, featureService, publisher, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, coordinatorService, ledgerService, featureService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:      srv,
		coordinator: coordinatorService,
		db:          db,
		conn:        conn,
		ch:          ch,
		logger:      logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает потребитель покупок и HTTP-сервер, останавливает оба
// по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	go func() {
		err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueuePurchases,
			a.coordinator.PurchaseMessageHandler(ctx))
		if err != nil {
			a.logger.Error("purchase consumer stopped", sl.Err(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		closeResources(a.ch, a.conn, a.logger)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", sl.Err(closeErr))
		}
		return err
	}
}
