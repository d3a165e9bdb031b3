// Package sweeper содержит приложение фоновой уборки истёкших квот и выделений.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/listing-entitlements/internal/cache"
	"github.com/magabrotheeeer/listing-entitlements/internal/config"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	sweeperservice "github.com/magabrotheeeer/listing-entitlements/internal/services/sweeper"
	"github.com/magabrotheeeer/listing-entitlements/internal/storage/repository"
)

// Options режим запуска уборки, собирается из флагов командной строки.
type Options struct {
	Once      bool          // Один проход и выход
	DryRun    bool          // Только подсчёт, без изменений и событий
	BatchSize int           // Максимум строк за один проход
	Interval  time.Duration // Период между проходами в режиме демона
}

// App представляет приложение уборщика.
type App struct {
	sweeperService *sweeperservice.SweeperService
	db             *repository.Storage
	conn           *amqp.Connection
	ch             *amqp.Channel
	logger         *slog.Logger
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

// New создает новый экземпляр приложения уборщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEntitlementQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	publisher := rabbitmq.NewPublisher(ch)
	sweeperService := sweeperservice.NewSweeperService(db, publisher, cacheRedis, logger)

	return &App{
		sweeperService: sweeperService,
		db:             db,
		conn:           conn,
		ch:             ch,
		logger:         logger,
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

// Run выполняет уборку в выбранном режиме. В режиме одного прохода
// возвращает ошибку, если проход не удался; в режиме демона работает
// до отмены контекста.
func (a *App) Run(ctx context.Context, opts Options) error {
	defer a.close()

	switch {
	case opts.DryRun:
		stats, err := a.sweeperService.DryRun(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("dry run failed: %w", err)
		}
		a.logger.Info("dry run complete",
			slog.Int("expirable_entitlements", stats.ExpiredEntitlements),
			slog.Int("expirable_activations", stats.ExpiredActivations))
		return nil
	case opts.Once:
		stats, err := a.sweeperService.RunOnce(ctx, time.Now().UTC(), opts.BatchSize)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		a.logger.Info("sweep complete",
			slog.Int("expired_entitlements", stats.ExpiredEntitlements),
			slog.Int("expired_activations", stats.ExpiredActivations),
			slog.Int("published_events", stats.PublishedEvents),
			slog.Int("publish_errors", stats.PublishErrors))
		return nil
	default:
		a.sweeperService.Run(ctx, opts.Interval, opts.BatchSize)
		return nil
	}
}

func (a *App) close() {
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
