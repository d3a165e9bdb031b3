// Package services содержит процесс сверки истечений: периодический
// батчевый перевод просроченных квот и выделений в терминальное состояние
// с публикацией событий для внешних потребителей.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/listing-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/metrics"
	"github.com/magabrotheeeer/listing-entitlements/internal/models"
)

// SweepRepository определяет операции хранилища, нужные процессу сверки.
type SweepRepository interface {
	// ExpireEntitlements захватывает и переводит просроченные квоты.
	ExpireEntitlements(ctx context.Context, now time.Time, batchSize int) ([]models.EntitlementExpired, error)
	// ExpireFeatureActivations захватывает и переводит просроченные выделения.
	ExpireFeatureActivations(ctx context.Context, now time.Time, batchSize int) ([]models.FeatureExpired, error)
	// CountExpirableEntitlements подсчитывает просроченные квоты без изменений.
	CountExpirableEntitlements(ctx context.Context, now time.Time) (int, error)
	// CountExpirableActivations подсчитывает просроченные выделения без изменений.
	CountExpirableActivations(ctx context.Context, now time.Time) (int, error)
}

// EventPublisher публикует события истечения для внешних потребителей.
type EventPublisher interface {
	Publish(routingKey string, message any) error
}

// Cache описывает операцию инвалидации кеша статусов выделений.
type Cache interface {
	Invalidate(key string) error
}

// Stats итог одного прохода сверки.
type Stats struct {
	ExpiredEntitlements int // Квот переведено в expired (или найдено при dry-run)
	ExpiredActivations  int // Выделений переведено в expired (или найдено при dry-run)
	PublishedEvents     int // Успешно опубликованных событий
	PublishErrors       int // Ошибок публикации
}

// SweeperService выполняет батчевую сверку истечений. Несколько экземпляров
// могут работать параллельно: захват строк в хранилище гарантирует, что
// каждая просроченная строка достаётся ровно одному экземпляру и порождает
// ровно одно событие.
type SweeperService struct {
	repo      SweepRepository
	publisher EventPublisher
	cache     Cache
	log       *slog.Logger
}

// NewSweeperService создает новый экземпляр SweeperService.
func NewSweeperService(repo SweepRepository, publisher EventPublisher, cache Cache, log *slog.Logger) *SweeperService {
	return &SweeperService{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		log:       log,
	}
}

// RunOnce выполняет один проход: сначала квоты, затем выделения, каждый шаг
// не более batchSize строк. Проход, упёршийся в лимит, просто оставляет
// хвост следующему запуску: предикат выбора всегда вычисляется заново по
// текущему состоянию, поэтому повторный запуск безопасен и не порождает
// дубликатов событий. Ошибка публикации не откатывает переход: строка уже
// терминальна, потребители сверяются через чтение статуса.
func (s *SweeperService) RunOnce(ctx context.Context, now time.Time, batchSize int) (Stats, error) {
	const op = "sweeper.RunOnce"
	var stats Stats

	expiredEnts, err := s.repo.ExpireEntitlements(ctx, now, batchSize)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	stats.ExpiredEntitlements = len(expiredEnts)
	metrics.SweepExpiredRows.WithLabelValues("entitlement").Add(float64(len(expiredEnts)))
	for _, ent := range expiredEnts {
		if err := s.publisher.Publish(rabbitmq.RoutingKeyEntitlementExpired, ent); err != nil {
			stats.PublishErrors++
			metrics.SweepPublishErrors.Inc()
			s.log.Error("failed to publish entitlement expiry", sl.Err(err),
				slog.Int64("entitlement_id", ent.EntitlementID))
			continue
		}
		stats.PublishedEvents++
	}

	expiredFeatures, err := s.repo.ExpireFeatureActivations(ctx, now, batchSize)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	stats.ExpiredActivations = len(expiredFeatures)
	metrics.SweepExpiredRows.WithLabelValues("feature_activation").Add(float64(len(expiredFeatures)))
	for _, feature := range expiredFeatures {
		cacheKey := fmt.Sprintf("feature:%d:%s", feature.ResourceID, feature.FeatureType)
		if err := s.cache.Invalidate(cacheKey); err != nil {
			s.log.Warn("failed to invalidate feature cache", slog.String("key", cacheKey), sl.Err(err))
		}
		if err := s.publisher.Publish(rabbitmq.RoutingKeyFeatureExpired, feature); err != nil {
			stats.PublishErrors++
			metrics.SweepPublishErrors.Inc()
			s.log.Error("failed to publish feature expiry", sl.Err(err),
				slog.Int64("resource_id", feature.ResourceID),
				slog.String("feature_type", feature.FeatureType))
			continue
		}
		stats.PublishedEvents++
	}

	s.log.Info("sweep pass finished",
		slog.Int("expired_entitlements", stats.ExpiredEntitlements),
		slog.Int("expired_activations", stats.ExpiredActivations),
		slog.Int("published_events", stats.PublishedEvents),
		slog.Int("publish_errors", stats.PublishErrors))
	return stats, nil
}

// DryRun подсчитывает строки, которые перевёл бы RunOnce, ничего не изменяя.
func (s *SweeperService) DryRun(ctx context.Context, now time.Time) (Stats, error) {
	const op = "sweeper.DryRun"
	var stats Stats

	entCount, err := s.repo.CountExpirableEntitlements(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	stats.ExpiredEntitlements = entCount

	featureCount, err := s.repo.CountExpirableActivations(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	stats.ExpiredActivations = featureCount

	s.log.Info("sweep dry-run finished",
		slog.Int("expirable_entitlements", stats.ExpiredEntitlements),
		slog.Int("expirable_activations", stats.ExpiredActivations))
	return stats, nil
}

// Run запускает периодическую сверку: первый проход немедленно, затем
// по тикеру до отмены контекста. Ошибка прохода логируется и не
// останавливает цикл: хвост подберёт следующий тик.
func (s *SweeperService) Run(ctx context.Context, interval time.Duration, batchSize int) {
	s.runPass(ctx, batchSize)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runPass(ctx, batchSize)
		case <-ctx.Done():
			return
		}
	}
}

func (s *SweeperService) runPass(ctx context.Context, batchSize int) {
	s.log.Info("starting sweep pass")
	if _, err := s.RunOnce(ctx, time.Now().UTC(), batchSize); err != nil {
		s.log.Error("sweep pass failed", sl.Err(err))
	}
}
