// Package services содержит бизнес-логику платных выделений объявлений:
// активацию с продлением, проверку статуса с кешированием и снятие.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/metrics"
	"github.com/magabrotheeeer/listing-entitlements/internal/models"
	"github.com/magabrotheeeer/listing-entitlements/internal/storage/repository"
)

// statusCacheTTL ограничивает жизнь кешированного статуса: после
// тихой инвалидации (сбой Redis) запись всё равно скоро протухнет.
const statusCacheTTL = time.Minute

// FeatureRepository определяет методы для работы с выделениями в хранилище.
type FeatureRepository interface {
	// ActivateFeature создаёт или продлевает выделение, идемпотентно по платежу.
	ActivateFeature(ctx context.Context, resourceID int64, featureType models.FeatureType,
		duration time.Duration, paymentID string, now time.Time) (time.Time, error)
	// ReadActiveFeatureExpiry возвращает срок действия активного выделения.
	ReadActiveFeatureExpiry(ctx context.Context, resourceID int64, featureType models.FeatureType) (time.Time, error)
	// ListActiveFeatures возвращает действующие виды выделений объявления.
	ListActiveFeatures(ctx context.Context, resourceID int64, now time.Time) ([]models.FeatureType, error)
	// DeactivateFeature переводит активное выделение в expired.
	DeactivateFeature(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// FeatureService реализует хранилище выделений с кешированием статуса
// на пути отображения.
type FeatureService struct {
	repo  FeatureRepository
	cache Cache
	log   *slog.Logger
	now   func() time.Time
}

// NewFeatureService создает новый экземпляр FeatureService.
func NewFeatureService(repo FeatureRepository, cache Cache, log *slog.Logger) *FeatureService {
	return &FeatureService{
		repo:  repo,
		cache: cache,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func statusCacheKey(resourceID int64, featureType models.FeatureType) string {
	return fmt.Sprintf("feature:%d:%s", resourceID, featureType)
}

// Activate применяет покупку выделения. Повторная доставка того же платежа
// не продлевает срок второй раз и возвращает текущий expires_at.
// Кратковременный конфликт конкурирующей активации повторяется один раз.
func (s *FeatureService) Activate(ctx context.Context, resourceID int64, featureType models.FeatureType,
	duration time.Duration, paymentID string) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("%w: duration=%s", repository.ErrInvalidGrant, duration)
	}

	expiresAt, err := s.repo.ActivateFeature(ctx, resourceID, featureType, duration, paymentID, s.now())
	if errors.Is(err, repository.ErrConcurrentModification) {
		expiresAt, err = s.repo.ActivateFeature(ctx, resourceID, featureType, duration, paymentID, s.now())
	}
	if errors.Is(err, repository.ErrDuplicateActivation) {
		s.log.Debug("activation already applied",
			slog.String("payment_id", paymentID),
			slog.Int64("resource_id", resourceID))
		return expiresAt, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	cacheKey := statusCacheKey(resourceID, featureType)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate feature cache", slog.String("key", cacheKey), sl.Err(err))
	}

	metrics.FeatureActivations.WithLabelValues(featureType.String()).Inc()
	s.log.Info("activated feature",
		slog.Int64("resource_id", resourceID),
		slog.String("feature_type", featureType.String()),
		slog.Time("expires_at", expiresAt))
	return expiresAt, nil
}

// IsActive проверяет, действует ли выделение, используя кеш или хранилище.
// В кеше хранится срок действия: это позволяет отвечать отрицательно
// сразу после истечения, не дожидаясь инвалидации.
func (s *FeatureService) IsActive(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error) {
	cacheKey := statusCacheKey(resourceID, featureType)

	var cachedExpiry time.Time
	found, err := s.cache.Get(cacheKey, &cachedExpiry)
	if err != nil {
		s.log.Warn("failed to read feature cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if err == nil && found {
		return !s.now().After(cachedExpiry), nil
	}

	expiresAt, err := s.repo.ReadActiveFeatureExpiry(ctx, resourceID, featureType)
	if errors.Is(err, repository.ErrActivationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.cache.Set(cacheKey, expiresAt, statusCacheTTL); err != nil {
		s.log.Warn("failed to cache feature status", slog.String("key", cacheKey), sl.Err(err))
	}
	return !s.now().After(expiresAt), nil
}

// ActiveFeatures возвращает все действующие виды выделений объявления.
func (s *FeatureService) ActiveFeatures(ctx context.Context, resourceID int64) ([]models.FeatureType, error) {
	features, err := s.repo.ListActiveFeatures(ctx, resourceID, s.now())
	if err != nil {
		s.log.Error("failed to list active features", sl.Err(err))
		return nil, err
	}
	return features, nil
}

// Deactivate снимает выделение. Возвращает true только вызову, выполнившему
// переход Active -> Expired: на этом признаке вызывающая сторона строит
// однократные побочные действия. Повторный вызов идемпотентен.
func (s *FeatureService) Deactivate(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error) {
	cacheKey := statusCacheKey(resourceID, featureType)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate feature cache", slog.String("key", cacheKey), sl.Err(err))
	}

	transitioned, err := s.repo.DeactivateFeature(ctx, resourceID, featureType)
	if errors.Is(err, repository.ErrActivationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.log.Info("deactivated feature",
		slog.Int64("resource_id", resourceID),
		slog.String("feature_type", featureType.String()))
	return transitioned, nil
}
