// Package services содержит бизнес-логику реестра квот: выдачу и
// атомарное списание единиц на публикацию объявлений.
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

// Параметры бесплатной квоты, выдаваемой при регистрации владельца.
const (
	FreeGrantUnits    = 1
	FreeGrantDuration = 365 * 24 * time.Hour
)

// EntitlementRepository определяет методы для работы с квотами в хранилище.
type EntitlementRepository interface {
	// CreateEntitlement вставляет квоту, идемпотентно по ключу.
	CreateEntitlement(ctx context.Context, ent models.Entitlement) (*models.Entitlement, error)
	// ResolveAndConsume атомарно списывает одну единицу квоты владельца.
	ResolveAndConsume(ctx context.Context, ownerUID string, now time.Time) (*models.ConsumeResult, error)
	// ListEntitlementsByOwner возвращает квоты владельца с пагинацией.
	ListEntitlementsByOwner(ctx context.Context, ownerUID string, limit, offset int) ([]*models.Entitlement, error)
}

// LedgerService реализует реестр квот поверх хранилища.
type LedgerService struct {
	repo EntitlementRepository
	log  *slog.Logger
	now  func() time.Time
}

// NewLedgerService создает новый экземпляр LedgerService.
func NewLedgerService(repo EntitlementRepository, log *slog.Logger) *LedgerService {
	return &LedgerService{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Grant выдаёт владельцу новую квоту. Повторная выдача по тому же ключу
// идемпотентности возвращает уже существующую запись без изменений.
func (s *LedgerService) Grant(ctx context.Context, ownerUID string, source models.EntitlementSource,
	packageID *string, units int, duration time.Duration, idempotencyKey string) (*models.Entitlement, error) {
	if units <= 0 || duration <= 0 {
		return nil, fmt.Errorf("%w: units=%d duration=%s", repository.ErrInvalidGrant, units, duration)
	}

	now := s.now()
	ent := models.Entitlement{
		OwnerUID:       ownerUID,
		Source:         source,
		PackageID:      packageID,
		TotalUnits:     units,
		RemainingUnits: units,
		IssuedAt:       now,
		ExpiresAt:      now.Add(duration),
		Status:         models.EntitlementStatusActive,
		IdempotencyKey: idempotencyKey,
	}

	created, err := s.repo.CreateEntitlement(ctx, ent)
	if errors.Is(err, repository.ErrDuplicateGrant) {
		s.log.Debug("grant already applied",
			slog.String("idempotency_key", idempotencyKey),
			slog.Int64("entitlement_id", created.ID))
		return created, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.GrantsIssued.WithLabelValues(string(source)).Inc()
	s.log.Info("granted entitlement",
		slog.Int64("id", created.ID),
		slog.String("owner_uid", ownerUID),
		slog.String("source", string(source)),
		slog.Int("units", units))
	return created, nil
}

// GrantSignupFree выдаёт бесплатную квоту при регистрации:
// одна единица, действует 365 дней. Повторный вызов для того же
// владельца возвращает уже выданную квоту.
func (s *LedgerService) GrantSignupFree(ctx context.Context, ownerUID string) (*models.Entitlement, error) {
	return s.Grant(ctx, ownerUID, models.SourceFreeGrant, nil,
		FreeGrantUnits, FreeGrantDuration, "signup:"+ownerUID)
}

// ResolveAndConsume списывает одну единицу квоты владельца. Кратковременный
// конфликт конкурирующих обновлений повторяется один раз, после чего
// вызывающая сторона получает ErrNoEligibleEntitlement: отказ — штатный
// исход, означающий "требуется покупка".
func (s *LedgerService) ResolveAndConsume(ctx context.Context, ownerUID string) (*models.ConsumeResult, error) {
	result, err := s.repo.ResolveAndConsume(ctx, ownerUID, s.now())
	if errors.Is(err, repository.ErrConcurrentModification) {
		s.log.Debug("consume contention, retrying once", slog.String("owner_uid", ownerUID))
		result, err = s.repo.ResolveAndConsume(ctx, ownerUID, s.now())
		if errors.Is(err, repository.ErrConcurrentModification) {
			return nil, repository.ErrNoEligibleEntitlement
		}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("consumed entitlement unit",
		slog.String("owner_uid", ownerUID),
		slog.Int64("entitlement_id", result.EntitlementID),
		slog.Int("remaining_units", result.RemainingUnits))
	return result, nil
}

// ListByOwner возвращает список квот владельца для отображения.
func (s *LedgerService) ListByOwner(ctx context.Context, ownerUID string, limit, offset int) ([]*models.Entitlement, error) {
	entries, err := s.repo.ListEntitlementsByOwner(ctx, ownerUID, limit, offset)
	if err != nil {
		s.log.Error("failed to list entitlements", sl.Err(err))
		return nil, err
	}
	return entries, nil
}
