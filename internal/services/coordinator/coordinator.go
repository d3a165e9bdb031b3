// Package services содержит координатор потребления: единственную точку
// входа для внешних сотрудничающих сервисов. Координатор авторизует
// создание объявлений через реестр квот и маршрутизирует результаты
// завершённых покупок в реестр либо в хранилище выделений.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/listing-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/metrics"
	"github.com/magabrotheeeer/listing-entitlements/internal/models"
	"github.com/magabrotheeeer/listing-entitlements/internal/storage/repository"
)

// ErrInvalidOutcome означает событие покупки с неизвестным или
// некорректным результатом. Такое событие отбрасывается, состояние
// других владельцев не затрагивается.
var ErrInvalidOutcome = errors.New("invalid purchase outcome")

// Ledger определяет операции реестра квот, используемые координатором.
type Ledger interface {
	Grant(ctx context.Context, ownerUID string, source models.EntitlementSource,
		packageID *string, units int, duration time.Duration, idempotencyKey string) (*models.Entitlement, error)
	GrantSignupFree(ctx context.Context, ownerUID string) (*models.Entitlement, error)
	ResolveAndConsume(ctx context.Context, ownerUID string) (*models.ConsumeResult, error)
}

// FeatureStore определяет операции хранилища выделений, используемые координатором.
type FeatureStore interface {
	Activate(ctx context.Context, resourceID int64, featureType models.FeatureType,
		duration time.Duration, paymentID string) (time.Time, error)
}

// EventPublisher публикует исходящие доменные события.
type EventPublisher interface {
	Publish(routingKey string, message any) error
}

// Decision результат авторизации создания объявления.
type Decision struct {
	Authorized    bool  // true, если единица квоты списана
	EntitlementID int64 // Квота, с которой произошло списание
}

// CoordinatorService связывает реестр квот и хранилище выделений
// в единый входной контракт для внешних сервисов.
type CoordinatorService struct {
	ledger    Ledger
	features  FeatureStore
	publisher EventPublisher
	log       *slog.Logger
	validate  *validator.Validate
}

// NewCoordinatorService создает новый экземпляр CoordinatorService.
func NewCoordinatorService(ledger Ledger, features FeatureStore, publisher EventPublisher, log *slog.Logger) *CoordinatorService {
	return &CoordinatorService{
		ledger:    ledger,
		features:  features,
		publisher: publisher,
		log:       log,
		validate:  validator.New(),
	}
}

// AuthorizeListingCreation единственный шлюз перед сохранением нового
// объявления: списывает одну единицу квоты либо отказывает. Отказ —
// обычное возвращаемое значение, а не ошибка: вызывающая сторона
// показывает пользователю "требуется покупка". Списанная единица
// не возвращается, даже если создание объявления после авторизации
// не состоялось.
func (s *CoordinatorService) AuthorizeListingCreation(ctx context.Context, ownerUID string) (*Decision, error) {
	result, err := s.ledger.ResolveAndConsume(ctx, ownerUID)
	if errors.Is(err, repository.ErrNoEligibleEntitlement) {
		metrics.ConsumesDenied.Inc()
		s.log.Info("listing creation denied", slog.String("owner_uid", ownerUID))
		return &Decision{Authorized: false}, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.ConsumesAuthorized.Inc()
	if result.Exhausted {
		event := models.EntitlementExhausted{OwnerUID: ownerUID}
		if err := s.publisher.Publish(rabbitmq.RoutingKeyExhausted, event); err != nil {
			s.log.Error("failed to publish exhaustion event", sl.Err(err),
				slog.String("owner_uid", ownerUID))
		}
	}
	return &Decision{Authorized: true, EntitlementID: result.EntitlementID}, nil
}

// ApplyPurchase применяет завершённую покупку: пакет размещений уходит
// в реестр квот, выделение объявления — в хранилище выделений. Оба пути
// используют PaymentID как ключ идемпотентности, поэтому повторная
// доставка события не приводит к двойной выдаче.
func (s *CoordinatorService) ApplyPurchase(ctx context.Context, event models.PurchaseCompleted) error {
	const op = "coordinator.ApplyPurchase"

	duration := time.Duration(event.Outcome.DurationDays) * 24 * time.Hour

	switch event.Outcome.Kind {
	case models.OutcomePackageGrant:
		if event.Outcome.Units <= 0 {
			return fmt.Errorf("%s: %w: units=%d", op, ErrInvalidOutcome, event.Outcome.Units)
		}
		var packageID *string
		if event.Outcome.PackageID != "" {
			packageID = &event.Outcome.PackageID
		}
		_, err := s.ledger.Grant(ctx, event.OwnerUID, models.SourcePurchasedPackage,
			packageID, event.Outcome.Units, duration, event.PaymentID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	case models.OutcomeFeatureUpgrade:
		featureType, err := models.ParseFeatureType(event.Outcome.FeatureType)
		if err != nil {
			return fmt.Errorf("%s: %w: %q", op, err, event.Outcome.FeatureType)
		}
		if _, err := s.features.Activate(ctx, event.Outcome.ResourceID, featureType,
			duration, event.PaymentID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	default:
		return fmt.Errorf("%s: %w: kind=%q", op, ErrInvalidOutcome, event.Outcome.Kind)
	}

	s.log.Info("applied purchase",
		slog.String("payment_id", event.PaymentID),
		slog.String("kind", string(event.Outcome.Kind)))
	return nil
}

// RegisterOwner выдаёт бесплатную квоту новому владельцу. Повторный вызов
// идемпотентен.
func (s *CoordinatorService) RegisterOwner(ctx context.Context, ownerUID string) (*models.Entitlement, error) {
	return s.ledger.GrantSignupFree(ctx, ownerUID)
}

// PurchaseMessageHandler возвращает обработчик сообщений очереди покупок.
// Ошибки валидации события не возвращаются наружу: такое сообщение
// подтверждается и отбрасывается после записи в лог, чтобы не зациклить
// доставку. Ошибки хранилища возвращаются для повторной постановки.
func (s *CoordinatorService) PurchaseMessageHandler(ctx context.Context) func([]byte) error {
	return func(body []byte) error {
		var event models.PurchaseCompleted
		if err := json.Unmarshal(body, &event); err != nil {
			s.log.Error("failed to decode purchase event", sl.Err(err))
			return nil
		}
		if err := s.validate.Struct(event); err != nil {
			s.log.Error("invalid purchase event", sl.Err(err))
			return nil
		}

		err := s.ApplyPurchase(ctx, event)
		if errors.Is(err, ErrInvalidOutcome) || errors.Is(err, models.ErrInvalidFeatureType) ||
			errors.Is(err, repository.ErrInvalidGrant) {
			s.log.Error("rejected malformed purchase event", sl.Err(err),
				slog.String("payment_id", event.PaymentID))
			return nil
		}
		return err
	}
}
