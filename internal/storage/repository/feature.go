package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/listing-entitlements/internal/models"
)

// ActivateFeature создаёт или продлевает выделение объявления.
// Операция идемпотентна по платежу: каждый paymentID применяется не более
// одного раза, повторная доставка возвращает текущий срок действия вместе
// с ErrDuplicateActivation. Если активное выделение уже существует,
// новый срок складывается с остатком: GREATEST(expires_at, now) + duration.
func (s *Storage) ActivateFeature(ctx context.Context, resourceID int64, featureType models.FeatureType,
	duration time.Duration, paymentID string, now time.Time) (time.Time, error) {
	const op = "storage.ActivateFeature"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO feature_activation_payments (payment_id, applied_at)
		 VALUES ($1, $2)
		 ON CONFLICT (payment_id) DO NOTHING`,
		paymentID, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		var expiresAt time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT fa.expires_at
			 FROM feature_activation_payments p
			 JOIN feature_activations fa ON fa.id = p.activation_id
			 WHERE p.payment_id = $1`,
			paymentID).Scan(&expiresAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
		if err := tx.Commit(); err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
		return expiresAt, ErrDuplicateActivation
	}

	var (
		activationID int64
		expiresAt    time.Time
	)
	err = tx.QueryRowContext(ctx,
		`UPDATE feature_activations
		 SET expires_at = GREATEST(expires_at, $3) + make_interval(secs => $4)
		 WHERE resource_id = $1 AND feature_type = $2 AND status = 'active'
		 RETURNING id, expires_at`,
		resourceID, featureType, now, duration.Seconds()).Scan(&activationID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO feature_activations (resource_id, feature_type, activated_at,
				expires_at, status, source_payment_id)
			 VALUES ($1, $2, $3, $4, 'active', $5)
			 RETURNING id, expires_at`,
			resourceID, featureType, now, now.Add(duration), paymentID).Scan(&activationID, &expiresAt)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Конкурирующая вставка успела создать активную строку.
			return time.Time{}, ErrConcurrentModification
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE feature_activation_payments SET activation_id = $2 WHERE payment_id = $1`,
		paymentID, activationID); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return expiresAt, nil
}

// ReadActiveFeatureExpiry возвращает срок действия активного выделения
// для пары (объявление, вид выделения) либо ErrActivationNotFound.
func (s *Storage) ReadActiveFeatureExpiry(ctx context.Context, resourceID int64, featureType models.FeatureType) (time.Time, error) {
	const op = "storage.ReadActiveFeatureExpiry"

	var expiresAt time.Time
	err := s.DB.QueryRowContext(ctx,
		`SELECT expires_at FROM feature_activations
		 WHERE resource_id = $1 AND feature_type = $2 AND status = 'active'`,
		resourceID, featureType).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrActivationNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return expiresAt, nil
}

// ListActiveFeatures возвращает все действующие виды выделений объявления.
func (s *Storage) ListActiveFeatures(ctx context.Context, resourceID int64, now time.Time) ([]models.FeatureType, error) {
	const op = "storage.ListActiveFeatures"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT feature_type FROM feature_activations
		 WHERE resource_id = $1 AND status = 'active' AND expires_at >= $2
		 ORDER BY feature_type`,
		resourceID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []models.FeatureType
	for rows.Next() {
		var ft models.FeatureType
		if err := rows.Scan(&ft); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, ft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeactivateFeature переводит активное выделение в состояние expired.
// Возвращает true только тому вызову, который выполнил переход:
// повторный вызов и вызов для отсутствующей записи получают
// ErrActivationNotFound.
func (s *Storage) DeactivateFeature(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error) {
	const op = "storage.DeactivateFeature"

	res, err := s.DB.ExecContext(ctx,
		`UPDATE feature_activations SET status = 'expired'
		 WHERE resource_id = $1 AND feature_type = $2 AND status = 'active'`,
		resourceID, featureType)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return false, ErrActivationNotFound
	}
	return true, nil
}

// ExpireFeatureActivations переводит в состояние expired просроченные
// активные выделения, не более batchSize за вызов, и возвращает захваченные
// строки. Как и для квот, каждый конкурентный вызов захватывает
// непересекающееся множество строк.
func (s *Storage) ExpireFeatureActivations(ctx context.Context, now time.Time, batchSize int) ([]models.FeatureExpired, error) {
	const op = "storage.ExpireFeatureActivations"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE feature_activations
			  SET status = 'expired'
			  WHERE id IN (
			      SELECT id FROM feature_activations
			      WHERE status = 'active' AND expires_at <= $1
			      ORDER BY expires_at
			      LIMIT $2
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING resource_id, feature_type`
	rows, err := s.DB.QueryContext(ctx, query, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []models.FeatureExpired
	for rows.Next() {
		var item models.FeatureExpired
		if err := rows.Scan(&item.ResourceID, &item.FeatureType); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountExpirableActivations подсчитывает просроченные активные выделения,
// ничего не изменяя. Используется в режиме dry-run.
func (s *Storage) CountExpirableActivations(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.CountExpirableActivations"

	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feature_activations WHERE status = 'active' AND expires_at <= $1`,
		now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
