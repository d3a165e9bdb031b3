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

// CreateEntitlement вставляет новую квоту. Вставка идемпотентна по ключу:
// при повторной выдаче возвращается уже существующая запись
// вместе с ErrDuplicateGrant.
func (s *Storage) CreateEntitlement(ctx context.Context, ent models.Entitlement) (*models.Entitlement, error) {
	const op = "storage.CreateEntitlement"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO entitlements (owner_uid, source, package_id, total_units,
			      remaining_units, issued_at, expires_at, status, idempotency_key)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (idempotency_key) DO NOTHING
			  RETURNING id`
	var newID int64
	err := s.DB.QueryRowContext(ctx, query,
		ent.OwnerUID, ent.Source, ent.PackageID, ent.TotalUnits, ent.RemainingUnits,
		ent.IssuedAt, ent.ExpiresAt, ent.Status, ent.IdempotencyKey).Scan(&newID)
	if errors.Is(err, sql.ErrNoRows) {
		existing, readErr := s.ReadEntitlementByKey(ctx, ent.IdempotencyKey)
		if readErr != nil {
			return nil, fmt.Errorf("%s: %w", op, readErr)
		}
		return existing, ErrDuplicateGrant
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ent.ID = newID
	return &ent, nil
}

// ReadEntitlementByKey возвращает квоту по ключу идемпотентности.
func (s *Storage) ReadEntitlementByKey(ctx context.Context, idempotencyKey string) (*models.Entitlement, error) {
	const op = "storage.ReadEntitlementByKey"

	query := `SELECT id, owner_uid, source, package_id, total_units, remaining_units,
				issued_at, expires_at, status, idempotency_key
			  FROM entitlements WHERE idempotency_key = $1`
	row := s.DB.QueryRowContext(ctx, query, idempotencyKey)

	var result models.Entitlement
	if err := row.Scan(&result.ID, &result.OwnerUID, &result.Source, &result.PackageID,
		&result.TotalUnits, &result.RemainingUnits, &result.IssuedAt, &result.ExpiresAt,
		&result.Status, &result.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ResolveAndConsume атомарно списывает одну единицу квоты владельца.
// Кандидат выбирается среди активных, непросроченных квот с остатком:
// первой тратится квота с наименьшим expires_at (при равенстве — с
// наименьшим issued_at), чтобы единицы не сгорали при истечении срока.
// Выбор, проверка и декремент выполняются одним условным обновлением.
// Если единственный кандидат заблокирован конкурентным списанием,
// попытка повторяется, пока подходящие строки существуют: при N
// конкурентных вызовах против K доступных единиц ровно K вызовов
// получают списание. Списание последней единицы переводит строку
// в состояние exhausted тем же запросом.
func (s *Storage) ResolveAndConsume(ctx context.Context, ownerUID string, now time.Time) (*models.ConsumeResult, error) {
	const op = "storage.ResolveAndConsume"

	query := `UPDATE entitlements
			  SET remaining_units = remaining_units - 1,
			      status = CASE WHEN remaining_units - 1 = 0 THEN 'exhausted' ELSE status END
			  WHERE id = (
			      SELECT id FROM entitlements
			      WHERE owner_uid = $1
			        AND status = 'active'
			        AND remaining_units > 0
			        AND expires_at >= $2
			      ORDER BY expires_at, issued_at
			      LIMIT 1
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING id, remaining_units, status`
	existsQuery := `SELECT EXISTS (
			      SELECT 1 FROM entitlements
			      WHERE owner_uid = $1
			        AND status = 'active'
			        AND remaining_units > 0
			        AND expires_at >= $2
			  )`
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		default:
		}

		var (
			result models.ConsumeResult
			status models.EntitlementStatus
		)
		err := s.DB.QueryRowContext(ctx, query, ownerUID, now).
			Scan(&result.EntitlementID, &result.RemainingUnits, &status)
		if err == nil {
			result.Exhausted = status == models.EntitlementStatusExhausted
			return &result, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			// Кандидатов нет либо все заблокированы конкурентами.
			var exists bool
			if err := s.DB.QueryRowContext(ctx, existsQuery, ownerUID, now).Scan(&exists); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if !exists {
				return nil, ErrNoEligibleEntitlement
			}
			continue
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure {
			return nil, ErrConcurrentModification
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
}

// ListEntitlementsByOwner возвращает список квот владельца с пагинацией,
// начиная с истекающих раньше остальных.
func (s *Storage) ListEntitlementsByOwner(ctx context.Context, ownerUID string, limit, offset int) ([]*models.Entitlement, error) {
	const op = "storage.ListEntitlementsByOwner"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, owner_uid, source, package_id, total_units, remaining_units,
				issued_at, expires_at, status, idempotency_key
			  FROM entitlements
			  WHERE owner_uid = $1
			  ORDER BY expires_at, issued_at
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, ownerUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []*models.Entitlement
	for rows.Next() {
		var item models.Entitlement
		if err := rows.Scan(&item.ID, &item.OwnerUID, &item.Source, &item.PackageID,
			&item.TotalUnits, &item.RemainingUnits, &item.IssuedAt, &item.ExpiresAt,
			&item.Status, &item.IdempotencyKey); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
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

// ExpireEntitlements переводит в состояние expired просроченные активные
// квоты, не более batchSize за вызов. Выбор и перевод выполняются одним
// запросом с FOR UPDATE SKIP LOCKED: при нескольких конкурентных вызовах
// каждая строка достаётся ровно одному из них. Возвращаются захваченные строки.
func (s *Storage) ExpireEntitlements(ctx context.Context, now time.Time, batchSize int) ([]models.EntitlementExpired, error) {
	const op = "storage.ExpireEntitlements"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE entitlements
			  SET status = 'expired'
			  WHERE id IN (
			      SELECT id FROM entitlements
			      WHERE status = 'active' AND expires_at <= $1
			      ORDER BY expires_at
			      LIMIT $2
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING id, owner_uid, remaining_units, source`
	rows, err := s.DB.QueryContext(ctx, query, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []models.EntitlementExpired
	for rows.Next() {
		var item models.EntitlementExpired
		if err := rows.Scan(&item.EntitlementID, &item.OwnerUID, &item.RemainingUnits, &item.Source); err != nil {
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

// CountExpirableEntitlements подсчитывает просроченные активные квоты,
// ничего не изменяя. Используется в режиме dry-run.
func (s *Storage) CountExpirableEntitlements(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.CountExpirableEntitlements"

	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entitlements WHERE status = 'active' AND expires_at <= $1`,
		now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
