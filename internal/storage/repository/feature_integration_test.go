package repository

import (
	"context"
	"fmt"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/listing-entitlements/internal/models"
)

func TestStorage_ActivateFeature(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	verification := NewTestVerification(storage)
	now := time.Now().UTC().Truncate(time.Second)
	const resourceID = int64(1001)
	week := 7 * 24 * time.Hour

	expiresAt, err := storage.ActivateFeature(context.Background(), resourceID,
		models.FeatureTypePinned, week, "pay-1", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(week), expiresAt, time.Second)
	verification.VerifyPaymentRecorded(t, "pay-1")

	// Повторная доставка того же платежа не продлевает срок
	duplicate, err := storage.ActivateFeature(context.Background(), resourceID,
		models.FeatureTypePinned, week, "pay-1", now.Add(time.Minute))
	require.ErrorIs(t, err, ErrDuplicateActivation)
	assert.WithinDuration(t, expiresAt, duplicate, time.Second)

	// Новый платёж того же вида продлевает от текущего остатка
	extended, err := storage.ActivateFeature(context.Background(), resourceID,
		models.FeatureTypePinned, week, "pay-2", now.Add(time.Hour))
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(2*week), extended, time.Second)

	// Для пары (объявление, вид) существует одна активная строка
	var count int
	err = storage.DB.QueryRow(
		`SELECT COUNT(*) FROM feature_activations
		 WHERE resource_id = $1 AND feature_type = $2 AND status = 'active'`,
		resourceID, models.FeatureTypePinned).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStorage_ActivateFeature_AfterLapse(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	const resourceID = int64(1001)
	week := 7 * 24 * time.Hour
	factory := NewTestDataFactory(storage)

	// Прошлое выделение уже истекло и снято уборщиком
	factory.CreateActivation(t, resourceID, models.FeatureTypeUrgent,
		now.Add(-2*week), now.Add(-week), models.ActivationStatusExpired, "pay-old")

	// Новая покупка отсчитывает срок от настоящего, а не от истёкшей записи
	expiresAt, err := storage.ActivateFeature(context.Background(), resourceID,
		models.FeatureTypeUrgent, week, "pay-new", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(week), expiresAt, time.Second)
}

func TestStorage_ActivateFeature_ConcurrentSamePayment(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Now().UTC()
	week := 7 * 24 * time.Hour

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.ActivateFeature(context.Background(), 1001,
				models.FeatureTypeHighlighted, week, "pay-concurrent", now)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	var succeeded, rejected int
	for err := range errCh {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateActivation), errors.Is(err, ErrConcurrentModification):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)

	// Платёж применился ровно один раз
	var count int
	err := storage.DB.QueryRow(
		"SELECT COUNT(*) FROM feature_activations WHERE resource_id = 1001").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStorage_ReadActiveFeatureExpiry(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	factory := NewTestDataFactory(storage)
	factory.CreateActivation(t, 1001, models.FeatureTypePinned,
		now, now.Add(time.Hour), models.ActivationStatusActive, "pay-1")

	expiresAt, err := storage.ReadActiveFeatureExpiry(context.Background(), 1001, models.FeatureTypePinned)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	_, err = storage.ReadActiveFeatureExpiry(context.Background(), 1001, models.FeatureTypeUrgent)
	require.ErrorIs(t, err, ErrActivationNotFound)
}

func TestStorage_ListActiveFeatures(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Now().UTC()
	factory := NewTestDataFactory(storage)

	factory.CreateActivation(t, 1001, models.FeatureTypeUrgent,
		now, now.Add(time.Hour), models.ActivationStatusActive, "pay-1")
	factory.CreateActivation(t, 1001, models.FeatureTypePinned,
		now, now.Add(time.Hour), models.ActivationStatusActive, "pay-2")
	// Просроченная и снятая записи не попадают в список
	factory.CreateActivation(t, 1001, models.FeatureTypeHighlighted,
		now.Add(-2*time.Hour), now.Add(-time.Hour), models.ActivationStatusActive, "pay-3")
	factory.CreateActivation(t, 1002, models.FeatureTypePinned,
		now, now.Add(time.Hour), models.ActivationStatusActive, "pay-4")

	got, err := storage.ListActiveFeatures(context.Background(), 1001, now)
	require.NoError(t, err)
	assert.Equal(t, []models.FeatureType{models.FeatureTypePinned, models.FeatureTypeUrgent}, got)

	empty, err := storage.ListActiveFeatures(context.Background(), 9999, now)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStorage_DeactivateFeature(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Now().UTC()
	factory := NewTestDataFactory(storage)
	verification := NewTestVerification(storage)

	id := factory.CreateActivation(t, 1001, models.FeatureTypePinned,
		now, now.Add(time.Hour), models.ActivationStatusActive, "pay-1")

	done, err := storage.DeactivateFeature(context.Background(), 1001, models.FeatureTypePinned)
	require.NoError(t, err)
	assert.True(t, done)
	verification.VerifyActivationStatus(t, id, models.ActivationStatusExpired)

	// Повторное снятие и снятие несуществующего выделения
	_, err = storage.DeactivateFeature(context.Background(), 1001, models.FeatureTypePinned)
	require.ErrorIs(t, err, ErrActivationNotFound)
	_, err = storage.DeactivateFeature(context.Background(), 9999, models.FeatureTypePinned)
	require.ErrorIs(t, err, ErrActivationNotFound)
}

func TestStorage_ExpireFeatureActivations(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Now().UTC()
	factory := NewTestDataFactory(storage)
	verification := NewTestVerification(storage)

	staleID := factory.CreateActivation(t, 1001, models.FeatureTypePinned,
		now.Add(-2*time.Hour), now.Add(-time.Hour), models.ActivationStatusActive, "pay-1")
	freshID := factory.CreateActivation(t, 1002, models.FeatureTypeUrgent,
		now, now.Add(time.Hour), models.ActivationStatusActive, "pay-2")

	count, err := storage.CountExpirableActivations(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := storage.ExpireFeatureActivations(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(1001), expired[0].ResourceID)
	assert.Equal(t, string(models.FeatureTypePinned), expired[0].FeatureType)

	verification.VerifyActivationStatus(t, staleID, models.ActivationStatusExpired)
	verification.VerifyActivationStatus(t, freshID, models.ActivationStatusActive)

	// Повторный проход ничего не захватывает
	again, err := storage.ExpireFeatureActivations(context.Background(), now, 100)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStorage_ExpireFeatureActivations_BatchLimit(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	now := time.Now().UTC()
	factory := NewTestDataFactory(storage)

	for i := range 5 {
		factory.CreateActivation(t, int64(2000+i), models.FeatureTypePinned,
			now.Add(-2*time.Hour), now.Add(-time.Hour), models.ActivationStatusActive,
			fmt.Sprintf("pay-batch-%d", i))
	}

	first, err := storage.ExpireFeatureActivations(context.Background(), now, 3)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := storage.ExpireFeatureActivations(context.Background(), now, 3)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}
