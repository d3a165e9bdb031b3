package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/listing-entitlements/internal/models"
	"github.com/magabrotheeeer/listing-entitlements/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ActivateFeature(ctx context.Context, resourceID int64, featureType models.FeatureType,
	duration time.Duration, paymentID string, now time.Time) (time.Time, error) {
	args := m.Called(ctx, resourceID, featureType, duration, paymentID, now)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *RepoMock) ReadActiveFeatureExpiry(ctx context.Context, resourceID int64, featureType models.FeatureType) (time.Time, error) {
	args := m.Called(ctx, resourceID, featureType)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *RepoMock) ListActiveFeatures(ctx context.Context, resourceID int64, now time.Time) ([]models.FeatureType, error) {
	args := m.Called(ctx, resourceID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FeatureType), args.Error(1)
}

func (m *RepoMock) DeactivateFeature(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error) {
	args := m.Called(ctx, resourceID, featureType)
	return args.Bool(0), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *RepoMock, cache *CacheMock) *FeatureService {
	svc := NewFeatureService(repo, cache, newNoopLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestFeatureService_Activate(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	expiry := fixedNow.Add(7 * 24 * time.Hour)
	repo.On("ActivateFeature", mock.Anything, int64(42), models.FeatureTypePinned,
		7*24*time.Hour, "payment-1", fixedNow).Return(expiry, nil)
	cache.On("Invalidate", "feature:42:pinned").Return(nil)

	got, err := svc.Activate(context.Background(), 42, models.FeatureTypePinned, 7*24*time.Hour, "payment-1")
	require.NoError(t, err)
	assert.Equal(t, expiry, got)
	cache.AssertExpectations(t)
}

func TestFeatureService_Activate_InvalidDuration(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	_, err := svc.Activate(context.Background(), 42, models.FeatureTypePinned, 0, "payment-1")
	require.ErrorIs(t, err, repository.ErrInvalidGrant)
	repo.AssertNotCalled(t, "ActivateFeature",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFeatureService_Activate_DuplicatePayment(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	expiry := fixedNow.Add(3 * 24 * time.Hour)
	repo.On("ActivateFeature", mock.Anything, int64(42), models.FeatureTypeUrgent,
		3*24*time.Hour, "payment-1", fixedNow).Return(expiry, repository.ErrDuplicateActivation)

	got, err := svc.Activate(context.Background(), 42, models.FeatureTypeUrgent, 3*24*time.Hour, "payment-1")
	require.NoError(t, err)
	assert.Equal(t, expiry, got)
	// Повторная доставка не инвалидирует кеш: срок не менялся
	cache.AssertNotCalled(t, "Invalidate", mock.Anything)
}

func TestFeatureService_Activate_RetriesOnConflict(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	expiry := fixedNow.Add(24 * time.Hour)
	repo.On("ActivateFeature", mock.Anything, int64(42), models.FeatureTypePinned,
		24*time.Hour, "payment-1", fixedNow).
		Return(time.Time{}, repository.ErrConcurrentModification).Once()
	repo.On("ActivateFeature", mock.Anything, int64(42), models.FeatureTypePinned,
		24*time.Hour, "payment-1", fixedNow).Return(expiry, nil).Once()
	cache.On("Invalidate", "feature:42:pinned").Return(nil)

	got, err := svc.Activate(context.Background(), 42, models.FeatureTypePinned, 24*time.Hour, "payment-1")
	require.NoError(t, err)
	assert.Equal(t, expiry, got)
	repo.AssertNumberOfCalls(t, "ActivateFeature", 2)
}

func TestFeatureService_IsActive_CacheHit(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	cache.On("Get", "feature:42:pinned", mock.Anything).
		Run(func(args mock.Arguments) {
			expiry := args.Get(1).(*time.Time)
			*expiry = fixedNow.Add(time.Hour)
		}).Return(true, nil)

	active, err := svc.IsActive(context.Background(), 42, models.FeatureTypePinned)
	require.NoError(t, err)
	assert.True(t, active)
	repo.AssertNotCalled(t, "ReadActiveFeatureExpiry", mock.Anything, mock.Anything, mock.Anything)
}

func TestFeatureService_IsActive_CachedExpiryInPast(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	cache.On("Get", "feature:42:pinned", mock.Anything).
		Run(func(args mock.Arguments) {
			expiry := args.Get(1).(*time.Time)
			*expiry = fixedNow.Add(-time.Second)
		}).Return(true, nil)

	active, err := svc.IsActive(context.Background(), 42, models.FeatureTypePinned)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestFeatureService_IsActive_CacheMiss(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	expiry := fixedNow.Add(time.Hour)
	cache.On("Get", "feature:42:highlighted", mock.Anything).Return(false, nil)
	repo.On("ReadActiveFeatureExpiry", mock.Anything, int64(42), models.FeatureTypeHighlighted).
		Return(expiry, nil)
	cache.On("Set", "feature:42:highlighted", expiry, statusCacheTTL).Return(nil)

	active, err := svc.IsActive(context.Background(), 42, models.FeatureTypeHighlighted)
	require.NoError(t, err)
	assert.True(t, active)
	cache.AssertExpectations(t)
}

func TestFeatureService_IsActive_NoActivation(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	cache.On("Get", "feature:42:pinned", mock.Anything).Return(false, nil)
	repo.On("ReadActiveFeatureExpiry", mock.Anything, int64(42), models.FeatureTypePinned).
		Return(time.Time{}, repository.ErrActivationNotFound)

	active, err := svc.IsActive(context.Background(), 42, models.FeatureTypePinned)
	require.NoError(t, err)
	assert.False(t, active)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestFeatureService_Deactivate(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	cache.On("Invalidate", "feature:42:pinned").Return(nil)
	repo.On("DeactivateFeature", mock.Anything, int64(42), models.FeatureTypePinned).Return(true, nil)

	transitioned, err := svc.Deactivate(context.Background(), 42, models.FeatureTypePinned)
	require.NoError(t, err)
	assert.True(t, transitioned)
}

func TestFeatureService_Deactivate_AlreadyExpired(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	cache.On("Invalidate", "feature:42:pinned").Return(nil)
	repo.On("DeactivateFeature", mock.Anything, int64(42), models.FeatureTypePinned).
		Return(false, repository.ErrActivationNotFound)

	transitioned, err := svc.Deactivate(context.Background(), 42, models.FeatureTypePinned)
	require.NoError(t, err)
	assert.False(t, transitioned)
}

func TestFeatureService_ActiveFeatures(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	repo.On("ListActiveFeatures", mock.Anything, int64(42), fixedNow).
		Return([]models.FeatureType{models.FeatureTypePinned, models.FeatureTypeUrgent}, nil)

	got, err := svc.ActiveFeatures(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []models.FeatureType{models.FeatureTypePinned, models.FeatureTypeUrgent}, got)
}

func TestFeatureService_ActiveFeatures_Error(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	svc := newTestService(repo, cache)

	repo.On("ListActiveFeatures", mock.Anything, int64(42), fixedNow).
		Return(nil, errors.New("db error"))

	_, err := svc.ActiveFeatures(context.Background(), 42)
	require.Error(t, err)
}
