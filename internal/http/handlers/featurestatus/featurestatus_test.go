package featurestatus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/listing-entitlements/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) IsActive(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error) {
	args := m.Called(ctx, resourceID, featureType)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestFeatureStatusHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		setupMocks     func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "active feature",
			url:  "/features/1001/pinned",
			setupMocks: func(s *MockService) {
				s.On("IsActive", mock.Anything, int64(1001), models.FeatureTypePinned).
					Return(true, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"resource_id":1001,"feature_type":"pinned","active":true}}`,
		},
		{
			name: "inactive feature",
			url:  "/features/1001/urgent",
			setupMocks: func(s *MockService) {
				s.On("IsActive", mock.Anything, int64(1001), models.FeatureTypeUrgent).
					Return(false, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"resource_id":1001,"feature_type":"urgent","active":false}}`,
		},
		{
			name:           "unknown feature type",
			url:            "/features/1001/vip",
			setupMocks:     func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"unknown feature type"}`,
		},
		{
			name:           "invalid resource id",
			url:            "/features/abc/pinned",
			setupMocks:     func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid resource id"}`,
		},
		{
			name: "service error",
			url:  "/features/1001/pinned",
			setupMocks: func(s *MockService) {
				s.On("IsActive", mock.Anything, int64(1001), models.FeatureTypePinned).
					Return(false, errors.New("storage down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not check feature status"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMocks(service)

			handler := New(newNoopLogger(), service)

			router := chi.NewRouter()
			router.Get("/features/{resourceID}/{featureType}", handler.ServeHTTP)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			service.AssertExpectations(t)
		})
	}
}
