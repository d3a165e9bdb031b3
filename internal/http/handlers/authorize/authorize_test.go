package authorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/listing-entitlements/internal/models"
	services "github.com/magabrotheeeer/listing-entitlements/internal/services/coordinator"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) AuthorizeListingCreation(ctx context.Context, ownerUID string) (*services.Decision, error) {
	args := m.Called(ctx, ownerUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Decision), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const testOwnerUID = "a7e4a5cc-3f7e-4ba9-9b2a-5a9c5d2d4f10"

func TestAuthorizeHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMocks     func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "success - unit consumed",
			requestBody: models.DummyAuthorizeRequest{OwnerUID: testOwnerUID},
			setupMocks: func(s *MockService) {
				s.On("AuthorizeListingCreation", mock.Anything, testOwnerUID).
					Return(&services.Decision{Authorized: true, EntitlementID: 42}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"authorized":true,"entitlement_id":42}}`,
		},
		{
			name:        "denied - no eligible entitlement",
			requestBody: models.DummyAuthorizeRequest{OwnerUID: testOwnerUID},
			setupMocks: func(s *MockService) {
				s.On("AuthorizeListingCreation", mock.Anything, testOwnerUID).
					Return(&services.Decision{Authorized: false}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"authorized":false,"reason":"purchase_required"}}`,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not a json",
			setupMocks:     func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
		{
			name:           "invalid owner uid",
			requestBody:    models.DummyAuthorizeRequest{OwnerUID: "not-a-uuid"},
			setupMocks:     func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"field OwnerUID can contain only uuid"}`,
		},
		{
			name:        "service error",
			requestBody: models.DummyAuthorizeRequest{OwnerUID: testOwnerUID},
			setupMocks: func(s *MockService) {
				s.On("AuthorizeListingCreation", mock.Anything, testOwnerUID).
					Return(nil, errors.New("storage down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not authorize listing creation"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMocks(service)

			handler := New(newNoopLogger(), service)

			var body []byte
			switch v := tt.requestBody.(type) {
			case string:
				body = []byte(v)
			default:
				body, _ = json.Marshal(v)
			}

			req := httptest.NewRequest(http.MethodPost, "/listings/authorize", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			service.AssertExpectations(t)
		})
	}
}
