package paymentlist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestListHandler(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name           string
		query          string
		setup          func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "success with paging",
			query: "?limit=10&offset=20",
			setup: func(s *MockService) {
				s.On("ListPayments", mock.Anything, "user-1", 10, 20).Return([]*models.Transaction{{
					ID:        "tx-1",
					Type:      models.TransactionSubscription,
					Status:    models.StatusCompleted,
					Amount:    1000,
					CreatedAt: created,
					Metadata:  models.TransactionMetadata{OperationID: "op-1", TargetMode: models.AppModeAdvanced},
				}}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"status":"OK","data":{"count":1,"payments":[{"id":"tx-1","operationId":"op-1","type":"SUBSCRIPTION",` +
				`"status":"COMPLETED","amount":1000,"targetMode":"ADVANCED","createdAt":"2026-05-01T09:30:00Z"}]}}`,
		},
		{
			name:  "defaults delegated to service",
			query: "?limit=abc",
			setup: func(s *MockService) {
				s.On("ListPayments", mock.Anything, "user-1", 0, 0).Return([]*models.Transaction{}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"count":0,"payments":[]}}`,
		},
		{
			name:  "store error",
			query: "",
			setup: func(s *MockService) {
				s.On("ListPayments", mock.Anything, "user-1", 0, 0).Return(nil, errors.New("db down"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(MockService)
			tt.setup(s)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/list"+tt.query, nil)
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserID, "user-1"))
			w := httptest.NewRecorder()

			New(newNoopLogger(), s).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			s.AssertExpectations(t)
		})
	}
}
