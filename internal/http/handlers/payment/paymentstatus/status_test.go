package paymentstatus

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/docgen-billing/internal/http/middlewarectx"
	"github.com/magabrotheeeer/docgen-billing/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetStatus(ctx context.Context, userID, operationID string) (*models.Transaction, error) {
	args := m.Called(ctx, userID, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func serve(t *testing.T, s *MockService, userID string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middlewarectx.UserID, userID)))
		})
	})
	router.Get("/payments/status/{operationId}", New(newNoopLogger(), s).ServeHTTP)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/status/op-1", nil))
	return w
}

func TestStatusHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s := new(MockService)
		updated := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		s.On("GetStatus", mock.Anything, "user-1", "op-1").Return(&models.Transaction{
			Amount:    1000,
			Type:      models.TransactionSubscription,
			Status:    models.StatusCompleted,
			UpdatedAt: updated,
			Metadata:  models.TransactionMetadata{OperationID: "op-1", GatewayStatus: "APPROVED"},
		}, nil)

		w := serve(t, s, "user-1")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"operationId":"op-1","status":"COMPLETED","type":"SUBSCRIPTION","amount":1000,"gatewayStatus":"APPROVED","updatedAt":"2026-05-10T12:00:00Z"}`, w.Body.String())
	})

	t.Run("foreign or missing", func(t *testing.T) {
		s := new(MockService)
		s.On("GetStatus", mock.Anything, "user-2", "op-1").Return(nil, models.ErrTransactionNotFound)

		w := serve(t, s, "user-2")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unauthorized", func(t *testing.T) {
		w := serve(t, new(MockService), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
