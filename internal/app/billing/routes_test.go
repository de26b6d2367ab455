package billing

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/docgen-billing/internal/lib/jwt"
	"github.com/magabrotheeeer/docgen-billing/internal/paymentprovider"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	RegisterRoutes(router, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Tokens:     jwt.NewJWTMaker("secret", time.Hour),
		CronSecret: "cron-secret",
		Gateway:    paymentprovider.NewClient("http://127.0.0.1:1", "token", "hook-secret", time.Second),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes_Protection(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{name: "create requires jwt", method: http.MethodPost, path: "/api/v1/payments/create", want: http.StatusUnauthorized},
		{name: "complete requires jwt", method: http.MethodPost, path: "/api/v1/payments/complete", want: http.StatusUnauthorized},
		{name: "status requires jwt", method: http.MethodGet, path: "/api/v1/payments/status/op-1", want: http.StatusUnauthorized},
		{name: "entitlement rejects bad token", method: http.MethodGet, path: "/api/v1/user/entitlement",
			header: map[string]string{"Authorization": "Bearer garbage"}, want: http.StatusUnauthorized},
		{name: "cron requires secret", method: http.MethodPost, path: "/api/v1/cron/activate-pending", want: http.StatusUnauthorized},
		{name: "cron rejects jwt", method: http.MethodPost, path: "/api/v1/cron/activate-pending",
			header: map[string]string{"Authorization": "Bearer wrong"}, want: http.StatusUnauthorized},
		{name: "webhook rejects bad signature", method: http.MethodPost, path: "/api/v1/payments/webhook",
			header: map[string]string{"x-signature": "deadbeef"}, want: http.StatusUnauthorized},
		{name: "health is public", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "metrics is public", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/api/v1/nope", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(`{"operationId":"op-1"}`))
			require.NoError(t, err)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
