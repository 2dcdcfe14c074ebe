package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/labelgate/internal/api/handlers"
	"github.com/orrn/labelgate/internal/api/middleware"
	"github.com/orrn/labelgate/internal/core"
	"github.com/orrn/labelgate/internal/db"
)

type noopStore struct{}

func (noopStore) GetDispatch(context.Context, string) (*db.DispatchRecord, error) {
	return &db.DispatchRecord{ID: "x"}, nil
}
func (noopStore) ListDispatches(context.Context, db.DispatchFilter) ([]*db.DispatchRecord, error) {
	return nil, nil
}
func (noopStore) CountByStatus(context.Context, string) (int64, error) { return 0, nil }
func (noopStore) ListAuditLogs(context.Context, string, int) ([]*db.AuditLog, error) {
	return []*db.AuditLog{{ID: 1, Action: "auth.login"}}, nil
}

func newEngine(t *testing.T, authEnabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := middleware.AuthConfig{}
	if authEnabled {
		hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
		require.NoError(t, err)
		cfg = middleware.AuthConfig{Enabled: true, PasswordHash: string(hash), JWTSecret: "k"}
	}
	auth, err := middleware.NewAuthMiddleware(cfg, nil)
	require.NoError(t, err)

	router := core.NewRouter(nil)
	router.Register(core.NewNetworkTransport())

	return New(Deps{
		Auth:       auth,
		Print:      handlers.NewPrintHandler(router, core.NewEnumerator(nil, nil, nil), core.NewProxyTransport("", 0), handlers.Defaults{}),
		Dispatches: handlers.NewDispatchHandler(noopStore{}),
		Audit:      handlers.NewAuditHandler(noopStore{}),
	})
}

func request(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	r := newEngine(t, false)

	w := request(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = request(r, http.MethodPost, "/api/print/tspl", `{"tipo":"rede_ip","ip":"10.0.0.5","tspl":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")

	w = request(r, http.MethodPost, "/api/print/tspl", `{"tipo":"fax","tspl":"PRINT 1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_transport")

	w = request(r, http.MethodPost, "/api/print/tspl", `{"tipo":"usb_com","porta_com":"COM9","tspl":"PRINT 1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "transport is disabled")

	w = request(r, http.MethodGet, "/api/print/portas-com", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "configuration_error")

	w = request(r, http.MethodGet, "/api/dispatches/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodGet, "/api/audit?action=auth.login", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"auth.login"`)

	w = request(r, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrintRoutesRequireAuthWhenEnabled(t *testing.T) {
	r := newEngine(t, true)

	for _, path := range []string{"/api/print/portas-com", "/api/dispatches", "/api/audit"} {
		w := request(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := request(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = request(r, http.MethodGet, "/api/auth/status", "")
	assert.JSONEq(t, `{"authenticated":false,"auth_enabled":true}`, w.Body.String())
}
