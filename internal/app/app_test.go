package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/config"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Logging.Output = "stderr"
	cfg.RateLimit.Enabled = false

	app, err := NewApplicationWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Store.Close() })
	return app
}

func TestApplication_Wiring(t *testing.T) {
	app := newTestApp(t)

	require.NotNil(t, app.Router)
	require.NotNil(t, app.Server)
	require.NotNil(t, app.LicenseService)
	assert.Equal(t, ":8080", app.Server.Addr)
}

func TestApplication_HealthEndpoint(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestApplication_APISurface(t *testing.T) {
	app := newTestApp(t)

	// Validation endpoint answers problem+json for a bad payload.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/licenses/validate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	app.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "/errors/validation-failed")

	// Unknown routes fall through to chi's 404.
	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplication_RateLimiting(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Logging.Output = "stderr"
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Burst = 1

	app, err := NewApplicationWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Store.Close() })

	first := httptest.NewRecorder()
	app.Router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	app.Router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
