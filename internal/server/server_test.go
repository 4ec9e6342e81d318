package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhtm/htmserve/internal/engine"
	"github.com/openhtm/htmserve/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	reg, err := registry.New(&registry.Config{EngineFactory: engine.Factory()}, logger)
	require.NoError(t, err)

	s, err := New(DefaultConfig(), reg, logger)
	require.NoError(t, err)
	return s
}

func TestServerRequiresRegistry(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestHealthAndVersionRoutes(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/health/ready", "/health/live", "/version"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestModelLifecycleOverRouter(t *testing.T) {
	s := newTestServer(t)

	body := `{"guid": "m1", "modelParams": {"sensorParams": {"encoders": {
		"c0": {"type": "DateEncoder", "fieldname": "c0"},
		"c1": {"type": "ScalarEncoder", "fieldname": "c1"}
	}}}}`
	req := httptest.NewRequest("POST", "/models", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest("PUT", "/models/m1", strings.NewReader(`{"c0": 100, "c1": 5}`))
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 1)

	req = httptest.NewRequest("DELETE", "/models/m1", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeaderAssigned(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestUnknownRouteReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOversizedBodyRejected(t *testing.T) {
	s := newTestServer(t)
	s.config.MaxRequestSize = 64

	req := httptest.NewRequest("POST", "/models", bytes.NewReader(make([]byte, 128)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestConfigValidation(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	config.Port = 0
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.ReadTimeout = 0
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.MaxRequestSize = 0
	assert.Error(t, config.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}
