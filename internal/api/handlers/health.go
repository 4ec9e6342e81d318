package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openhtm/htmserve/pkg/constants"
)

// HealthHandler serves liveness, readiness and version endpoints.
type HealthHandler struct {
	logger    *logrus.Logger
	startTime time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		startTime: time.Now().UTC(),
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type versionResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       constants.AppVersion,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready handles GET /health/ready. The server has no external dependencies to
// probe, so readiness tracks liveness.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Version handles GET /version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{
		Name:      constants.AppName,
		Version:   constants.AppVersion,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	})
}
