// Package relayapi is the HTTP surface of the relay: backend configuration,
// health monitoring control, notification testing, sample audio, and the
// audio-enhancement task endpoints.
package relayapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JACKYCCK126/voiceclear-docker/internal/config"
	"github.com/JACKYCCK126/voiceclear-docker/internal/configstore"
	"github.com/JACKYCCK126/voiceclear-docker/internal/metrics"
	"github.com/JACKYCCK126/voiceclear-docker/internal/monitor"
	"github.com/JACKYCCK126/voiceclear-docker/internal/notify"
	"github.com/JACKYCCK126/voiceclear-docker/internal/task"
)

// ConfigStore is the slice of the configuration store the API needs.
type ConfigStore interface {
	Get() configstore.BackendConfig
	Set(apiURL, description, actor, password string) (configstore.BackendConfig, error)
}

// HealthMonitor is the slice of the health monitor the API needs.
type HealthMonitor interface {
	StartMonitoring(url string) error
	StopMonitoring(url string) error
	CheckNow(url string) monitor.HealthStatus
	StatusAll() map[string]monitor.HealthStatus
}

// Notifier sends operator notifications, bypassing the cooldown.
type Notifier interface {
	SendNow(n notify.Notification) notify.Result
}

// TaskService is the slice of the session manager the API needs.
type TaskService interface {
	Submit(ctx context.Context, filename string, size int64, audio io.Reader) (task.Snapshot, error)
	Get(sessionID string) (task.Snapshot, bool)
	List() []task.Snapshot
	Remove(sessionID string) bool
}

// Downloader streams a completed task's processed audio from the backend.
type Downloader interface {
	Download(ctx context.Context, taskID, originalFilename string) (io.ReadCloser, string, string, error)
}

// API wires the relay's services to their HTTP routes.
type API struct {
	store      ConfigStore
	monitor    HealthMonitor
	notifier   Notifier
	tasks      TaskService
	downloader Downloader
	samples    config.SamplesConfig
	uploads    *rate.Limiter
	logger     *zap.Logger
}

// New creates the API. uploads limits how fast new task submissions are
// accepted; pass rate.NewLimiter(rate.Inf, 0) to disable limiting.
func New(store ConfigStore, healthMonitor HealthMonitor, notifier Notifier, tasks TaskService, downloader Downloader, samples config.SamplesConfig, uploads *rate.Limiter, logger *zap.Logger) *API {
	return &API{
		store:      store,
		monitor:    healthMonitor,
		notifier:   notifier,
		tasks:      tasks,
		downloader: downloader,
		samples:    samples,
		uploads:    uploads,
		logger:     logger,
	}
}

// Router builds the relay's route table.
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()

	// The check route carries a percent-encoded URL as its final segment.
	router.UseEncodedPath()

	router.Use(a.withTraceID)
	router.Use(a.withCORS)
	router.Use(a.withRequestLog)

	router.HandleFunc("/api/health", a.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/api/config", a.handleGetConfig).Methods(http.MethodGet)
	router.HandleFunc("/api/config", a.handleSetConfig).Methods(http.MethodPost)

	router.HandleFunc("/api/monitor/connection-error", a.handleConnectionError).Methods(http.MethodPost)
	router.HandleFunc("/api/monitor/status", a.handleMonitorStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/monitor/check/{encodedUrl:.*}", a.handleMonitorCheck).Methods(http.MethodPost)

	router.HandleFunc("/api/test-email", a.handleTestNotification).Methods(http.MethodPost)

	router.HandleFunc("/api/sample-audio", a.sampleHandler(a.samples.Basic)).Methods(http.MethodGet)
	router.HandleFunc("/api/sample-audio-complex", a.sampleHandler(a.samples.Complex)).Methods(http.MethodGet)

	router.HandleFunc("/api/tasks", a.handleSubmitTask).Methods(http.MethodPost)
	router.HandleFunc("/api/tasks", a.handleListTasks).Methods(http.MethodGet)
	router.HandleFunc("/api/tasks/{id}", a.handleGetTask).Methods(http.MethodGet)
	router.HandleFunc("/api/tasks/{id}/result", a.handleTaskResult).Methods(http.MethodGet)
	router.HandleFunc("/api/tasks/{id}", a.handleRemoveTask).Methods(http.MethodDelete)

	// Preflight requests for any route.
	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodOptions)

	return router
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}
