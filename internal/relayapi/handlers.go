package relayapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/JACKYCCK126/voiceclear-docker/internal/configstore"
	"github.com/JACKYCCK126/voiceclear-docker/internal/notify"
)

func (a *API) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.store.Get())
}

type setConfigRequest struct {
	APIURL        string `json:"apiUrl"`
	Description   string `json:"description"`
	AdminPassword string `json:"adminPassword"`
}

// handleSetConfig replaces the backend record and moves monitoring to the
// new URL. A rejected update leaves both the record and monitoring alone.
func (a *API) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req setConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	previous := a.store.Get().APIURL

	cfg, err := a.store.Set(req.APIURL, req.Description, "admin", req.AdminPassword)
	if err != nil {
		if errors.Is(err, configstore.ErrUnauthorized) {
			a.writeError(w, http.StatusUnauthorized, "invalid admin password")
			return
		}
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if cfg.APIURL != previous {
		if err := a.monitor.StopMonitoring(previous); err != nil {
			a.logger.Debug("Previous URL was not monitored", zap.String("url", previous))
		}
		if err := a.monitor.StartMonitoring(cfg.APIURL); err != nil {
			a.logger.Error("Failed to start monitoring new backend",
				zap.String("url", cfg.APIURL), zap.Error(err))
		}
	}

	a.logger.Info("Backend configuration replaced",
		zap.String("url", cfg.APIURL),
		zap.String("description", cfg.Description))

	a.writeJSON(w, http.StatusOK, cfg)
}

type connectionErrorRequest struct {
	APIURL string `json:"apiUrl"`
	Error  string `json:"error"`
}

// handleConnectionError lets the client report a backend it could not
// reach, which starts (or restarts) monitoring for that URL.
func (a *API) handleConnectionError(w http.ResponseWriter, r *http.Request) {
	var req connectionErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := configstore.ValidateURL(req.APIURL); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.Warn("Client reported connection error",
		zap.String("url", req.APIURL),
		zap.String("clientError", req.Error))

	if err := a.monitor.StartMonitoring(req.APIURL); err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]string{"monitoring": req.APIURL})
}

func (a *API) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.monitor.StatusAll())
}

// handleMonitorCheck forces an immediate probe of the URL carried
// percent-encoded in the path.
func (a *API) handleMonitorCheck(w http.ResponseWriter, r *http.Request) {
	encoded := mux.Vars(r)["encodedUrl"]
	target, err := url.QueryUnescape(encoded)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed url encoding")
		return
	}
	if err := configstore.ValidateURL(target); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.writeJSON(w, http.StatusOK, a.monitor.CheckNow(target))
}

// handleTestNotification sends the canned test message, bypassing the
// cooldown so repeated clicks in the admin UI each go out.
func (a *API) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	result := a.notifier.SendNow(notify.TestMessage())

	status := http.StatusOK
	if result == notify.ResultFailed {
		status = http.StatusBadGateway
	}
	a.writeJSON(w, status, map[string]string{"result": string(result)})
}

// sampleHandler serves one bundled demo recording.
func (a *API) sampleHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if path == "" {
			a.writeError(w, http.StatusNotFound, "no sample configured")
			return
		}
		if _, err := os.Stat(path); err != nil {
			a.logger.Warn("Sample file missing", zap.String("path", path), zap.Error(err))
			a.writeError(w, http.StatusNotFound, "sample file not found")
			return
		}
		http.ServeFile(w, r, path)
	}
}
