package relayapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/JACKYCCK126/voiceclear-docker/internal/task"
)

// multipartOverhead is headroom on top of the audio payload limit for the
// multipart framing itself.
const multipartOverhead = 1 << 20

// handleSubmitTask accepts a multipart upload under the audio_file field
// and starts an enhancement session.
func (a *API) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if !a.uploads.Allow() {
		a.writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, task.MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "missing audio_file field")
		return
	}
	defer file.Close()

	snap, err := a.tasks.Submit(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrFileTooLarge):
			a.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, task.ErrUnsupportedType):
			a.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, task.ErrBackendUnavailable):
			a.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			// The failed session (if any) is in the snapshot, so the UI can
			// show it alongside the error.
			a.logger.Warn("Upload failed",
				zap.String("filename", header.Filename), zap.Error(err))
			a.writeJSON(w, http.StatusBadGateway, snap)
		}
		return
	}

	a.writeJSON(w, http.StatusAccepted, snap)
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.tasks.List())
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.tasks.Get(mux.Vars(r)["id"])
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	a.writeJSON(w, http.StatusOK, snap)
}

// handleTaskResult proxies the processed audio for a completed session.
func (a *API) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.tasks.Get(mux.Vars(r)["id"])
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if snap.State != task.StateCompleted {
		a.writeError(w, http.StatusConflict,
			fmt.Sprintf("session is %s, result available only once completed", snap.State))
		return
	}

	body, filename, contentType, err := a.downloader.Download(r.Context(), snap.TaskID, snap.Filename)
	if err != nil {
		a.logger.Error("Result download failed",
			zap.String("taskId", snap.TaskID), zap.Error(err))
		a.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := io.Copy(w, body); err != nil {
		a.logger.Warn("Result stream interrupted",
			zap.String("taskId", snap.TaskID), zap.Error(err))
	}
}

func (a *API) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	if !a.tasks.Remove(mux.Vars(r)["id"]) {
		a.writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
