// Package task runs audio-enhancement sessions against the inference
// backend: validate the upload, submit it, poll the task to a terminal
// state, and expose snapshots to the HTTP surface.
package task

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JACKYCCK126/voiceclear-docker/internal/inference"
)

// State is the workflow position of one session.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Backend is the slice of the inference client the workflow needs.
type Backend interface {
	Upload(ctx context.Context, filename string, audio io.Reader) (*inference.UploadResponse, error)
	TaskStatus(ctx context.Context, taskID string) (*inference.TaskStatus, error)
}

// Snapshot is one observable state of a session.
type Snapshot struct {
	SessionID  string                `json:"sessionId"`
	State      State                 `json:"state"`
	TaskID     string                `json:"taskId,omitempty"`
	Filename   string                `json:"filename,omitempty"`
	Progress   int                   `json:"progress"`
	Message    string                `json:"message,omitempty"`
	Error      string                `json:"error,omitempty"`
	Result     *inference.TaskStatus `json:"result,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// Workflow is the per-session state machine:
//
//	idle -> uploading -> processing -> completed | failed
//
// with Reset returning to idle from any state. All mutation happens under
// the mutex; the polling goroutine holds a generation number so results
// arriving after a Reset are discarded rather than applied to the wrong
// incarnation.
type Workflow struct {
	sessionID string
	backend   Backend
	interval  time.Duration
	logger    *zap.Logger

	mu         sync.Mutex
	state      State
	taskID     string
	filename   string
	progress   int
	message    string
	errText    string
	result     *inference.TaskStatus
	createdAt  time.Time
	finishedAt *time.Time
	generation int
	stop       chan struct{}
}

func newWorkflow(sessionID string, backend Backend, interval time.Duration, logger *zap.Logger) *Workflow {
	return &Workflow{
		sessionID: sessionID,
		backend:   backend,
		interval:  interval,
		logger:    logger,
		state:     StateIdle,
		createdAt: time.Now(),
	}
}

// Submit uploads the audio and, on success, starts the polling loop.
// Validation and the health gate are the Manager's business; by the time
// Submit runs, the file is acceptable.
func (w *Workflow) Submit(ctx context.Context, filename string, audio io.Reader) error {
	w.mu.Lock()
	w.state = StateUploading
	w.filename = filename
	w.message = "uploading audio"
	gen := w.generation
	w.mu.Unlock()

	resp, err := w.backend.Upload(ctx, filename, audio)
	if err != nil {
		w.failIfCurrent(gen, "upload failed: "+err.Error())
		return err
	}

	w.mu.Lock()
	if w.generation != gen {
		// Reset raced the upload; the backend task is abandoned.
		w.mu.Unlock()
		return nil
	}
	w.state = StateProcessing
	w.taskID = resp.TaskID
	w.message = resp.Message
	w.stop = make(chan struct{})
	stop := w.stop
	w.mu.Unlock()

	w.logger.Info("Task submitted",
		zap.String("sessionId", w.sessionID),
		zap.String("taskId", resp.TaskID),
		zap.String("filename", filename))

	go w.pollLoop(gen, resp.TaskID, stop)
	return nil
}

// pollLoop fetches status snapshots at a fixed interval until the task
// reaches a terminal state or the session is reset. One request is
// outstanding at a time; a poll error is a task failure, not a skipped
// tick.
func (w *Workflow) pollLoop(gen int, taskID string, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(w.interval):
		}

		status, err := w.backend.TaskStatus(context.Background(), taskID)
		if err != nil {
			w.failIfCurrent(gen, "status poll failed: "+err.Error())
			return
		}

		if !w.applyStatus(gen, status) {
			return
		}
	}
}

// applyStatus folds one poll response into the session. It returns false
// when polling should stop: the snapshot was stale, or the task is done.
func (w *Workflow) applyStatus(gen int, status *inference.TaskStatus) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.generation != gen {
		return false
	}

	w.progress = status.Progress
	w.message = status.Message

	switch status.Status {
	case inference.TaskCompleted:
		w.state = StateCompleted
		w.result = status
		now := time.Now()
		w.finishedAt = &now
		w.logger.Info("Task completed",
			zap.String("sessionId", w.sessionID),
			zap.String("taskId", w.taskID))
		return false
	case inference.TaskFailed:
		w.state = StateFailed
		w.errText = status.Error
		if w.errText == "" {
			w.errText = status.Message
		}
		now := time.Now()
		w.finishedAt = &now
		w.logger.Warn("Task failed",
			zap.String("sessionId", w.sessionID),
			zap.String("taskId", w.taskID),
			zap.String("error", w.errText))
		return false
	default:
		return true
	}
}

// failIfCurrent marks the session failed unless a Reset already superseded
// this attempt.
func (w *Workflow) failIfCurrent(gen int, errText string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.generation != gen {
		return
	}

	w.state = StateFailed
	w.errText = errText
	now := time.Now()
	w.finishedAt = &now

	w.logger.Warn("Session failed",
		zap.String("sessionId", w.sessionID),
		zap.String("error", errText))
}

// Reset cancels any in-flight polling and returns the session to idle.
// Requests already sent are not aborted; their results are discarded when
// they resolve against a newer generation.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	w.generation++

	w.state = StateIdle
	w.taskID = ""
	w.filename = ""
	w.progress = 0
	w.message = ""
	w.errText = ""
	w.result = nil
	w.finishedAt = nil
}

// Snapshot returns a copy of the current session state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		SessionID: w.sessionID,
		State:     w.state,
		TaskID:    w.taskID,
		Filename:  w.filename,
		Progress:  w.progress,
		Message:   w.message,
		Error:     w.errText,
		Result:    w.result,
		CreatedAt: w.createdAt,
	}
	if w.finishedAt != nil {
		finished := *w.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}
