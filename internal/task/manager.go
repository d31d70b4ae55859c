package task

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/JACKYCCK126/voiceclear-docker/internal/configstore"
	"github.com/JACKYCCK126/voiceclear-docker/internal/metrics"
	"github.com/JACKYCCK126/voiceclear-docker/internal/monitor"
	"github.com/JACKYCCK126/voiceclear-docker/internal/schedule"
)

// cleanupInterval is how often expired sessions are swept.
const cleanupInterval = time.Hour

// ErrBackendUnavailable is returned by Submit when the pre-flight health
// gate finds the inference backend unreachable, so no upload is burned
// against a dead endpoint.
var ErrBackendUnavailable = errors.New("inference backend is unreachable")

// HealthGate is the slice of the health monitor the manager consults
// before accepting an upload.
type HealthGate interface {
	Status(url string) (monitor.HealthStatus, bool)
	CheckNow(url string) monitor.HealthStatus
}

// ConfigSource supplies the active backend configuration.
type ConfigSource interface {
	Get() configstore.BackendConfig
}

// Manager owns all live sessions, keyed by session ID. Finished sessions
// are retained for ttl so the UI can re-fetch results, then swept.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Workflow

	backend  Backend
	gate     HealthGate
	config   ConfigSource
	interval time.Duration
	ttl      time.Duration
	logger   *zap.Logger

	cleanupJob schedule.Job
}

// NewManager creates a manager and schedules its session sweep.
func NewManager(backend Backend, gate HealthGate, config ConfigSource, scheduler schedule.Scheduler, pollInterval, sessionTTL time.Duration, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		sessions: make(map[string]*Workflow),
		backend:  backend,
		gate:     gate,
		config:   config,
		interval: pollInterval,
		ttl:      sessionTTL,
		logger:   logger,
	}

	job, err := scheduler.Schedule("session_cleanup", cleanupInterval, m.cleanup)
	if err != nil {
		return nil, errors.Wrap(err, "failed to schedule session cleanup")
	}
	m.cleanupJob = job

	return m, nil
}

// Submit validates the file, applies the pre-flight health gate, then
// creates a session and uploads. Validation errors and the health gate
// reject before any network call reaches the backend.
func (m *Manager) Submit(ctx context.Context, filename string, size int64, audio io.Reader) (Snapshot, error) {
	if err := ValidateFile(filename, size); err != nil {
		return Snapshot{}, err
	}

	// The health gate consults the last recorded probe; a recorded
	// unhealthy state gets one fresh probe against the freshly re-read
	// config before the upload is refused.
	url := m.config.Get().APIURL
	if status, known := m.gate.Status(url); known && !status.Healthy {
		if fresh := m.gate.CheckNow(url); !fresh.Healthy {
			return Snapshot{}, errors.Wrapf(ErrBackendUnavailable, "%s", url)
		}
	}

	w := newWorkflow(uuid.NewString(), m.backend, m.interval, m.logger)

	m.mu.Lock()
	m.sessions[w.sessionID] = w
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()

	if err := w.Submit(ctx, filename, audio); err != nil {
		metrics.ActiveSessions.Dec()
		// The session stays registered in its failed state so the UI
		// can show the error and offer a retry.
		return w.Snapshot(), errors.Wrap(err, "upload failed")
	}

	go m.watchCompletion(w)

	return w.Snapshot(), nil
}

// watchCompletion decrements the active gauge once the session leaves its
// running states.
func (m *Manager) watchCompletion(w *Workflow) {
	for {
		time.Sleep(m.interval)
		snap := w.Snapshot()
		if snap.State.Terminal() || snap.State == StateIdle {
			metrics.ActiveSessions.Dec()
			return
		}
	}
}

// Get returns the snapshot for a session ID.
func (m *Manager) Get(sessionID string) (Snapshot, bool) {
	m.mu.Lock()
	w, ok := m.sessions[sessionID]
	m.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	return w.Snapshot(), true
}

// List returns snapshots of every known session.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	workflows := make([]*Workflow, 0, len(m.sessions))
	for _, w := range m.sessions {
		workflows = append(workflows, w)
	}
	m.mu.Unlock()

	snaps := make([]Snapshot, 0, len(workflows))
	for _, w := range workflows {
		snaps = append(snaps, w.Snapshot())
	}
	return snaps
}

// Remove resets a session (stopping any polling) and forgets it.
func (m *Manager) Remove(sessionID string) bool {
	m.mu.Lock()
	w, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	w.Reset()
	return true
}

// cleanup sweeps terminal sessions whose results are older than the TTL.
func (m *Manager) cleanup() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	removed := 0
	for id, w := range m.sessions {
		snap := w.Snapshot()
		if snap.State.Terminal() && snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("Swept expired sessions",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}

// Stop cancels the sweep job and resets every session, stopping all
// polling goroutines.
func (m *Manager) Stop() {
	if m.cleanupJob != nil {
		_ = m.cleanupJob.Close()
	}

	m.mu.Lock()
	workflows := make([]*Workflow, 0, len(m.sessions))
	for _, w := range m.sessions {
		workflows = append(workflows, w)
	}
	m.mu.Unlock()

	for _, w := range workflows {
		w.Reset()
	}
}
