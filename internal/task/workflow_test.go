package task

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JACKYCCK126/voiceclear-docker/internal/configstore"
	"github.com/JACKYCCK126/voiceclear-docker/internal/inference"
	"github.com/JACKYCCK126/voiceclear-docker/internal/monitor"
	"github.com/JACKYCCK126/voiceclear-docker/internal/schedule"
)

// fakeBackend scripts upload and per-poll status responses.
type fakeBackend struct {
	mu        sync.Mutex
	uploadErr error
	taskID    string
	statuses  []*inference.TaskStatus
	statusErr error
	polls     int
}

func (f *fakeBackend) Upload(ctx context.Context, filename string, audio io.Reader) (*inference.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &inference.UploadResponse{
		TaskID:           f.taskID,
		Status:           inference.TaskQueued,
		Message:          "queued",
		OriginalFilename: filename,
	}, nil
}

func (f *fakeBackend) TaskStatus(ctx context.Context, taskID string) (*inference.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statusErr != nil {
		return nil, f.statusErr
	}

	idx := f.polls
	f.polls++
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

// openGate always reports healthy.
type openGate struct{}

func (openGate) Status(url string) (monitor.HealthStatus, bool) {
	return monitor.HealthStatus{Healthy: true}, true
}

func (openGate) CheckNow(url string) monitor.HealthStatus {
	return monitor.HealthStatus{Healthy: true}
}

// closedGate reports unhealthy, including on the forced re-check.
type closedGate struct {
	mu       sync.Mutex
	rechecks int
}

func (g *closedGate) Status(url string) (monitor.HealthStatus, bool) {
	return monitor.HealthStatus{Healthy: false, LastError: "down"}, true
}

func (g *closedGate) CheckNow(url string) monitor.HealthStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rechecks++
	return monitor.HealthStatus{Healthy: false, LastError: "still down"}
}

type staticConfig struct{}

func (staticConfig) Get() configstore.BackendConfig {
	return configstore.BackendConfig{APIURL: "http://backend:5000", IsActive: true}
}

func newTestManager(t *testing.T, backend Backend, gate HealthGate) *Manager {
	t.Helper()

	m, err := NewManager(backend, gate, staticConfig{}, schedule.NewTickerScheduler(),
		5*time.Millisecond, 24*time.Hour, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m
}

func waitForState(t *testing.T, m *Manager, sessionID string, want State) Snapshot {
	t.Helper()

	var snap Snapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = m.Get(sessionID)
		return ok && snap.State == want
	}, 2*time.Second, time.Millisecond, "session should reach state %s", want)
	return snap
}

func TestWorkflowHappyPath(t *testing.T) {
	backend := &fakeBackend{
		taskID: "abc",
		statuses: []*inference.TaskStatus{
			{TaskID: "abc", Status: inference.TaskProcessing, Progress: 40, Message: "separating"},
			{
				TaskID:   "abc",
				Status:   inference.TaskCompleted,
				Progress: 100,
				Message:  "done",
				DetailedScores: &inference.DetailedScores{
					MOSImprovement: 0.4,
				},
			},
		},
	}
	m := newTestManager(t, backend, openGate{})

	snap, err := m.Submit(context.Background(), "speech.wav", 2<<20, strings.NewReader("riff"))
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, snap.State)
	assert.Equal(t, "abc", snap.TaskID)

	final := waitForState(t, m, snap.SessionID, StateCompleted)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Result)
	assert.InDelta(t, 0.4, final.Result.DetailedScores.MOSImprovement, 1e-9)
	assert.NotNil(t, final.FinishedAt)

	// Polling must stop at the terminal state.
	backend.mu.Lock()
	polls := backend.polls
	backend.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	backend.mu.Lock()
	assert.Equal(t, polls, backend.polls, "no polls after completion")
	backend.mu.Unlock()
}

func TestWorkflowFailure(t *testing.T) {
	t.Run("backend-reported failure carries error verbatim", func(t *testing.T) {
		backend := &fakeBackend{
			taskID: "abc",
			statuses: []*inference.TaskStatus{
				{TaskID: "abc", Status: inference.TaskFailed, Progress: 30, Message: "boom", Error: "decode error"},
			},
		}
		m := newTestManager(t, backend, openGate{})

		snap, err := m.Submit(context.Background(), "speech.wav", 1024, strings.NewReader("riff"))
		require.NoError(t, err)

		final := waitForState(t, m, snap.SessionID, StateFailed)
		assert.Equal(t, "decode error", final.Error)
	})

	t.Run("poll network error fails the task", func(t *testing.T) {
		backend := &fakeBackend{taskID: "abc", statusErr: errors.New("connection reset")}
		m := newTestManager(t, backend, openGate{})

		snap, err := m.Submit(context.Background(), "speech.wav", 1024, strings.NewReader("riff"))
		require.NoError(t, err)

		final := waitForState(t, m, snap.SessionID, StateFailed)
		assert.Contains(t, final.Error, "connection reset")
	})

	t.Run("upload error leaves a failed session behind", func(t *testing.T) {
		backend := &fakeBackend{uploadErr: errors.New("dial tcp: refused")}
		m := newTestManager(t, backend, openGate{})

		snap, err := m.Submit(context.Background(), "speech.wav", 1024, strings.NewReader("riff"))
		require.Error(t, err)
		assert.Equal(t, StateFailed, snap.State)
		assert.Contains(t, snap.Error, "refused")

		stored, ok := m.Get(snap.SessionID)
		require.True(t, ok, "failed session stays available for retry display")
		assert.Equal(t, StateFailed, stored.State)
	})
}

func TestSubmitGuards(t *testing.T) {
	t.Run("validation rejects before any network call", func(t *testing.T) {
		backend := &fakeBackend{taskID: "abc"}
		m := newTestManager(t, backend, openGate{})

		_, err := m.Submit(context.Background(), "huge.wav", MaxFileSize+1, strings.NewReader("riff"))
		assert.ErrorIs(t, err, ErrFileTooLarge)

		_, err = m.Submit(context.Background(), "movie.avi", 1024, strings.NewReader("riff"))
		assert.ErrorIs(t, err, ErrUnsupportedType)

		assert.Empty(t, m.List(), "no session is created for invalid files")
	})

	t.Run("health gate refuses upload against dead backend", func(t *testing.T) {
		backend := &fakeBackend{taskID: "abc"}
		gate := &closedGate{}
		m := newTestManager(t, backend, gate)

		_, err := m.Submit(context.Background(), "speech.wav", 1024, strings.NewReader("riff"))
		assert.ErrorIs(t, err, ErrBackendUnavailable)

		gate.mu.Lock()
		assert.Equal(t, 1, gate.rechecks, "an unhealthy record gets one fresh probe before refusing")
		gate.mu.Unlock()
	})
}

func TestWorkflowReset(t *testing.T) {
	t.Run("reset returns to idle and discards late polls", func(t *testing.T) {
		backend := &fakeBackend{
			taskID: "abc",
			statuses: []*inference.TaskStatus{
				{TaskID: "abc", Status: inference.TaskProcessing, Progress: 10, Message: "working"},
			},
		}
		m := newTestManager(t, backend, openGate{})

		snap, err := m.Submit(context.Background(), "speech.wav", 1024, strings.NewReader("riff"))
		require.NoError(t, err)
		waitForState(t, m, snap.SessionID, StateProcessing)

		m.mu.Lock()
		w := m.sessions[snap.SessionID]
		m.mu.Unlock()

		w.Reset()

		after := w.Snapshot()
		assert.Equal(t, StateIdle, after.State)
		assert.Empty(t, after.TaskID)
		assert.Zero(t, after.Progress)
		assert.Empty(t, after.Error)

		// Any result that resolves after the reset belongs to the old
		// generation and must not reanimate the session.
		assert.False(t, w.applyStatus(0, &inference.TaskStatus{Status: inference.TaskCompleted, Progress: 100}))
		assert.Equal(t, StateIdle, w.Snapshot().State)
	})

	t.Run("remove forgets the session", func(t *testing.T) {
		backend := &fakeBackend{
			taskID: "abc",
			statuses: []*inference.TaskStatus{
				{TaskID: "abc", Status: inference.TaskProcessing, Progress: 10},
			},
		}
		m := newTestManager(t, backend, openGate{})

		snap, err := m.Submit(context.Background(), "speech.wav", 1024, strings.NewReader("riff"))
		require.NoError(t, err)

		assert.True(t, m.Remove(snap.SessionID))
		_, ok := m.Get(snap.SessionID)
		assert.False(t, ok)
		assert.False(t, m.Remove(snap.SessionID), "second remove reports missing")
	})
}

func TestManagerCleanup(t *testing.T) {
	backend := &fakeBackend{
		taskID: "abc",
		statuses: []*inference.TaskStatus{
			{TaskID: "abc", Status: inference.TaskCompleted, Progress: 100},
		},
	}

	m, err := NewManager(backend, openGate{}, staticConfig{}, schedule.NewTickerScheduler(),
		5*time.Millisecond, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer m.Stop()

	snap, err := m.Submit(context.Background(), "speech.wav", 1024, strings.NewReader("riff"))
	require.NoError(t, err)
	waitForState(t, m, snap.SessionID, StateCompleted)

	time.Sleep(5 * time.Millisecond)
	m.cleanup()

	_, ok := m.Get(snap.SessionID)
	assert.False(t, ok, "terminal sessions past the TTL are swept")
}
