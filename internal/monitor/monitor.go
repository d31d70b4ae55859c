// Package monitor watches inference backends by probing their health
// endpoints on a fixed schedule and raising edge-triggered operator
// notifications on state transitions.
package monitor

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/JACKYCCK126/voiceclear-docker/internal/metrics"
	"github.com/JACKYCCK126/voiceclear-docker/internal/notify"
	"github.com/JACKYCCK126/voiceclear-docker/internal/schedule"
)

// Notifier is the slice of the notification transport the monitor needs.
type Notifier interface {
	Send(n notify.Notification) notify.Result
}

// HealthStatus is the recorded state of one monitored URL. Records are
// process-local and non-persistent.
type HealthStatus struct {
	// Healthy is the current recorded state. New watchers start
	// unhealthy, so the first successful probe reports a recovery even
	// though the backend was never observed down. Conservative, and kept
	// on purpose.
	Healthy bool `json:"isHealthy"`

	// LastCheck is when the most recent probe finished.
	LastCheck time.Time `json:"lastCheck"`

	// ConsecutiveFailures resets to zero exactly when a probe succeeds
	// and increments by one on every failed probe.
	ConsecutiveFailures int `json:"consecutiveFailures"`

	// LastError is the most recent probe error, empty after a success.
	LastError string `json:"lastError,omitempty"`
}

// watcher pairs a URL's recurring probe job with its status record.
// A stopped watcher keeps its last status but has a nil job.
type watcher struct {
	job    schedule.Job
	status HealthStatus
}

// Monitor owns one watcher per monitored backend URL.
type Monitor struct {
	mu       sync.Mutex
	watchers map[string]*watcher

	prober    Prober
	notifier  Notifier
	scheduler schedule.Scheduler
	interval  time.Duration
	threshold int
	logger    *zap.Logger
}

// New creates a monitor. threshold is the number of consecutive failures
// that flips a URL to unhealthy and fires the connection-error
// notification.
func New(prober Prober, notifier Notifier, scheduler schedule.Scheduler, interval time.Duration, threshold int, logger *zap.Logger) *Monitor {
	return &Monitor{
		watchers:  make(map[string]*watcher),
		prober:    prober,
		notifier:  notifier,
		scheduler: scheduler,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
	}
}

// StartMonitoring begins watching url, replacing any existing watcher for
// it. The status record is initialized unhealthy with zero failures, one
// probe runs immediately, and further probes recur at the configured
// interval. Probe failures are absorbed into the status record; they never
// propagate to the caller.
func (m *Monitor) StartMonitoring(url string) error {
	m.mu.Lock()
	var oldJob schedule.Job
	if existing, ok := m.watchers[url]; ok {
		oldJob = existing.job
	}
	w := &watcher{
		status: HealthStatus{Healthy: false},
	}
	m.watchers[url] = w
	m.mu.Unlock()

	if oldJob != nil {
		if err := oldJob.Close(); err != nil {
			m.logger.Warn("Failed to close previous probe job", zap.String("url", url), zap.Error(err))
		}
	}

	m.check(url)

	job, err := m.scheduler.Schedule("health_"+url, m.interval, func() {
		m.check(url)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to schedule probes for %s", url)
	}

	m.mu.Lock()
	if current, ok := m.watchers[url]; ok && current == w {
		w.job = job
		m.mu.Unlock()
	} else {
		// Replaced or stopped while we were scheduling.
		m.mu.Unlock()
		_ = job.Close()
		return nil
	}

	m.logger.Info("Monitoring started",
		zap.String("url", url),
		zap.Duration("interval", m.interval))
	return nil
}

// StopMonitoring cancels the recurring probe for url. The last known status
// record stays in place until monitoring restarts.
func (m *Monitor) StopMonitoring(url string) error {
	m.mu.Lock()
	w, ok := m.watchers[url]
	if !ok {
		m.mu.Unlock()
		return errors.Errorf("url %s is not monitored", url)
	}
	job := w.job
	w.job = nil
	m.mu.Unlock()

	if job != nil {
		if err := job.Close(); err != nil {
			return errors.Wrapf(err, "failed to close probe job for %s", url)
		}
	}

	m.logger.Info("Monitoring stopped", zap.String("url", url))
	return nil
}

// CheckNow forces an out-of-band probe and returns the resulting status.
// For a monitored URL the probe updates the record and may fire
// notifications exactly like a scheduled probe. For an unmonitored URL the
// probe result is returned without being recorded.
func (m *Monitor) CheckNow(url string) HealthStatus {
	m.mu.Lock()
	_, monitored := m.watchers[url]
	m.mu.Unlock()

	if monitored {
		return m.check(url)
	}

	err := m.prober.Probe(url)
	status := HealthStatus{
		Healthy:   err == nil,
		LastCheck: time.Now(),
	}
	if err != nil {
		status.ConsecutiveFailures = 1
		status.LastError = err.Error()
	}
	return status
}

// Status returns the recorded status for url, if it has ever been
// monitored since process start.
func (m *Monitor) Status(url string) (HealthStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watchers[url]
	if !ok {
		return HealthStatus{}, false
	}
	return w.status, true
}

// StatusAll returns a snapshot of every known status record keyed by URL.
func (m *Monitor) StatusAll() map[string]HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make(map[string]HealthStatus, len(m.watchers))
	for url, w := range m.watchers {
		all[url] = w.status
	}
	return all
}

// Stop cancels every active probe job. Status records are kept.
func (m *Monitor) Stop() {
	m.mu.Lock()
	jobs := make([]schedule.Job, 0, len(m.watchers))
	for _, w := range m.watchers {
		if w.job != nil {
			jobs = append(jobs, w.job)
			w.job = nil
		}
	}
	m.mu.Unlock()

	for _, job := range jobs {
		_ = job.Close()
	}
}

// check runs one probe and applies the transition rules:
//   - success resets the failure counter and, when the prior recorded
//     state was unhealthy, fires a recovery notification;
//   - failure increments the counter and fires a connection-error
//     notification only when the counter first reaches the threshold,
//     flipping the recorded state to unhealthy. Further failures while
//     already past the threshold stay silent.
//
// The notification transport applies its own cooldown on top, so even a
// fresh edge may be suppressed if an identical message went out recently.
func (m *Monitor) check(url string) HealthStatus {
	err := m.prober.Probe(url)
	now := time.Now()

	var event *notify.Notification

	m.mu.Lock()
	w, ok := m.watchers[url]
	if !ok {
		// Watcher replaced under us; discard the stale result.
		m.mu.Unlock()
		return HealthStatus{LastCheck: now}
	}

	if err == nil {
		wasHealthy := w.status.Healthy
		w.status = HealthStatus{
			Healthy:   true,
			LastCheck: now,
		}
		if !wasHealthy {
			n := notify.Recovered(url, now)
			event = &n
		}
	} else {
		w.status.ConsecutiveFailures++
		w.status.LastCheck = now
		w.status.LastError = err.Error()
		if w.status.ConsecutiveFailures == m.threshold {
			w.status.Healthy = false
			n := notify.ConnectionError(url, err.Error(), w.status.ConsecutiveFailures)
			event = &n
		}
	}
	status := w.status
	m.mu.Unlock()

	if err == nil {
		metrics.ProbesTotal.WithLabelValues("success").Inc()
		m.logger.Debug("Probe succeeded", zap.String("url", url))
	} else {
		metrics.ProbesTotal.WithLabelValues("failure").Inc()
		m.logger.Warn("Probe failed",
			zap.String("url", url),
			zap.Int("consecutiveFailures", status.ConsecutiveFailures),
			zap.Error(err))
	}

	if event != nil {
		direction := "recovered"
		if event.Severity == notify.SeverityError {
			direction = "down"
		}
		metrics.TransitionsTotal.WithLabelValues(direction).Inc()
		m.notifier.Send(*event)
	}

	return status
}
