package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// cleanupInterval is how often expired cooldown entries are swept.
const cleanupInterval = 10 * time.Minute

// cooldownKey identifies a notification for debouncing. A struct key rather
// than a concatenated string avoids delimiter-collision bugs.
type cooldownKey struct {
	severity Severity
	title    string
	target   string
}

// CooldownLedger maps notification keys to the time of the last successful
// delivery. Entries older than the window are swept periodically; a swept
// entry would have allowed sending anyway, so the sweep never changes
// observable behavior.
type CooldownLedger struct {
	mu          sync.Mutex
	lastSent    map[cooldownKey]time.Time
	window      time.Duration
	logger      *zap.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
}

// NewCooldownLedger creates a ledger with the given cooldown window and
// starts its sweep loop.
func NewCooldownLedger(window time.Duration, logger *zap.Logger) *CooldownLedger {
	l := &CooldownLedger{
		lastSent:    make(map[cooldownKey]time.Time),
		window:      window,
		logger:      logger,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Allow reports whether a notification with n's key may be delivered now,
// i.e. no successful delivery was recorded within the cooldown window.
func (l *CooldownLedger) Allow(n Notification) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	sent, exists := l.lastSent[keyOf(n)]
	if !exists {
		return true
	}
	return time.Since(sent) >= l.window
}

// Record stamps n's key with the current time. Call only after a successful
// delivery: failed deliveries must not suppress retries for a full window.
func (l *CooldownLedger) Record(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSent[keyOf(n)] = time.Now()
}

func keyOf(n Notification) cooldownKey {
	return cooldownKey{severity: n.Severity, title: n.Title, target: n.Target}
}

func (l *CooldownLedger) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	defer close(l.cleanupDone)

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *CooldownLedger) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	expired := 0

	for key, sent := range l.lastSent {
		if now.Sub(sent) >= l.window {
			delete(l.lastSent, key)
			expired++
		}
	}

	if expired > 0 {
		l.logger.Debug("Swept expired cooldown entries",
			zap.Int("expired", expired),
			zap.Int("remaining", len(l.lastSent)))
	}
}

// Stop stops the sweep goroutine and waits for it to finish.
func (l *CooldownLedger) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
	})
	<-l.cleanupDone
}
