package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// recordingTransport is a Transport that captures delivered notifications.
type recordingTransport struct {
	mu        sync.Mutex
	delivered []Notification
	err       error
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Deliver(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.delivered = append(r.delivered, n)
	return nil
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered)
}

func newTestNotifier(t *testing.T, window time.Duration, transports ...Transport) *Notifier {
	t.Helper()
	ledger := NewCooldownLedger(window, zap.NewNop())
	t.Cleanup(ledger.Stop)
	return New(zap.NewNop(), ledger, transports...)
}

func TestNotifierSend(t *testing.T) {
	t.Run("delivers and stamps cooldown", func(t *testing.T) {
		tr := &recordingTransport{}
		nt := newTestNotifier(t, time.Hour, tr)

		result := nt.Send(ConnectionError("http://backend:5000", "connection refused", 1))
		assert.Equal(t, ResultSent, result)
		assert.Equal(t, 1, tr.count())
	})

	t.Run("same key within window is skipped", func(t *testing.T) {
		tr := &recordingTransport{}
		nt := newTestNotifier(t, time.Hour, tr)

		first := nt.Send(ConnectionError("http://backend:5000", "connection refused", 1))
		second := nt.Send(ConnectionError("http://backend:5000", "timeout", 2))

		assert.Equal(t, ResultSent, first)
		assert.Equal(t, ResultSkipped, second)
		assert.Equal(t, 1, tr.count(), "exactly one message should be delivered")
	})

	t.Run("same key spaced beyond window delivers twice", func(t *testing.T) {
		tr := &recordingTransport{}
		nt := newTestNotifier(t, 10*time.Millisecond, tr)

		assert.Equal(t, ResultSent, nt.Send(ConnectionError("http://backend:5000", "down", 1)))
		time.Sleep(15 * time.Millisecond)
		assert.Equal(t, ResultSent, nt.Send(ConnectionError("http://backend:5000", "down", 2)))
		assert.Equal(t, 2, tr.count())
	})

	t.Run("different targets are debounced independently", func(t *testing.T) {
		tr := &recordingTransport{}
		nt := newTestNotifier(t, time.Hour, tr)

		assert.Equal(t, ResultSent, nt.Send(ConnectionError("http://a:5000", "down", 1)))
		assert.Equal(t, ResultSent, nt.Send(ConnectionError("http://b:5000", "down", 1)))
		assert.Equal(t, 2, tr.count())
	})

	t.Run("different severity shares no cooldown", func(t *testing.T) {
		tr := &recordingTransport{}
		nt := newTestNotifier(t, time.Hour, tr)

		assert.Equal(t, ResultSent, nt.Send(ConnectionError("http://a:5000", "down", 1)))
		assert.Equal(t, ResultSent, nt.Send(Recovered("http://a:5000", time.Now())))
		assert.Equal(t, 2, tr.count())
	})

	t.Run("delivery failure does not stamp cooldown", func(t *testing.T) {
		tr := &recordingTransport{err: errors.New("smtp unreachable")}
		nt := newTestNotifier(t, time.Hour, tr)

		assert.Equal(t, ResultFailed, nt.Send(ConnectionError("http://a:5000", "down", 1)))

		// Transport recovers; the retry must not be suppressed.
		tr.mu.Lock()
		tr.err = nil
		tr.mu.Unlock()

		assert.Equal(t, ResultSent, nt.Send(ConnectionError("http://a:5000", "down", 2)))
	})

	t.Run("no transports is a logged no-op", func(t *testing.T) {
		nt := newTestNotifier(t, time.Hour)

		assert.Equal(t, ResultNotConfigured, nt.Send(ConnectionError("http://a:5000", "down", 1)))
	})

	t.Run("partial transport failure still counts as sent", func(t *testing.T) {
		broken := &recordingTransport{err: errors.New("webhook 401")}
		working := &recordingTransport{}
		nt := newTestNotifier(t, time.Hour, broken, working)

		assert.Equal(t, ResultSent, nt.Send(ConnectionError("http://a:5000", "down", 1)))
		assert.Equal(t, 1, working.count())
	})
}

func TestNotifierSendNow(t *testing.T) {
	t.Run("bypasses cooldown entirely", func(t *testing.T) {
		tr := &recordingTransport{}
		nt := newTestNotifier(t, time.Hour, tr)

		msg := TestMessage()
		assert.Equal(t, ResultSent, nt.SendNow(msg))
		assert.Equal(t, ResultSent, nt.SendNow(msg))
		assert.Equal(t, 2, tr.count())
	})
}

func TestCooldownLedger(t *testing.T) {
	t.Run("cleanup removes expired entries", func(t *testing.T) {
		ledger := NewCooldownLedger(time.Millisecond, zap.NewNop())
		defer ledger.Stop()

		n := ConnectionError("http://a:5000", "down", 1)
		ledger.Record(n)

		time.Sleep(5 * time.Millisecond)
		ledger.cleanup()

		ledger.mu.Lock()
		remaining := len(ledger.lastSent)
		ledger.mu.Unlock()
		assert.Zero(t, remaining)
		assert.True(t, ledger.Allow(n))
	})
}

func TestParseWebhookURL(t *testing.T) {
	t.Run("standard webhook url", func(t *testing.T) {
		id, token, err := parseWebhookURL("https://discord.com/api/webhooks/123456789/abcDEF_ghi-JKL")
		assert.NoError(t, err)
		assert.Equal(t, "123456789", id)
		assert.Equal(t, "abcDEF_ghi-JKL", token)
	})

	t.Run("versioned api path", func(t *testing.T) {
		id, token, err := parseWebhookURL("https://discord.com/api/v10/webhooks/42/tok")
		assert.NoError(t, err)
		assert.Equal(t, "42", id)
		assert.Equal(t, "tok", token)
	})

	t.Run("not a webhook url", func(t *testing.T) {
		_, _, err := parseWebhookURL("https://example.com/hook")
		assert.Error(t, err)
	})
}
