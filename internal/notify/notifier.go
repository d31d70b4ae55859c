package notify

import (
	"go.uber.org/zap"

	"github.com/JACKYCCK126/voiceclear-docker/internal/metrics"
)

// Result reports the outcome of a Send call.
type Result string

const (
	// ResultSent means at least one transport delivered the message.
	ResultSent Result = "sent"

	// ResultSkipped means the cooldown window suppressed the message.
	ResultSkipped Result = "skipped"

	// ResultFailed means every configured transport failed; the cooldown
	// is not stamped so the next attempt may retry sooner.
	ResultFailed Result = "failed"

	// ResultNotConfigured means no transport is configured; the message
	// was only logged.
	ResultNotConfigured Result = "not_configured"
)

// Transport delivers a notification to one destination kind.
type Transport interface {
	Name() string
	Deliver(n Notification) error
}

// Notifier fans a notification out to every configured transport, gated by
// a shared cooldown ledger. It is safe for concurrent use.
type Notifier struct {
	transports []Transport
	ledger     *CooldownLedger
	logger     *zap.Logger
}

// New creates a notifier. With no transports every Send logs and returns
// ResultNotConfigured, so callers never have to care whether notification
// infrastructure exists.
func New(logger *zap.Logger, ledger *CooldownLedger, transports ...Transport) *Notifier {
	return &Notifier{
		transports: transports,
		ledger:     ledger,
		logger:     logger,
	}
}

// Send delivers n subject to the cooldown. The cooldown is stamped only
// after a successful delivery.
func (nt *Notifier) Send(n Notification) Result {
	if !nt.ledger.Allow(n) {
		nt.logger.Debug("Notification suppressed by cooldown",
			zap.String("title", n.Title),
			zap.String("severity", string(n.Severity)),
			zap.String("target", n.Target))
		return nt.count(ResultSkipped)
	}

	result := nt.deliver(n)
	if result == ResultSent {
		nt.ledger.Record(n)
	}
	return nt.count(result)
}

// SendNow delivers n immediately, bypassing and not stamping the cooldown.
// Used for operator-triggered test messages.
func (nt *Notifier) SendNow(n Notification) Result {
	return nt.count(nt.deliver(n))
}

func (nt *Notifier) deliver(n Notification) Result {
	if len(nt.transports) == 0 {
		nt.logger.Info("Notification transport not configured, logging only",
			zap.String("title", n.Title),
			zap.String("severity", string(n.Severity)),
			zap.String("target", n.Target),
			zap.String("body", n.Body))
		return ResultNotConfigured
	}

	delivered := 0
	for _, tr := range nt.transports {
		if err := tr.Deliver(n); err != nil {
			// Never escalate delivery failures beyond a log line: a
			// notification about a failed notification would loop.
			nt.logger.Error("Notification delivery failed",
				zap.String("transport", tr.Name()),
				zap.String("title", n.Title),
				zap.Error(err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return ResultFailed
	}

	nt.logger.Info("Notification delivered",
		zap.String("title", n.Title),
		zap.String("severity", string(n.Severity)),
		zap.String("target", n.Target),
		zap.Int("transports", delivered))
	return ResultSent
}

func (nt *Notifier) count(r Result) Result {
	metrics.NotificationsTotal.WithLabelValues(string(r)).Inc()
	return r
}
