// Package notify delivers severity-tagged operator notifications over
// email and Discord, debounced by a per-key cooldown.
package notify

import (
	"fmt"
	"time"
)

// Severity classifies a notification for formatting and cooldown keying.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Field is one structured detail attached to a notification.
type Field struct {
	Name  string
	Value string
}

// Notification is a message for the operator. Target carries the monitored
// backend URL the message is about; it participates in the cooldown key so
// independently configured backends are debounced independently.
type Notification struct {
	Severity Severity
	Title    string
	Body     string
	Target   string
	Fields   []Field
}

// ConnectionError builds the canned notification for a backend that just
// went unhealthy.
func ConnectionError(targetURL, probeErr string, retryCount int) Notification {
	return Notification{
		Severity: SeverityError,
		Title:    "API connection error",
		Body:     fmt.Sprintf("The inference backend at %s is unreachable.", targetURL),
		Target:   targetURL,
		Fields: []Field{
			{Name: "URL", Value: targetURL},
			{Name: "Error", Value: probeErr},
			{Name: "Consecutive failures", Value: fmt.Sprintf("%d", retryCount)},
		},
	}
}

// Recovered builds the canned notification for a backend that just came
// back up.
func Recovered(targetURL string, at time.Time) Notification {
	return Notification{
		Severity: SeverityInfo,
		Title:    "API recovered",
		Body:     fmt.Sprintf("The inference backend at %s is reachable again.", targetURL),
		Target:   targetURL,
		Fields: []Field{
			{Name: "URL", Value: targetURL},
			{Name: "Recovered at", Value: at.Format(time.RFC3339)},
		},
	}
}

// TestMessage builds the canned notification sent by POST /api/test-email.
func TestMessage() Notification {
	return Notification{
		Severity: SeverityInfo,
		Title:    "Test notification",
		Body:     "This is a test notification from the VoiceClear relay server.",
		Target:   "relay",
		Fields: []Field{
			{Name: "Sent at", Value: time.Now().Format(time.RFC3339)},
		},
	}
}
