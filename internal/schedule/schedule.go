// Package schedule provides a small recurring-job abstraction so that
// "stop" is a first-class, testable operation rather than an implicit
// timer handle.
package schedule

import (
	"sync"
	"time"
)

// Job represents a scheduled recurring job that can be closed.
type Job interface {
	Close() error
}

// Scheduler schedules a callback to run repeatedly at a fixed interval.
// The returned Job cancels the schedule when closed; a callback already in
// flight is allowed to finish, its effects discarded by the owner.
type Scheduler interface {
	Schedule(jobID string, interval time.Duration, callback func()) (Job, error)
}

// TickerScheduler is the production implementation backed by time.Ticker.
type TickerScheduler struct{}

// NewTickerScheduler creates a ticker-based scheduler.
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

// Schedule starts a goroutine that invokes callback every interval until
// the returned Job is closed. The first invocation happens after one full
// interval; callers wanting an immediate run perform it themselves.
func (s *TickerScheduler) Schedule(jobID string, interval time.Duration, callback func()) (Job, error) {
	j := &tickerJob{
		id:   jobID,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(j.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback()
			case <-j.stop:
				return
			}
		}
	}()

	return j, nil
}

type tickerJob struct {
	id   string
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Close cancels the schedule and waits for the job goroutine to exit.
// Closing an already-closed job is a no-op.
func (j *tickerJob) Close() error {
	j.once.Do(func() {
		close(j.stop)
	})
	<-j.done
	return nil
}
