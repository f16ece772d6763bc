package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reels-agent/pkg/logger"
)

// Handler is invoked when a delayed publish job comes due
type Handler func(ctx context.Context, scheduleID uint)

// DelayQueue routes publish invocations to their schedule's target time.
// It complements the periodic due-schedule sweep: firing twice for the same
// schedule is harmless because the publish claim is atomic.
type DelayQueue struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	handler Handler
	stopped bool
	log     *logger.Logger
}

// NewDelayQueue creates a delay queue dispatching to the given handler
func NewDelayQueue(handler Handler, log *logger.Logger) *DelayQueue {
	return &DelayQueue{
		timers:  make(map[string]*time.Timer),
		handler: handler,
		log:     log.WithComponent("jobs"),
	}
}

// EnqueueAt schedules a publish invocation for the given time and returns
// the job id. Times in the past fire immediately.
func (q *DelayQueue) EnqueueAt(scheduleID uint, at time.Time) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ""
	}

	jobID := uuid.NewString()
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	q.timers[jobID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, jobID)
		stopped := q.stopped
		q.mu.Unlock()
		if stopped {
			return
		}

		q.log.Debug().
			Str("job_id", jobID).
			Uint("schedule_id", scheduleID).
			Msg("Delayed publish job due")
		q.handler(context.Background(), scheduleID)
	})

	q.log.Debug().
		Str("job_id", jobID).
		Uint("schedule_id", scheduleID).
		Time("at", at).
		Msg("Publish job enqueued")
	return jobID
}

// Cancel removes a pending job; returns false if it already fired
func (q *DelayQueue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	timer, ok := q.timers[jobID]
	if !ok {
		return false
	}
	delete(q.timers, jobID)
	return timer.Stop()
}

// Len returns the number of pending jobs
func (q *DelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Stop cancels all pending jobs and refuses new ones
func (q *DelayQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
}
