// ABOUTME: Periodic callback scheduler
// ABOUTME: Runs one ticker goroutine per task and joins it on cancel
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrSchedulerClosed is returned by Schedule after Close
var ErrSchedulerClosed = errors.New("scheduler closed")

// Scheduler is the shared timer facility for started streams
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[*Task]struct{}
	closed bool
}

// Task is one periodic callback; Cancel is its cancellation token
type Task struct {
	scheduler *Scheduler
	period    time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	fired     int64
	mu        sync.Mutex
}

// NewScheduler creates a scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[*Task]struct{})}
}

// Granularity rounds a period to whole milliseconds, at least one
func Granularity(period time.Duration) time.Duration {
	p := period.Round(time.Millisecond)
	if p < time.Millisecond {
		p = time.Millisecond
	}
	return p
}

// Schedule runs callback every period until the task is cancelled
func (s *Scheduler) Schedule(period time.Duration, callback func()) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		scheduler: s,
		period:    Granularity(period),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.tasks[t] = struct{}{}

	go t.run(callback)

	logrus.WithField("period", t.period).Debug("Periodic task scheduled")
	return t, nil
}

func (t *Task) run(callback func()) {
	defer close(t.done)

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			// cancellation wins over a tick that raced with it
			if t.ctx.Err() != nil {
				return
			}
			callback()
			t.mu.Lock()
			t.fired++
			t.mu.Unlock()
		}
	}
}

// Period returns the effective firing period
func (t *Task) Period() time.Duration { return t.period }

// Fired returns how many times the callback ran
func (t *Task) Fired() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Cancel stops the task and waits for an in-flight callback to return.
// It must not be called from the callback itself.
func (t *Task) Cancel() {
	t.cancel()
	<-t.done

	t.scheduler.mu.Lock()
	delete(t.scheduler.tasks, t)
	t.scheduler.mu.Unlock()
}

// Len returns the number of live tasks
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close cancels every task and refuses new ones
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}
