package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
)

// RunnableTask is a registered task together with the bookkeeping of its runs.
type RunnableTask struct {
	Name     string
	Interval time.Duration
	Handler  TaskFunc

	clock        clock.Clock
	timeout      time.Duration
	registeredAt time.Time

	mu           sync.RWMutex
	running      bool
	runs         int
	failures     int
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error
	logs         []LogEntry
}

// Run executes the handler once and returns its error. A run overlapping
// with one in progress is skipped.
func (t *RunnableTask) Run(ctx context.Context) error {
	zl := log.With().Str("task", t.Name).Logger()
	if !t.begin() {
		zl.Warn().Msg("previous run still in progress, skipping")
		return nil
	}

	logger := newCompositeLogger(t, zl)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := t.clock.Now()
	err := t.Handler(ctx, logger)
	end := t.clock.Now()

	if err != nil {
		logger.Error("run failed after %s: %v", end.Sub(start), err)
	} else {
		logger.Debug("run finished in %s", end.Sub(start))
	}
	t.finish(end, end.Sub(start), err)
	return err
}

// begin marks the task as running and drops the logs of the previous run.
func (t *RunnableTask) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return false
	}
	t.running = true
	t.logs = make([]LogEntry, 0)
	return true
}

func (t *RunnableTask) finish(at time.Time, took time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.runs++
	t.lastRun = at
	t.lastDuration = took
	t.lastErr = err
	if err != nil {
		t.failures++
	}
}

func (t *RunnableTask) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *RunnableTask) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := TaskStatus{
		Name:         t.Name,
		Interval:     t.Interval,
		Running:      t.running,
		Runs:         t.runs,
		Failures:     t.failures,
		LastRun:      t.lastRun,
		LastDuration: t.lastDuration,
	}
	switch {
	case t.runs == 0:
	case t.lastErr != nil:
		status.LastResult = resultFailedPrefix + t.lastErr.Error()
	default:
		status.LastResult = ResultSucceeded
	}
	if t.Interval > 0 {
		from := t.lastRun
		if from.IsZero() {
			from = t.registeredAt
		}
		status.NextRun = from.Add(t.Interval)
	}
	return status
}

func (t *RunnableTask) GetLogs() []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]LogEntry, len(t.logs))
	copy(out, t.logs)
	return out
}
