package tasks

import (
	"context"
	"time"

	"github.com/darmiel/warrant/internal/logging"
)

// TaskFunc does the work of a single run. Whatever it writes to logger is
// kept with the task until the next run starts.
type TaskFunc func(ctx context.Context, logger logging.InternalLogger) error

const (
	ResultSucceeded    = "success"
	resultFailedPrefix = "failed: "
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) severity() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	}
	return -1
}

// AtLeast reports whether l is as severe as min. Entries with an unknown
// level are always kept.
func (l LogLevel) AtLeast(min LogLevel) bool {
	s := l.severity()
	return s < 0 || s >= min.severity()
}

type TaskStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval,omitempty"`
	Running      bool          `json:"running,omitempty"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastResult   string        `json:"last_result,omitempty"`
	NextRun      time.Time     `json:"next_run"`
}

// Succeeded reports whether the most recent run returned without error.
func (s TaskStatus) Succeeded() bool {
	return s.LastResult == ResultSucceeded
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
}
