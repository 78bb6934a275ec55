package tasks

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/darmiel/warrant/internal/logging"
)

var _ logging.InternalLogger = (*taskLogger)(nil)

// taskLogger keeps the output of the current run so it can be inspected through the admin API.
type taskLogger struct {
	task *RunnableTask
}

func (t taskLogger) Debug(format string, args ...any) { t.task.appendLog(LevelDebug, format, args) }
func (t taskLogger) Info(format string, args ...any)  { t.task.appendLog(LevelInfo, format, args) }
func (t taskLogger) Warn(format string, args ...any)  { t.task.appendLog(LevelWarn, format, args) }
func (t taskLogger) Error(format string, args ...any) { t.task.appendLog(LevelError, format, args) }

// newCompositeLogger logs to zerolog first and then into the task's log buffer.
func newCompositeLogger(task *RunnableTask, zlog zerolog.Logger) logging.MultiLogger {
	return logging.NewMultiLogger(
		logging.NewZLogger(zlog),
		taskLogger{task: task},
	)
}

func (t *RunnableTask) appendLog(level LogLevel, format string, args []any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logs = append(t.logs, LogEntry{
		Time:    t.clock.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
	if len(t.logs) > MaxLogsPerTask {
		t.logs = t.logs[1:]
	}
}
