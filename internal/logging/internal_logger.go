package logging

import "github.com/rs/zerolog"

// InternalLogger is handed to background work (tasks, policy sources, key
// refreshes) so its output can be kept apart from the process log, e.g. as
// the logs of a task run.
type InternalLogger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Discard drops every message.
var Discard InternalLogger = MultiLogger(nil)

var _ InternalLogger = ZLogger{}

// ZLogger forwards to a zerolog logger.
type ZLogger struct {
	ZLog zerolog.Logger
}

func NewZLogger(zlog zerolog.Logger) ZLogger {
	return ZLogger{ZLog: zlog}
}

func (l ZLogger) Debug(format string, args ...any) { l.logf(zerolog.DebugLevel, format, args) }
func (l ZLogger) Info(format string, args ...any)  { l.logf(zerolog.InfoLevel, format, args) }
func (l ZLogger) Warn(format string, args ...any)  { l.logf(zerolog.WarnLevel, format, args) }
func (l ZLogger) Error(format string, args ...any) { l.logf(zerolog.ErrorLevel, format, args) }

func (l ZLogger) logf(level zerolog.Level, format string, args []any) {
	l.ZLog.WithLevel(level).Msgf(format, args...)
}

// MultiLogger writes every message to each logger in order.
type MultiLogger []InternalLogger

func NewMultiLogger(loggers ...InternalLogger) MultiLogger {
	return loggers
}

func (m MultiLogger) Debug(format string, args ...any) {
	m.each(func(l InternalLogger) { l.Debug(format, args...) })
}

func (m MultiLogger) Info(format string, args ...any) {
	m.each(func(l InternalLogger) { l.Info(format, args...) })
}

func (m MultiLogger) Warn(format string, args ...any) {
	m.each(func(l InternalLogger) { l.Warn(format, args...) })
}

func (m MultiLogger) Error(format string, args ...any) {
	m.each(func(l InternalLogger) { l.Error(format, args...) })
}

func (m MultiLogger) each(fn func(InternalLogger)) {
	for _, l := range m {
		fn(l)
	}
}
