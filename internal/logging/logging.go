// Package logging provides the linker's logging interface: a small
// level-aware Logger abstraction with a logrus-backed default
// implementation.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Level is a logging severity.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warn:
		return "warn"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return "unknown"
	}
}

// Logger is the interface the linker depends on for diagnostic output
// (restart reasons, suggested-symbol hints, layout decisions at debug
// level).
type Logger interface {
	Debug(fmt string, a ...interface{})
	Info(fmt string, a ...interface{})
	Warn(fmt string, a ...interface{})
	Error(fmt string, a ...interface{})
	WithFields(fields map[string]interface{}) Logger
	GetLevel() Level
	SetLevel(Level)
}

// StandardLogger is the default Logger implementation, backed by
// logrus.
type StandardLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// New returns a StandardLogger at Info level.
func New() *StandardLogger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &StandardLogger{logger: l}
}

func (l *StandardLogger) entry() *logrus.Entry {
	return l.logger.WithFields(l.fields)
}

func (l *StandardLogger) Debug(fmtStr string, a ...interface{}) { l.entry().Debugf(fmtStr, a...) }
func (l *StandardLogger) Info(fmtStr string, a ...interface{})  { l.entry().Infof(fmtStr, a...) }
func (l *StandardLogger) Warn(fmtStr string, a ...interface{})  { l.entry().Warnf(fmtStr, a...) }
func (l *StandardLogger) Error(fmtStr string, a ...interface{}) { l.entry().Errorf(fmtStr, a...) }

func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	merged := logrus.Fields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StandardLogger{logger: l.logger, fields: merged}
}

func (l *StandardLogger) GetLevel() Level {
	switch l.logger.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return Debug
	case logrus.InfoLevel:
		return Info
	case logrus.WarnLevel:
		return Warn
	default:
		return Error
	}
}

func (l *StandardLogger) SetLevel(level Level) {
	switch level {
	case Debug:
		l.logger.SetLevel(logrus.DebugLevel)
	case Info:
		l.logger.SetLevel(logrus.InfoLevel)
	case Warn:
		l.logger.SetLevel(logrus.WarnLevel)
	default:
		l.logger.SetLevel(logrus.ErrorLevel)
	}
}

// NoOpLogger discards everything. Useful as the default for library
// consumers who haven't configured a logger.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (*NoOpLogger) Debug(string, ...interface{})               {}
func (*NoOpLogger) Info(string, ...interface{})                {}
func (*NoOpLogger) Warn(string, ...interface{})                {}
func (*NoOpLogger) Error(string, ...interface{})               {}
func (n *NoOpLogger) WithFields(map[string]interface{}) Logger { return n }
func (*NoOpLogger) GetLevel() Level                            { return Error }
func (*NoOpLogger) SetLevel(Level)                             {}
