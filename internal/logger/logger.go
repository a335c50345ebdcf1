// Package logger provides a subsystem-scoped logging interface backed by
// logrus, matching the common/logger package's subsystem-scoped shape.
package logger

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Fields is a set of keys/values to include in a structured log message.
type Fields map[string]interface{}

// Log is the logging interface every long-lived component in this repo
// depends on, instead of reaching for a global logger.
type Log interface {
	WithField(name string, value interface{}) Log
	WithFields(fields Fields) Log
	Trace(args ...interface{})
	Tracef(msg string, args ...interface{})
	Debug(args ...interface{})
	Debugf(msg string, args ...interface{})
	Info(args ...interface{})
	Infof(msg string, args ...interface{})
	Warn(args ...interface{})
	Warnf(msg string, args ...interface{})
	Error(args ...interface{})
	Errorf(msg string, args ...interface{})
}

// LogFactory produces a Log for the given subsystem name.
type LogFactory func(subsystem string) Log

type logrusLogger struct {
	*logrus.Entry
}

func (l *logrusLogger) WithField(name string, value interface{}) Log {
	return &logrusLogger{Entry: l.Entry.WithField(name, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Log {
	return &logrusLogger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

var levelMap = map[string]logrus.Level{
	"trace": logrus.TraceLevel,
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
}

// ParseLevel parses a LOG_LEVEL-style string, defaulting to info on a miss.
func ParseLevel(s string) logrus.Level {
	level, ok := levelMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return logrus.InfoLevel
	}
	return level
}

// ValidLevelNames lists the accepted LOG_LEVEL strings, for flag usage text.
func ValidLevelNames() []string {
	return []string{"trace", "debug", "info", "warn", "error"}
}

// NewFactory returns a LogFactory writing to stdout at the given level,
// using a text formatter when stdout is a terminal and a JSON formatter
// when it is not (grounded on
// common/logger.MakeLogrusLogFactoryStdOut).
func NewFactory(level logrus.Level) LogFactory {
	base := logrus.New()
	base.SetLevel(level)
	base.SetOutput(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			DisableQuote:    true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	return func(subsystem string) Log {
		return &logrusLogger{Entry: base.WithField("subsystem", subsystem)}
	}
}
