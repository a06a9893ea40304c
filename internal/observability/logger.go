package observability

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var logrusLevels = map[LogLevel]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
}

// Logger provides structured logging. Every entry carries the service and
// version fields plus whatever was attached with WithField(s).
type Logger struct {
	entry *logrus.Entry
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level   LogLevel
	Output  io.Writer
	Service string
	Version string
	// Text switches from JSON lines to logfmt-style text.
	Text bool
}

// NewLogger creates a new logger instance
func NewLogger(config LoggerConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	base := logrus.New()
	base.SetOutput(config.Output)
	base.SetLevel(logrusLevels[config.Level])
	if config.Text {
		base.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	}

	fields := logrus.Fields{}
	if config.Service != "" {
		fields["service"] = config.Service
	}
	if config.Version != "" {
		fields["version"] = config.Version
	}

	return &Logger{entry: base.WithFields(fields)}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return NewLogger(LoggerConfig{Level: ErrorLevel, Output: io.Discard})
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithError attaches err under the "error" field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *Logger) Info(msg string) { l.entry.Info(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

// InfoWithFields logs an info message with fields
func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Info(msg)
}

func (l *Logger) Warn(msg string) { l.entry.Warn(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

// WarnWithFields logs a warning message with fields
func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Warn(msg)
}

func (l *Logger) Error(msg string) { l.entry.Error(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// ErrorWithFields logs an error message with fields
func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Error(msg)
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.entry.Logger.SetLevel(logrusLevels[level])
}

// LogLevelFromString converts a string to LogLevel
func LogLevelFromString(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
