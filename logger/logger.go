package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields mirrors logrus.Fields so callers do not import logrus.
type Fields map[string]interface{}

// Log is the process logger. Entries created through it count warnings and
// errors per component for the run report.
type Log struct {
	*logrus.Logger
}

// Entry is a logrus entry carrying at least a component field.
type Entry struct {
	*logrus.Entry
}

var globalLogger = Logger()

// Logger returns a JSON logger at the LOG_LEVEL level, info by default.
func Logger() *Log {
	l := logrus.New()
	l.SetReportCaller(true)
	lvl, err := parseLevel("info")
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	l.SetFormatter(jsonFormatter())
	l.AddHook(newCallerHook())
	return &Log{Logger: l}
}

// GetLogger returns the shared process logger.
func GetLogger() *Log {
	return globalLogger
}

// parseLevel resolves the effective level. LOG_LEVEL wins over level.
func parseLevel(level string) (logrus.Level, error) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return 0, fmt.Errorf("invalid log level '%s'", level)
	}
	return lvl, nil
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

func formatterFor(format string) (logrus.Formatter, error) {
	switch format {
	case "json", "":
		return jsonFormatter(), nil
	case "text":
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		}, nil
	default:
		return nil, fmt.Errorf("invalid log format '%s'", format)
	}
}

// openOutput maps the configured output to a writer. Anything other than
// stdout or stderr is a file path, rotated by lumberjack when maxAge is set.
func openOutput(output string, maxAge int) (io.Writer, error) {
	switch output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if maxAge > 0 {
		return &lumberjack.Logger{
			Filename: output,
			MaxAge:   maxAge,
			MaxSize:  100,
			Compress: true,
		}, nil
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", output, err)
	}
	return file, nil
}

// Configure applies the logging section of the config. Nothing is changed
// when any of the settings is invalid.
func (l *Log) Configure(level string, format string, output string, maxAge int) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	formatter, err := formatterFor(format)
	if err != nil {
		return err
	}
	w, err := openOutput(output, maxAge)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	l.SetFormatter(formatter)
	l.SetOutput(w)
	l.SetReportCaller(true)
	return nil
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

func (e *Entry) component() (string, bool) {
	c, ok := e.Entry.Data["component"].(string)
	return c, ok
}

func (e *Entry) Debug(args ...interface{}) {
	e.Entry.Debug(args...)
}

func (e *Entry) Info(args ...interface{}) {
	e.Entry.Info(args...)
}

// Warn logs at warning level and counts the warning against the entry's
// component.
func (e *Entry) Warn(args ...interface{}) {
	if c, ok := e.component(); ok {
		recordWarn(c)
	}
	e.Entry.Warn(args...)
}

// Error logs at error level and counts the error against the entry's
// component.
func (e *Entry) Error(args ...interface{}) {
	if c, ok := e.component(); ok {
		recordError(c)
	}
	e.Entry.Error(args...)
}

// LogMetric logs a metric line and queues numeric values for CloudWatch.
// String fields become metric dimensions.
func (e *Entry) LogMetric(component string, metric string, value interface{}, metricType string, fields Fields) {
	if fields == nil {
		fields = make(Fields)
	}
	if metricType == "" {
		metricType = "counter"
	}
	dims := map[string]string{"component": component}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			dims[k] = s
		}
	}
	fields["metric"] = metric
	fields["value"] = value
	fields["metric_type"] = metricType
	e.WithComponent(component).WithFields(fields).Info("metric")

	if val, ok := toFloat(value); ok {
		queueMetric(metric, val, dims)
	}
}

func (l *Log) LogMetric(component string, metric string, value interface{}, metricType string, fields Fields) {
	l.WithComponent(component).LogMetric(component, metric, value, metricType, fields)
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// LogPerformanceEntry logs how long operation took.
func LogPerformanceEntry(entry *Entry, component string, operation string, duration time.Duration, fields Fields) {
	if fields == nil {
		fields = make(Fields)
	}
	fields["duration_ms"] = float64(duration.Nanoseconds()) / 1e6
	fields["operation"] = operation

	entry.WithFields(fields).WithComponent(component).Info("performance metric")
}

// LogDataFlowEntry logs a batch of records moving between two stages.
func LogDataFlowEntry(entry *Entry, source string, destination string, recordCount int, dataType string) {
	entry.WithFields(Fields{
		"source":       source,
		"destination":  destination,
		"record_count": recordCount,
		"data_type":    dataType,
		"flow_type":    "data_flow",
	}).Info("data flow metric")
}
