// Package logging provides structured logging for the optimization
// playground service.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in
	// production. Per-iteration optimizer output is logged at this level.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel is the default logging priority.
	InfoLevel LogLevel = "INFO"
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel LogLevel = "WARN"
	// ErrorLevel logs are high-priority. If an application is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel LogLevel = "ERROR"
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
	FatalLevel: 4,
}

// Format selects the encoding of log entries.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger represents an active logging object. Loggers derived with
// WithFields share the output and its lock.
type Logger struct {
	level  LogLevel
	format Format
	out    *syncWriter
	fields map[string]interface{}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// New creates a JSON Logger with the specified log level and output.
func New(level LogLevel, output io.Writer) *Logger {
	return NewWithFormat(level, FormatJSON, output)
}

// NewWithFormat creates a Logger writing entries in format.
func NewWithFormat(level LogLevel, format Format, output io.Writer) *Logger {
	if format != FormatText {
		format = FormatJSON
	}
	return &Logger{
		level:  level,
		format: format,
		out:    &syncWriter{w: output},
		fields: make(map[string]interface{}),
	}
}

// Level returns the minimum level written by l.
func (l *Logger) Level() LogLevel {
	return l.level
}

// WithFields returns a new Logger with the specified fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		level:  l.level,
		format: l.format,
		out:    l.out,
		fields: newFields,
	}
}

// WithField returns a new Logger with the specified key-value pair.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithError returns a new Logger with the error field set.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

// log writes an entry. depth is the number of frames between the caller of
// interest and log.
func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}, depth int) {
	if !l.shouldLog(level) {
		return
	}

	entry := make(map[string]interface{}, len(l.fields)+len(fields)+4)
	for k, v := range l.fields {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}
	if _, ok := entry["caller"]; !ok {
		entry["caller"] = caller(depth + 1)
	}
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["message"] = msg

	var line []byte
	if l.format == FormatText {
		line = encodeText(entry)
	} else {
		data, err := json.Marshal(entry)
		if err != nil {
			// Fall back to text when a field cannot be marshalled.
			line = encodeText(entry)
		} else {
			line = append(data, '\n')
		}
	}
	_, _ = l.out.Write(line)

	if level == FatalLevel {
		os.Exit(1)
	}
}

func caller(depth int) string {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "???:0"
	}
	// Only keep the last two parts of the file path
	parts := strings.Split(file, "/")
	if len(parts) > 2 {
		file = strings.Join(parts[len(parts)-2:], "/")
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// encodeText renders "timestamp LEVEL message key=value ..." with keys in
// sorted order.
func encodeText(entry map[string]interface{}) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%v %-5v %v", entry["timestamp"], entry["level"], entry["message"])

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "timestamp", "level", "message":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(entry[k])
		if strings.ContainsAny(v, " \t\n\"=") {
			v = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// shouldLog returns true if the given level should be logged.
func (l *Logger) shouldLog(level LogLevel) bool {
	want, ok := levelRank[level]
	if !ok {
		return false
	}
	current, ok := levelRank[l.level]
	if !ok {
		return false
	}
	return want >= current
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DebugLevel, msg, first(fields), 1)
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(InfoLevel, msg, first(fields), 1)
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WarnLevel, msg, first(fields), 1)
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(ErrorLevel, msg, first(fields), 1)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	l.log(FatalLevel, msg, first(fields), 1)
}

// CtxLogger is a logger that can be used with context.
type CtxLogger struct {
	*Logger
}

// FromContext returns a logger from the context or a new one if none exists.
func FromContext(ctx context.Context) *CtxLogger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*CtxLogger); ok {
		return logger
	}
	return &CtxLogger{New(InfoLevel, os.Stderr)}
}

// WithContext returns a new context with the logger.
func (l *CtxLogger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

type ctxLoggerKey struct{}
