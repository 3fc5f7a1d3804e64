package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter is a zapcore.Core that forwards entries to a Logger, so code
// written against *zap.Logger ends up in the service log stream.
type ZapAdapter struct {
	logger *Logger
}

// NewZapAdapter creates a new zapcore.Core that forwards logs to logger.
func NewZapAdapter(logger *Logger) *ZapAdapter {
	return &ZapAdapter{
		logger: logger,
	}
}

func toLevel(level zapcore.Level) LogLevel {
	switch level {
	case zapcore.DebugLevel:
		return DebugLevel
	case zapcore.InfoLevel:
		return InfoLevel
	case zapcore.WarnLevel:
		return WarnLevel
	default:
		// zap exits or panics by itself after writing Fatal and Panic entries
		return ErrorLevel
	}
}

// Enabled implements zapcore.Core
func (a *ZapAdapter) Enabled(level zapcore.Level) bool {
	return a.logger.shouldLog(toLevel(level))
}

// fieldValues decodes zap fields through a map encoder, which handles every
// field type including floats, durations and arrays.
func fieldValues(fields []zapcore.Field, extra int) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	out := make(map[string]interface{}, len(enc.Fields)+extra)
	for k, v := range enc.Fields {
		out[k] = v
	}
	return out
}

// With implements zapcore.Core
func (a *ZapAdapter) With(fields []zapcore.Field) zapcore.Core {
	return &ZapAdapter{
		logger: a.logger.WithFields(fieldValues(fields, 0)),
	}
}

// Check implements zapcore.Core
func (a *ZapAdapter) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(ent.Level) {
		return ce.AddCore(ent, a)
	}
	return ce
}

// Write implements zapcore.Core
func (a *ZapAdapter) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	f := fieldValues(fields, 2)
	if ent.LoggerName != "" {
		f["logger"] = ent.LoggerName
	}
	if ent.Caller.Defined {
		f["caller"] = ent.Caller.TrimmedPath()
	}
	a.logger.log(toLevel(ent.Level), ent.Message, f, 0)
	return nil
}

// Sync implements zapcore.Core
func (a *ZapAdapter) Sync() error {
	return nil
}

// NewZapLogger creates a *zap.Logger that forwards logs to logger.
func NewZapLogger(logger *Logger) *zap.Logger {
	return zap.New(NewZapAdapter(logger), zap.AddCaller())
}
