package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(action, message, requestID string, details map[string]interface{})
	Debug(action, message, requestID string, details map[string]interface{})
	Warn(action, message, requestID string, details map[string]interface{})
	Error(action, message, requestID string, details map[string]interface{}, err error)
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a JSON logger writing to stdout at the given level.
func New(service, level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.Lock(os.Stdout),
		lvl,
	)

	hostname, _ := os.Hostname()
	z := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)).With(
		zap.String(keyService, service),
		zap.String(keyHostname, hostname),
	)
	return &zapLogger{z: z}, nil
}

// NewWithZap wraps an existing zap logger, e.g. one from zaptest.
func NewWithZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func NewNop() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func (l *zapLogger) Info(action, message, requestID string, details map[string]interface{}) {
	l.z.Info(message, fields(action, requestID, details)...)
}

func (l *zapLogger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.z.Debug(message, fields(action, requestID, details)...)
}

func (l *zapLogger) Warn(action, message, requestID string, details map[string]interface{}) {
	l.z.Warn(message, fields(action, requestID, details)...)
}

func (l *zapLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
	l.z.Error(message, append(fields(action, requestID, details), zap.Error(err))...)
}

// Sync flushes buffered entries; call it before exit.
func Sync(l Logger) {
	if zl, ok := l.(*zapLogger); ok {
		_ = zl.z.Sync()
	}
}

func fields(action, requestID string, details map[string]interface{}) []zap.Field {
	out := []zap.Field{
		zap.String(keyAction, action),
		zap.String(keyRequestID, requestID),
	}
	if len(details) > 0 {
		out = append(out, zap.Any(keyDetails, details))
	}
	return out
}
