// Package log wraps zap behind a small interface shared by every component
// of the session coordinator, the way drand's common/log package does for
// the beacon daemon.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every component depends on instead of *zap.Logger
// directly, so tests can swap in a silent or buffering implementation.
type Logger interface {
	Info(keyvals ...interface{})
	Debug(keyvals ...interface{})
	Warn(keyvals ...interface{})
	Error(keyvals ...interface{})
	Fatal(keyvals ...interface{})
	Infow(msg string, keyvals ...interface{})
	Debugw(msg string, keyvals ...interface{})
	Warnw(msg string, keyvals ...interface{})
	Errorw(msg string, keyvals ...interface{})
	With(args ...interface{}) Logger
	Named(s string) Logger
}

type zapLog struct {
	*zap.SugaredLogger
}

func (l *zapLog) With(args ...interface{}) Logger {
	return &zapLog{l.SugaredLogger.With(args...)}
}

func (l *zapLog) Named(s string) Logger {
	return &zapLog{l.SugaredLogger.Named(s)}
}

const (
	InfoLevel  = int(zapcore.InfoLevel)
	DebugLevel = int(zapcore.DebugLevel)
	WarnLevel  = int(zapcore.WarnLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
)

// DefaultLevel is used the first time DefaultLogger is called.
var DefaultLevel = InfoLevel

var defaultOnce sync.Once
var defaultLogger Logger

// DefaultLogger returns a process-wide logger at DefaultLevel, writing
// console-formatted output to stdout.
func DefaultLogger() Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(os.Stdout, DefaultLevel, false)
	})
	return defaultLogger
}

// New builds a logger writing to output at the given level. jsonFormat
// switches between a console encoder (for humans) and a JSON encoder (for
// log aggregation).
func New(output zapcore.WriteSyncer, level int, jsonFormat bool) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if jsonFormat {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	if output == nil {
		output = os.Stdout
	}

	core := zapcore.NewCore(encoder, output, zapcore.Level(level))
	return &zapLog{zap.New(core, zap.WithCaller(true)).Sugar()}
}
