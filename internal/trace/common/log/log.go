package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	global Logger = newZapLogger(Options{Level: zapcore.InfoLevel})
)

// Logger is the structured logging interface shared by every traceless component.
// Fields are attached as key/value pairs; nil is accepted for "no fields".
type Logger interface {
	Info(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Debug(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Panic(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
}

// Options controls how the zap backend is built.
type Options struct {
	// Dev selects the colored console encoder instead of JSON.
	Dev bool
	// Level is the minimum enabled level.
	Level zapcore.Level
	// File, when set, receives a copy of every entry through a rotating writer.
	File string
	// MaxSizeMB bounds a single log file before rotation (lumberjack default when 0).
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
}

// SetLogger replaces the global logger instance. Tests use it to capture output.
func SetLogger(l Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// GetLogger returns the current global logger instance.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Configure sets up the global logger from the runtime environment ("dev" or "prod"),
// a level name and an optional rotated log file path.
func Configure(env, level, file string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	SetLogger(newZapLogger(Options{
		Dev:        env != "prod",
		Level:      lvl,
		File:       file,
		MaxSizeMB:  50,
		MaxBackups: 3,
	}))
	return nil
}

// Info logs at info level using the global logger.
func Info(fields map[string]any, msg string) { GetLogger().Info(fields, msg) }

// Error logs at error level using the global logger.
func Error(fields map[string]any, msg string) { GetLogger().Error(fields, msg) }

// Debug logs at debug level using the global logger.
func Debug(fields map[string]any, msg string) { GetLogger().Debug(fields, msg) }

// Warn logs at warn level using the global logger.
func Warn(fields map[string]any, msg string) { GetLogger().Warn(fields, msg) }

// Panic logs at panic level using the global logger, then panics.
func Panic(fields map[string]any, msg string) { GetLogger().Panic(fields, msg) }

// Fatal logs at fatal level using the global logger, then exits.
func Fatal(fields map[string]any, msg string) { GetLogger().Fatal(fields, msg) }

// zapLogger implements Logger on top of zap.
type zapLogger struct {
	base *zap.Logger
}

func newZapLogger(opts Options) Logger {
	var encCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if opts.Dev {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.LevelKey = "level"
	if opts.Dev {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	level := zap.NewAtomicLevelAt(opts.Level)
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)}
	if opts.File != "" {
		// files always get JSON so they stay machine readable
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}), level))
	}
	return &zapLogger{base: zap.New(zapcore.NewTee(cores...))}
}

func (l *zapLogger) Info(fields map[string]any, msg string) {
	l.base.Info(msg, zapFields(fields)...)
}

func (l *zapLogger) Error(fields map[string]any, msg string) {
	l.base.Error(msg, zapFields(fields)...)
}

func (l *zapLogger) Debug(fields map[string]any, msg string) {
	l.base.Debug(msg, zapFields(fields)...)
}

func (l *zapLogger) Warn(fields map[string]any, msg string) {
	l.base.Warn(msg, zapFields(fields)...)
}

func (l *zapLogger) Panic(fields map[string]any, msg string) {
	l.base.Panic(msg, zapFields(fields)...)
}

func (l *zapLogger) Fatal(fields map[string]any, msg string) {
	l.base.Fatal(msg, zapFields(fields)...)
}

// zapFields converts the map form used by callers into zap fields.
func zapFields(m map[string]any) []zap.Field {
	if len(m) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		if err, ok := v.(error); ok {
			fields = append(fields, zap.NamedError(k, err))
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

// noopLogger discards everything.
type noopLogger struct{}

func (noopLogger) Info(map[string]any, string)  {}
func (noopLogger) Error(map[string]any, string) {}
func (noopLogger) Debug(map[string]any, string) {}
func (noopLogger) Warn(map[string]any, string)  {}
func (noopLogger) Panic(map[string]any, string) {}
func (noopLogger) Fatal(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards all log messages.
func NewNoopLogger() Logger { return noopLogger{} }
