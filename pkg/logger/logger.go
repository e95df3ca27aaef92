// Package logger holds the process-wide zap logger. Its level can be
// changed at runtime through LevelHandler.
package logger

import (
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry built by Init.
const ServiceName = "saudema-api"

var (
	mu     sync.RWMutex
	global = zap.NewNop()
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process logger. format is "json" (default) or "console";
// an unknown level falls back to info.
func Init(lvl, format string) error {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		cfg = zap.NewDevelopmentConfig()
	}

	parsed, err := zapcore.ParseLevel(strings.TrimSpace(lvl))
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	level.SetLevel(parsed)

	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{"service": ServiceName}

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	Set(built)
	return nil
}

// Set swaps the process logger and returns a function restoring the previous one.
func Set(l *zap.Logger) (restore func()) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	prev := global
	global = l
	mu.Unlock()
	return func() { Set(prev) }
}

func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger annotated with the module name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Level reports the current minimum level of loggers built by Init.
func Level() zapcore.Level {
	return level.Level()
}

// LevelHandler serves the current level on GET and changes it on PUT with
// a body such as {"level":"debug"}.
func LevelHandler() http.Handler {
	return level
}
