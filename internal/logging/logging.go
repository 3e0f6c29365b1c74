// Package logging provides category-tagged convenience wrappers over zap.
// All logging goes through this package so every line carries a category.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category constants for consistent logging categories.
const (
	CategoryApp        = "App"
	CategoryWorker     = "Worker"
	CategoryJob        = "Job"
	CategorySession    = "Session"
	CategoryTranscribe = "Transcribe"
	CategoryTranslate  = "Translate"
	CategorySynth      = "Synth"
	CategoryLiveKit    = "LiveKit"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Init initializes logging at the given level ("debug", "info", "warn", "error").
func Init(level string) {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return
	}

	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
}

// Shutdown flushes buffered log entries.
func Shutdown() {
	mu.RLock()
	defer mu.RUnlock()
	_ = logger.Sync()
}

func log() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func tag(category, msg string) string {
	return fmt.Sprintf("[%s] %s", category, msg)
}

// Debug logs a debug message.
func Debug(category, msg string, params ...interface{}) {
	log().Debugf(tag(category, msg), params...)
}

// Info logs an info message.
func Info(category, msg string, params ...interface{}) {
	log().Infof(tag(category, msg), params...)
}

// Warning logs a warning message.
func Warning(category, msg string, params ...interface{}) {
	log().Warnf(tag(category, msg), params...)
}

// Error logs an error message.
func Error(category, msg string, params ...interface{}) {
	log().Errorf(tag(category, msg), params...)
}

// Fail logs an unrecoverable startup failure.
func Fail(category, msg string, params ...interface{}) {
	log().Errorf(tag(category, msg), params...)
}
