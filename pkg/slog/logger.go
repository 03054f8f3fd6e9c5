package slog

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// Init initializes the logger. An empty level falls back to the LOG_LEVEL environment variable.
func Init(level string) {
	config := zap.NewProductionConfig()

	// configure:
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Errorf("error initializing logger: %v", err))
	}
	log = logger.Sugar()
}

// Get returns the global logger instance, or a no-op logger if Init has not been called.
func Get() *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}

// Sync flushes any buffered log entries
func Sync() error {
	if log == nil {
		return nil
	}
	return log.Sync()
}

func parseLevel(level string) zapcore.Level {
	if level == "" {
		envLevel, ok := os.LookupEnv("LOG_LEVEL")
		if !ok {
			return zapcore.InfoLevel
		}
		level = envLevel
	}
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		fmt.Printf("Unrecognised log level '%s', using 'info'\n", level)
		return zapcore.InfoLevel
	}
}
