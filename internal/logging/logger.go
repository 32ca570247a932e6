package logging

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is read from poller and bridge goroutines while the CLI may still be
// replacing it, so it is swapped atomically.
var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "OGCTL_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks OGCTL_LOG_LEVEL.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger.Store(zap.NewNop())
		return nil
	}

	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Store(l)

	return nil
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
// A nil logger restores the silent default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	return logger.Load()
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogRequest logs an outgoing controller request. The device key is masked.
func LogRequest(method string, rawURL string) {
	Debug("Controller request",
		zap.String("method", method),
		zap.String("url", RedactURL(rawURL)),
	)
}

// LogResponse logs the outcome of a controller request.
func LogResponse(rawURL string, statusCode int, elapsed time.Duration) {
	Debug("Controller response",
		zap.String("url", RedactURL(rawURL)),
		zap.Int("status_code", statusCode),
		zap.Duration("elapsed", elapsed),
	)
}

// LogStorageError logs a registry storage failure.
func LogStorageError(op string, err error) {
	Warn("Storage operation failed",
		zap.String("op", op),
		zap.Error(err),
	)
}

// secretParams are query parameters never written to logs.
var secretParams = []string{"dkey", "nkey", "ckey", "auth", "mqpw", "iftt"}

// RedactURL masks secrets in a request URL. Relay tokens in the path are
// shortened to their first four characters.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "***")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if len(seg) >= 32 {
			segments[i] = seg[:4] + "…"
		}
	}
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""

	return u.String()
}

// Sync flushes any buffered log entries
func Sync() {
	_ = logger.Load().Sync()
}
