package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels
const (
	None    = 0
	Error   = 1
	Warning = 2
	Info    = 3
	Debug   = 4
)

var (
	currentLevel atomic.Int32
	zapLevel     = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	mu     sync.RWMutex
	out    zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	fields []interface{}
	sugar  *zap.SugaredLogger
)

func init() {
	currentLevel.Store(Info)
	rebuild()
}

// rebuild recreates the sugared logger from the current output and fields.
// Callers must hold mu, except during init.
func rebuild() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = "" // call sites all resolve to Logf
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), out, zapLevel)
	sugar = zap.New(core).Sugar().With(fields...)
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = zapcore.Lock(zapcore.AddSync(w))
	rebuild()
}

// WithFields attaches key/value pairs to every subsequent log line.
// Passing no arguments clears previously attached fields.
func WithFields(kv ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if len(kv) == 0 {
		fields = nil
	} else {
		fields = append(fields, kv...)
	}
	rebuild()
}

// SetLevel sets the global logging level.
func SetLevel(level int) {
	currentLevel.Store(int32(level))
	zapLevel.SetLevel(toZapLevel(level))
	Logf(Debug, "Log level set to %d", level)
}

// GetLevel returns the current logging level.
func GetLevel() int {
	return int(currentLevel.Load())
}

func toZapLevel(level int) zapcore.Level {
	switch {
	case level <= None:
		return zapcore.FatalLevel + 1 // nothing passes
	case level == Error:
		return zapcore.ErrorLevel
	case level == Warning:
		return zapcore.WarnLevel
	case level == Info:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ParseLevel converts a string level to an integer level.
func ParseLevel(levelStr string) (int, error) {
	switch strings.ToLower(levelStr) {
	case "none":
		return None, nil
	case "error":
		return Error, nil
	case "warn", "warning":
		return Warning, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return Info, fmt.Errorf("invalid log level string: '%s'", levelStr)
	}
}

// SetupLogging initializes logging based on a level string.
// Returns the integer log level corresponding to the string.
func SetupLogging(levelStr string) int {
	level, err := ParseLevel(levelStr)
	if err != nil {
		Logf(Warning, "Invalid log level '%s' provided, defaulting to 'info'. %v", levelStr, err)
		level = Info
	}
	SetLevel(level)
	return level
}

// Logf logs a formatted message if the given level is high enough.
func Logf(level int, format string, v ...interface{}) {
	if level <= None || int32(level) > currentLevel.Load() {
		return
	}
	mu.RLock()
	s := sugar
	mu.RUnlock()
	switch level {
	case Error:
		s.Errorf(format, v...)
	case Warning:
		s.Warnf(format, v...)
	case Info:
		s.Infof(format, v...)
	default:
		s.Debugf(format, v...)
	}
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = sugar.Sync()
}
