package common

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// dClientLogger implements the ILogger interface on top of a zap sugared logger
type dClientLogger struct {
	name   string
	level  logger.LogLevel
	logger *zap.SugaredLogger
}

func (l *dClientLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *dClientLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.logger.Debugf(format, args...)
	}
}

func (l *dClientLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.logger.Infof(format, args...)
	}
}

func (l *dClientLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.logger.Warnf(format, args...)
	}
}

func (l *dClientLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.logger.Errorf(format, args...)
	}
}

func (l *dClientLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	baseLogger     *zap.Logger
	baseLoggerOnce sync.Once
)

// zapBase lazily builds the shared zap logger all package loggers are derived from
func zapBase() *zap.Logger {
	baseLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true

		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		baseLogger = l
	})
	return baseLogger
}

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	return &dClientLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: zapBase().Named(pkgName).Sugar(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// mustParseLogLevel is ParseLogLevel for callers that already validated the level
func mustParseLogLevel(level string) logger.LogLevel {
	l, err := ParseLogLevel(level)
	if err != nil {
		panic(err)
	}
	return l
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggerNames lists every package logger of the module
var loggerNames = []string{
	"executor",
	"topology",
	"health",
	"selector",
	"cache",
	"transport/rpc",
	"rpc",
	"server",
	"lockmgr",
}

// InitLoggers installs the zap backed logger factory and sets the level of all package loggers
func InitLoggers(level string) {
	lvl := mustParseLogLevel(level)

	// Set as the global logger factory for Dragonboat
	logger.SetLoggerFactory(CreateLogger)

	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
}

// SyncLoggers flushes buffered log entries, call before the process exits
func SyncLoggers() {
	if baseLogger != nil {
		_ = baseLogger.Sync()
	}
}
