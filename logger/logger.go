// Package logger provides the global structured logger for docsieve.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance.
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether JSON output is enabled.
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so the logger can be used
	// before Initialize is called.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. With jsonOutput the logger emits
// machine-readable JSON; otherwise a human-readable console encoder.
func Initialize(jsonOutput bool) error {
	return InitializeWithErrorFile(jsonOutput, "")
}

// InitializeWithErrorFile sets up the global logger and, if errorFile is
// non-empty, tees warn-and-above entries into a rotating log file. This
// replaces stderr-only error reporting so long batch runs keep a durable
// record of per-document failures.
func InitializeWithErrorFile(jsonOutput bool, errorFile string) error {
	JSONOutput = jsonOutput

	level := zap.InfoLevel
	if os.Getenv("DOCSIEVE_DEBUG") != "" {
		level = zap.DebugLevel
	}

	var consoleCore zapcore.Core
	if jsonOutput {
		encCfg := zap.NewProductionEncoderConfig()
		consoleCore = zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			level,
		)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleCore = zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			level,
		)
	}

	core := consoleCore
	if errorFile != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   errorFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		})
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			fileSink,
			zap.WarnLevel,
		)
		core = zapcore.NewTee(consoleCore, fileCore)
	}

	Logger = zap.New(core, zap.AddStacktrace(zap.ErrorLevel)).Sugar()
	return nil
}

// Cleanup flushes any buffered log entries.
func Cleanup() {
	if Logger != nil {
		Logger.Sync()
	}
}

// Infow logs an info message with structured fields.
func Infow(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, keysAndValues...)
}

// Warnw logs a warning message with structured fields.
func Warnw(msg string, keysAndValues ...interface{}) {
	Logger.Warnw(msg, keysAndValues...)
}

// Errorw logs an error message with structured fields.
func Errorw(msg string, keysAndValues ...interface{}) {
	Logger.Errorw(msg, keysAndValues...)
}

// Debugw logs a debug message with structured fields.
func Debugw(msg string, keysAndValues ...interface{}) {
	Logger.Debugw(msg, keysAndValues...)
}

// Infof logs a formatted info message.
func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}
