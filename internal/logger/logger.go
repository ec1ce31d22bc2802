package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/deploymenttheory/go-nvstorage/internal/common/fsutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance. It discards everything until InitLogger runs, so
// packages can log unconditionally.
var Logger = zap.NewNop().Sugar()

// logFile is the file sink opened by the last InitLogger call
var logFile *os.File

// Field values under these keys never reach a sink. Keys and payloads of
// encrypted variables travel through the same field maps as everything else.
var redactedFields = map[string]struct{}{
	"key":     {},
	"payload": {},
}

// LoggerConfig contains configuration for the logger
type LoggerConfig struct {
	Debug     bool   // Enable debug level logging
	LogFormat string // "json" or "human"
	LogFile   string // Path to log file (optional)
}

// DefaultConfig returns a default configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		LogFormat: "human",
	}
}

// InitLogger replaces the global logger. Diagnostics go to stderr, so command
// output on stdout stays clean, and to LogFile when one is set.
func InitLogger(config LoggerConfig) error {
	level := zap.InfoLevel
	if config.Debug {
		level = zap.DebugLevel
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}

	var file *os.File
	if config.LogFile != "" {
		if err := fsutil.CreateDirIfNotExists(filepath.Dir(config.LogFile)); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		sinks = append(sinks, zapcore.AddSync(file))
	}

	core := zapcore.NewCore(newEncoder(config.LogFormat), zapcore.NewMultiWriteSyncer(sinks...), level)

	options := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if config.Debug {
		options = append(options, zap.AddStacktrace(zap.ErrorLevel))
	}

	_ = Logger.Sync()
	if logFile != nil {
		logFile.Close()
	}
	Logger = zap.New(core, options...).Sugar()
	logFile = file
	return nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// Log functions
func LogInfo(message string, fields map[string]interface{}) {
	Logger.Infow(message, flattenFields(fields)...)
}

func LogWarn(message string, fields map[string]interface{}) {
	Logger.Warnw(message, flattenFields(fields)...)
}

// LogError logs at error level with err attached as the "error" field. The
// caller's map is left untouched.
func LogError(message string, err error, fields map[string]interface{}) {
	kv := flattenFields(fields)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	Logger.Errorw(message, kv...)
}

func LogDebug(message string, fields map[string]interface{}) {
	Logger.Debugw(message, flattenFields(fields)...)
}

// WithFields returns a logger with multiple fields added to every log
func WithFields(fields map[string]interface{}) *zap.SugaredLogger {
	return Logger.With(flattenFields(fields)...)
}

// flattenFields turns a field map into sorted key-value pairs, masking
// redacted keys
func flattenFields(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flat := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		v := fields[k]
		if _, secret := redactedFields[k]; secret {
			v = "[redacted]"
		}
		flat = append(flat, k, v)
	}
	return flat
}

// Sync flushes any buffered log entries
func Sync() error {
	return Logger.Sync()
}
