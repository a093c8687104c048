// Package logger is the process-wide log used by every e2e-runner package.
// Until Init is called all calls are no-ops.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base    = zap.NewNop()
	sugar   = base.Sugar()
	logFile *os.File
	mu      sync.RWMutex
)

// Options tunes Init.
type Options struct {
	// Verbose tees debug output to stderr in addition to the log file.
	Verbose bool
	// Level is the minimum level written to the file. The zero value is
	// info; Init uses debug.
	Level zapcore.Level
}

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	return InitWithOptions(logPath, Options{Level: zapcore.DebugLevel})
}

// InitWithOptions initializes the global logger with explicit options.
func InitWithOptions(logPath string, opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		_ = base.Sync()
		logFile.Close()
		logFile = nil
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	logFile = f

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	encCfg.EncodeCaller = nil
	encCfg.CallerKey = ""

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), opts.Level),
	}
	if opts.Verbose {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.DebugLevel))
	}

	base = zap.New(zapcore.NewTee(cores...))
	sugar = base.Sugar()
	return nil
}

// Close flushes and closes the log file. The logger reverts to a no-op.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	_ = base.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	base = zap.NewNop()
	sugar = base.Sugar()
}

// L returns the structured logger for callers that attach fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func s() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	s().Infof(format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	s().Debugf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	s().Errorf(format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	s().Warnf(format, v...)
}

// Pass logs a passed check. Rendered at info level with a PASS marker.
func Pass(format string, v ...interface{}) {
	s().Infof("[PASS] "+format, v...)
}

// Fail logs a failed check. Rendered at error level with a FAIL marker.
func Fail(format string, v ...interface{}) {
	s().Errorf("[FAIL] "+format, v...)
}

// GetWriter returns the underlying writer for use by child processes.
func GetWriter() io.Writer {
	mu.RLock()
	defer mu.RUnlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
