package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of log messages
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	mu           sync.RWMutex
	currentLevel = INFO
	base         = newLogger(os.Stderr)
	exit         = os.Exit

	zerologLevels = map[LogLevel]zerolog.Level{
		DEBUG: zerolog.DebugLevel,
		INFO:  zerolog.InfoLevel,
		WARN:  zerolog.WarnLevel,
		ERROR: zerolog.ErrorLevel,
		FATAL: zerolog.FatalLevel,
	}
)

func init() {
	// Set log level from environment variable
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		SetLevel(levelStr)
	}
}

func newLogger(out io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    out != os.Stderr,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Logger()
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(w)
}

// SetLevel sets the logging level from a string
func SetLevel(level string) {
	var lvl LogLevel
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = DEBUG
	case "INFO":
		lvl = INFO
	case "WARN", "WARNING":
		lvl = WARN
	case "ERROR":
		lvl = ERROR
	case "FATAL":
		lvl = FATAL
	default:
		Warnf("Unknown log level: %s, using INFO", level)
		lvl = INFO
	}

	mu.Lock()
	currentLevel = lvl
	mu.Unlock()
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

func emit(level LogLevel, message string) {
	mu.RLock()
	enabled := level >= currentLevel
	l := base
	mu.RUnlock()
	if !enabled {
		return
	}

	// WithLevel never exits the process, even for FATAL.
	l.WithLevel(zerologLevels[level]).Msg(message)

	if level == FATAL {
		exit(1)
	}
}

// Debug logs a debug message
func Debug(args ...interface{}) {
	emit(DEBUG, fmt.Sprint(args...))
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	emit(DEBUG, fmt.Sprintf(format, args...))
}

// Info logs an info message
func Info(args ...interface{}) {
	emit(INFO, fmt.Sprint(args...))
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	emit(INFO, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	emit(WARN, fmt.Sprint(args...))
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	emit(WARN, fmt.Sprintf(format, args...))
}

// Error logs an error message
func Error(args ...interface{}) {
	emit(ERROR, fmt.Sprint(args...))
}

// Errorf logs a formatted error message
func Errorf(format string, args ...interface{}) {
	emit(ERROR, fmt.Sprintf(format, args...))
}

// Fatal logs a fatal message and exits
func Fatal(args ...interface{}) {
	emit(FATAL, fmt.Sprint(args...))
}

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, args ...interface{}) {
	emit(FATAL, fmt.Sprintf(format, args...))
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= DEBUG
}
