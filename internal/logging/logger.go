// Package logging provides unified logging functionality for lanes.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

// Log levels, from most to least verbose.
const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the compact level tag written to the log file ("L1".."L4").
func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Name returns the human-readable level name.
func (l Level) Name() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger provides logging capabilities for lanes.
type Logger interface {
	// Debug outputs debug information (only in debug mode)
	Debug(format string, args ...interface{})

	// Info writes informational message to log file
	Info(format string, args ...interface{})

	// Warn outputs warning to stderr and log file
	Warn(format string, args ...interface{})

	// Error outputs error to stderr and log file
	Error(format string, args ...interface{})

	// SetScript sets the current command name for context
	SetScript(script string)

	// SetRun sets the current run slug for context
	SetRun(run string)

	// StartTimer starts a timer for measuring operation duration
	StartTimer(operation string) *Timer

	// Close closes the log file
	Close() error
}

// Timer represents a timer for measuring operation duration
type Timer struct {
	operation string
	start     time.Time
	logger    *fileLogger
}

// Stop stops the timer and logs the elapsed time
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.logger != nil {
		t.logger.write(LevelInfo, 3, fmt.Sprintf("%s completed in %v", t.operation, elapsed))
	}
	return elapsed
}

// StopWithResult stops the timer and logs the result
func (t *Timer) StopWithResult(success bool, detail string) time.Duration {
	elapsed := time.Since(t.start)
	if t.logger == nil {
		return elapsed
	}
	status, level := "completed", LevelInfo
	if !success {
		status, level = "failed", LevelWarn
	}
	msg := fmt.Sprintf("%s %s in %v", t.operation, status, elapsed)
	if detail != "" {
		msg += ": " + detail
	}
	t.logger.write(level, 3, msg)
	return elapsed
}

type fileLogger struct {
	file   *os.File
	stderr io.Writer
	script string
	run    string
	debug  bool
	mu     sync.Mutex
}

// New creates a new Logger that writes to the specified file.
func New(logPath string, debug bool) (Logger, error) {
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) //nolint:gosec // G302: log file is user-readable by design
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &fileLogger{
		file:   file,
		stderr: os.Stderr,
		debug:  debug,
	}, nil
}

// NewStdout creates a logger that only outputs to stderr.
func NewStdout(debug bool) Logger {
	return &fileLogger{
		stderr: os.Stderr,
		debug:  debug,
	}
}

func (l *fileLogger) SetScript(script string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.script = script
}

func (l *fileLogger) SetRun(run string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.run = run
}

// getContext must be called with the lock held.
func (l *fileLogger) getContext() string {
	if l.run != "" {
		return fmt.Sprintf("%s:%s", l.script, l.run)
	}
	return l.script
}

// getCaller returns the caller function name (skipping internal logging frames)
func getCaller(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.Index(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// write appends one entry to the log file. skip is the number of stack
// frames between the original caller and write.
func (l *fileLogger) write(level Level, skip int, msg string) {
	caller := getCaller(skip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.debug && level <= LevelDebug && l.stderr != nil {
		fmt.Fprintf(l.stderr, "[%s] [%s] %s\n", level.Name(), caller, msg)
	}
	if l.file == nil {
		return
	}

	timestamp := time.Now().Format("06-01-02 15:04:05.0")
	// Format: [timestamp] [level] [context] [caller] message
	line := fmt.Sprintf("[%s] [%s] [%s] [%s] %s\n", timestamp, level, l.getContext(), caller, msg)
	if _, err := l.file.WriteString(line); err != nil && l.stderr != nil {
		fmt.Fprintf(l.stderr, "Failed to write to log file: %v\n", err)
	}
}

func (l *fileLogger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.write(LevelDebug, 3, fmt.Sprintf(format, args...))
}

func (l *fileLogger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, 3, fmt.Sprintf(format, args...))
}

func (l *fileLogger) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.stderr != nil {
		fmt.Fprintf(l.stderr, "Warning: %s\n", msg)
	}
	l.write(LevelWarn, 3, msg)
}

func (l *fileLogger) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.stderr != nil {
		fmt.Fprintf(l.stderr, "Error: %s\n", msg)
	}
	l.write(LevelError, 3, msg)
}

func (l *fileLogger) StartTimer(operation string) *Timer {
	if l.file != nil {
		l.write(LevelInfo, 3, operation+" started")
	}
	return &Timer{
		operation: operation,
		start:     time.Now(),
		logger:    l,
	}
}

func (l *fileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Global logger instance
var (
	globalMu     sync.RWMutex
	globalLogger = NewStdout(os.Getenv("LANES_DEBUG") == "1")
)

// SetGlobal sets the global logger instance.
func SetGlobal(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the global logger instance.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug logs debug information using the global logger.
func Debug(format string, args ...interface{}) {
	Global().Debug(format, args...)
}

// Info logs informational message using the global logger.
func Info(format string, args ...interface{}) {
	Global().Info(format, args...)
}

// Warn logs a warning using the global logger.
func Warn(format string, args ...interface{}) {
	Global().Warn(format, args...)
}

// Error logs an error using the global logger.
func Error(format string, args ...interface{}) {
	Global().Error(format, args...)
}

// StartTimer starts a timer for measuring operation duration using the global logger.
func StartTimer(operation string) *Timer {
	return Global().StartTimer(operation)
}
