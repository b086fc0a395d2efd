// Package logging provides the leveled logger used across timeclock.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger writes INFO/WARN/ERROR lines to a single destination
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
}

// New creates a logger writing to w
func New(w io.Writer) *Logger {
	return &Logger{logger: log.New(w, "", log.LstdFlags)}
}

// Open creates a logger appending to the file at path
func Open(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Logger{file: file, logger: log.New(file, "", log.LstdFlags)}, nil
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return New(io.Discard)
}

// Info logs an info message
func (l *Logger) Info(msg string) { l.write("INFO: ", msg) }

// Warn logs a warning message
func (l *Logger) Warn(msg string) { l.write("WARN: ", msg) }

// Error logs an error message
func (l *Logger) Error(msg string) { l.write("ERROR: ", msg) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...any) { l.Info(fmt.Sprintf(format, args...)) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...any) { l.Warn(fmt.Sprintf(format, args...)) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) { l.Error(fmt.Sprintf(format, args...)) }

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// write holds the lock across SetPrefix and Println so concurrent callers
// cannot swap each other's level prefix.
func (l *Logger) write(prefix, msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.SetPrefix(prefix)
	l.logger.Println(msg)
}
