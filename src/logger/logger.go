package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// -----------------------------------------------------------------------------

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps a config string to a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// -----------------------------------------------------------------------------

// Logger provides named, levelled logging
type Logger struct {
	name   string
	logger *log.Logger
	level  Level
	exit   func(int)
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger writing to stdout at the given level name.
func NewLogger(level string, name string) *Logger {
	return NewLoggerTo(os.Stdout, level, name)
}

// -----------------------------------------------------------------------------

// NewLoggerTo creates a Logger writing to w.
func NewLoggerTo(w io.Writer, level string, name string) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(w, "", log.LstdFlags),
		level:  ParseLevel(level),
		exit:   os.Exit,
	}
}

// -----------------------------------------------------------------------------

// Named returns a child logger sharing output and level.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:   name,
		logger: l.logger,
		level:  l.level,
		exit:   l.exit,
	}
}

// -----------------------------------------------------------------------------

func (l *Logger) enabled(level Level) bool {
	return l.level <= level
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.enabled(LevelDebug) {
		return
	}
	l.logger.Printf("[%s] DEBUG: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	if !l.enabled(LevelInfo) {
		return
	}
	l.logger.Printf("[%s] INFO: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	if !l.enabled(LevelWarning) {
		return
	}
	l.logger.Printf("[%s] WARNING: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	if !l.enabled(LevelError) {
		return
	}
	l.logger.Printf("[%s] ERROR: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.Printf("[%s] CRITICAL: %s", l.name, fmt.Sprintf(format, args...))
	l.exit(1)
}
