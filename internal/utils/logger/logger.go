package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.Mutex
	output   io.Writer = os.Stdout
	minLevel           = LevelInfo

	debugColor   = color.New(color.FgHiBlack)
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Logger is a named, leveled logger. Every service keeps its own instance.
type Logger struct {
	name string
}

func New(name string) *Logger {
	return &Logger{name: strings.ToUpper(name)}
}

// SetOutput redirects all loggers. A nil writer restores stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	output = w
}

func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
}

// ParseLevel maps LOG_LEVEL values onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, debugColor, "DEBUG", format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, infoColor, "INFO", format, args...)
}

func (l *Logger) Success(format string, args ...interface{}) {
	l.write(LevelInfo, successColor, "OK", format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, warnColor, "WARN", format, args...)
}

// Error logs the message and returns it as an error so callers can
// `return log.Error("failed to x: %v", err)`. The first error argument is
// kept as the cause.
func (l *Logger) Error(format string, args ...interface{}) error {
	msg := render(format, args...)
	l.write(LevelError, errorColor, "ERROR", "%s", msg)

	for _, a := range args {
		if err, ok := a.(error); ok {
			return &loggedError{msg: msg, err: err}
		}
	}
	return errors.New(msg)
}

type loggedError struct {
	msg string
	err error
}

func (e *loggedError) Error() string { return e.msg }
func (e *loggedError) Unwrap() error { return e.err }

func (l *Logger) write(level Level, c *color.Color, tag, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(output, "%s %s [%s] %s\n", ts, c.Sprintf("%-5s", tag), l.name, render(format, args...))
}

func render(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
