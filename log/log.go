// Package log is a small leveled logger used throughout this module for the
// same debug/info/warn/error call shape the teacher codebase expects from
// its own lib/logger package. No third-party logging library appears
// anywhere in the retrieved corpus, so this is built directly on the
// standard library's log.Logger.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sync"
)

// Level orders the severities from most to least verbose.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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

var (
	mu    sync.Mutex
	level = LevelInfo
	std   = stdlog.New(os.Stderr, "", stdlog.LstdFlags|stdlog.Lmicroseconds)
)

// SetLevel changes the minimum level that gets written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects where log lines are written; mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

func write(l Level, format string, args ...interface{}) {
	mu.Lock()
	cur := level
	mu.Unlock()
	if l < cur {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	std.Printf("[%s] %s", l, msg)
}

func Debugf(format string, args ...interface{}) { write(LevelDebug, format, args...) }
func Infof(format string, args ...interface{})  { write(LevelInfo, format, args...) }
func Warnf(format string, args ...interface{})  { write(LevelWarn, format, args...) }
func Errorf(format string, args ...interface{}) { write(LevelError, format, args...) }

func Debug(msg string) { write(LevelDebug, msg) }
func Info(msg string)  { write(LevelInfo, msg) }
func Warn(msg string)  { write(LevelWarn, msg) }
func Error(msg string) { write(LevelError, msg) }
