// Package logging provides the minimal structured-logging contract shared by
// every component of the engine. It mirrors the teacher framework's
// core.Logger: a tiny interface any production logger (zap, zerolog, the
// caller's own adapter) can satisfy, plus a no-op default so the engine never
// needs to nil-check a logger before calling it.
package logging

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Logger is the logging contract every component accepts. Implementations
// are expected to be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with the ability to tag a derived
// logger with a fixed component name, so every subsequent log line carries
// it without the caller repeating it at each call site.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. It is the default for every constructor in
// this module so callers can omit a logger entirely in tests and scripts.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}

// WithComponent returns the same no-op logger; there is nothing to tag.
func (n NoOpLogger) WithComponent(string) Logger { return n }

var _ ComponentAwareLogger = NoOpLogger{}

// level controls the minimum severity a StdLogger emits.
type level int

const (
	LevelDebug level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLevel(s string) level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// StdLogger is a small, dependency-free structured logger that writes
// one line per call to stderr. It exists so `cmd/selfhealctl` and
// the test suite have something concrete to point at without reaching for an
// external logging library the teacher's own "core" package doesn't use for
// its minimal Logger default either (gomind's SimpleLogger plays the same
// role for core.Logger).
type StdLogger struct {
	mu        sync.Mutex
	component string
	level     level
	now       func() time.Time
	out       *os.File
}

// NewStdLogger creates a logger writing to stderr at the given level
// ("debug", "info", "warn", "error"; defaults to "info").
func NewStdLogger(levelName string) *StdLogger {
	return &StdLogger{
		level: parseLevel(levelName),
		now:   time.Now,
		out:   os.Stderr,
	}
}

func (l *StdLogger) log(sev string, sevLevel level, msg string, fields map[string]interface{}) {
	if sevLevel < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC().Format(time.RFC3339Nano)
	line := fmt.Sprintf("%s level=%s", ts, sev)
	if l.component != "" {
		line += fmt.Sprintf(" component=%s", l.component)
	}
	line += fmt.Sprintf(" msg=%q", msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%v", k, fields[k])
		}
	}
	fmt.Fprintln(l.out, line)
}

func (l *StdLogger) Debug(msg string, fields map[string]interface{}) { l.log("debug", LevelDebug, msg, fields) }
func (l *StdLogger) Info(msg string, fields map[string]interface{})  { l.log("info", LevelInfo, msg, fields) }
func (l *StdLogger) Warn(msg string, fields map[string]interface{})  { l.log("warn", LevelWarn, msg, fields) }
func (l *StdLogger) Error(msg string, fields map[string]interface{}) { l.log("error", LevelError, msg, fields) }

// WithComponent returns a derived logger tagging every line with component.
func (l *StdLogger) WithComponent(component string) Logger {
	return &StdLogger{component: component, level: l.level, now: l.now, out: l.out}
}

var _ ComponentAwareLogger = (*StdLogger)(nil)

// WithComponent is a free function so callers holding only a plain Logger
// (not necessarily ComponentAwareLogger) can still try to tag it, falling
// back to the logger unchanged when it doesn't support tagging. This is the
// same defensive pattern resilience.CircuitBreaker.SetLogger uses against
// core.ComponentAwareLogger.
func WithComponent(l Logger, component string) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	if cal, ok := l.(ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return l
}
