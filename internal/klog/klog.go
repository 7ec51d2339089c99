// Package klog is the kernel's structured logging facade. Every other
// package logs through it instead of fmt/log, the same discipline the
// teacher repo's logiface package enforces for its own consumers.
//
// Unlike logiface, which is generic over the Event implementation so it can
// target zerolog, slog, stumpy, or logrus interchangeably, klog targets a
// single concrete backend (an adaptation of logiface/stumpy's allocation-
// conscious JSON encoder). A kernel image ships one logging backend; the
// genericity the teacher needs to serve arbitrary downstream users would be
// unused machinery here.
package klog

import (
	"io"
	"os"
	"sync"
	"time"
)

// Level mirrors logiface's syslog-derived level enum (logiface/level.go),
// trimmed to the levels the kernel actually emits.
type Level int8

const (
	LevelDisabled Level = iota - 1
	LevelError
	LevelWarning
	LevelNotice
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNotice:
		return "notice"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "disabled"
	}
}

// Logger writes structured events to an underlying io.Writer. The zero value
// is not usable; construct with New.
type Logger struct {
	w     io.Writer
	mu    sync.Mutex
	level Level
	base  []Field
}

// Field is a single structured key/value pair.
type Field struct {
	Key string
	Val any
}

// New constructs a Logger writing JSON lines to w at or below level.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{w: w, level: level}
}

// Default is a Logger writing to stderr at LevelInfo, used by packages that
// aren't handed an explicit Logger (e.g. boot-time code). The boot
// manifest has no log-level setting, so its level is fixed.
var Default = New(os.Stderr, LevelInfo)

// With returns a child Logger that always includes the given fields,
// mirroring logiface/context.go's Context chaining (trimmed: no separate
// Context type, since a Logger with base fields already serves the same
// role here).
func (l *Logger) With(fields ...Field) *Logger {
	child := &Logger{w: l.w, level: l.level, base: make([]Field, 0, len(l.base)+len(fields))}
	child.base = append(child.base, l.base...)
	child.base = append(child.base, fields...)
	return child
}

// Enabled reports whether a message at lvl would be written.
func (l *Logger) Enabled(lvl Level) bool {
	return l.level != LevelDisabled && lvl <= l.level
}

// Log writes one structured event, if lvl is enabled. It never panics or
// returns an error: a logging failure must never take down the hart calling
// it, mirroring eventloop.safeExecute's one concession to plain log.Printf
// for unrecoverable conditions -- here, a write failure is simply dropped.
func (l *Logger) Log(lvl Level, msg string, fields ...Field) {
	if !l.Enabled(lvl) {
		return
	}
	buf := make([]byte, 0, 128)
	buf = append(buf, '{')
	buf = appendField(buf, true, Field{"level", lvl.String()})
	buf = appendField(buf, false, Field{"ts", time.Now().UTC().Format(time.RFC3339Nano)})
	buf = appendField(buf, false, Field{"msg", msg})
	for _, f := range l.base {
		buf = appendField(buf, false, f)
	}
	for _, f := range fields {
		buf = appendField(buf, false, f)
	}
	buf = append(buf, '}', '\n')

	l.mu.Lock()
	_, _ = l.w.Write(buf)
	l.mu.Unlock()
}

func (l *Logger) Error(msg string, fields ...Field)   { l.Log(LevelError, msg, fields...) }
func (l *Logger) Warning(msg string, fields ...Field) { l.Log(LevelWarning, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)    { l.Log(LevelInfo, msg, fields...) }
func (l *Logger) Debug(msg string, fields ...Field)   { l.Log(LevelDebug, msg, fields...) }
func (l *Logger) Trace(msg string, fields ...Field)   { l.Log(LevelTrace, msg, fields...) }

// Str, Int, Uint64, Err, Dur are field constructors, named after logiface's
// Builder methods (Str, Int, Err, Dur, ...) for the same set of field types.
func Str(k, v string) Field          { return Field{k, v} }
func Int(k string, v int) Field      { return Field{k, v} }
func Uint64(k string, v uint64) Field { return Field{k, v} }
func Err(err error) Field            { return Field{"error", errString(err)} }
func Dur(k string, v time.Duration) Field { return Field{k, v.String()} }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
