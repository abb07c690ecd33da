// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log is a small leveled-logging facade, vendored the way
// saferwall/pe vendors its own log subpackage instead of depending on
// a full logging framework. Callers that want structured logging can
// plug in their own Logger; a nil *Helper is safe to use and goes
// nowhere (NewStdLogger is the default only because wevt.Open/OpenBytes
// wire it in when Options.Logger is nil).
package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level is the severity of a log record.
type Level int8

// Severity levels, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String implements fmt.Stringer.
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink every decoder in this module writes
// through. keyvals is an alternating key/value list, kratos-style.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// Helper wraps a Logger with printf-style convenience methods.
// wevt.Manifest carries a *Helper rather than a bare Logger so that a
// nil Helper (the zero value) is safe: it discards everything.
type Helper struct {
	logger Logger
}

// NewHelper returns a Helper writing through logger.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, format string, args ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	_ = h.logger.Log(level, "msg", msg)
}

// Debugf logs at LevelDebug.
func (h *Helper) Debugf(format string, args ...interface{}) { h.log(LevelDebug, format, args...) }

// Infof logs at LevelInfo.
func (h *Helper) Infof(format string, args ...interface{}) { h.log(LevelInfo, format, args...) }

// Warnf logs at LevelWarn.
func (h *Helper) Warnf(format string, args ...interface{}) { h.log(LevelWarn, format, args...) }

// Warn logs a single message at LevelWarn.
func (h *Helper) Warn(msg string) { h.log(LevelWarn, "%s", msg) }

// Errorf logs at LevelError.
func (h *Helper) Errorf(format string, args ...interface{}) { h.log(LevelError, format, args...) }

// stdLogger writes timestamped, leveled lines to an io.Writer.
type stdLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdLogger returns a Logger that writes plain text lines to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

// Log implements Logger.
func (s *stdLogger) Log(level Level, keyvals ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s %s", time.Now().Format(time.RFC3339), level.String())
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(s.w, " %v=%v", keyvals[i], keyvals[i+1])
	}
	fmt.Fprintln(s.w)
	return nil
}

// filter decorates a Logger, dropping records below a minimum level.
type filter struct {
	Logger
	level Level
}

// Option configures a filter built by NewFilter.
type Option func(*filter)

// FilterLevel sets the minimum level a filtered Logger will pass through.
func FilterLevel(level Level) Option {
	return func(f *filter) { f.level = level }
}

// NewFilter returns a Logger that only forwards records at or above
// the configured minimum level (LevelDebug, i.e. everything, if no
// Option is given).
func NewFilter(logger Logger, opts ...Option) Logger {
	f := &filter{Logger: logger, level: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Log implements Logger.
func (f *filter) Log(level Level, keyvals ...interface{}) error {
	if level < f.level {
		return nil
	}
	return f.Logger.Log(level, keyvals...)
}
