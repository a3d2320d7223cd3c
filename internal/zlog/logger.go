// Package zlog provides the structured logging abstraction shared by every
// component of the server. Implementations plug in whatever backend they
// like; the shipped implementation wraps zerolog.
package zlog

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the severity levels every component logs at.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the textual form of a Level.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts an env-style string (LOG_LEVEL) into a Level.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO", "":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "none", "NONE", "off", "OFF":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Field is a single structured key-value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for constructing a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the only logging surface every component depends on.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
}

// Noop discards everything. Useful in tests and as a zero-value default.
type Noop struct{}

func (Noop) Debug(context.Context, string, ...Field) {}
func (Noop) Info(context.Context, string, ...Field)  {}
func (Noop) Warn(context.Context, string, ...Field)  {}
func (Noop) Error(context.Context, string, ...Field) {}

// Zerolog backs Logger with rs/zerolog, the pack's structured-logging
// library of choice.
type Zerolog struct {
	level Level
	log   zerolog.Logger
}

// New creates a Zerolog logger writing to w at the given level. Pass
// os.Stderr for production use; tests typically pass io.Discard.
func New(level Level, w io.Writer) *Zerolog {
	if w == nil {
		w = os.Stderr
	}
	return &Zerolog{
		level: level,
		log:   zerolog.New(w).With().Timestamp().Logger(),
	}
}

func withFields(e *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	return e
}

func (z *Zerolog) Debug(ctx context.Context, msg string, fields ...Field) {
	if z.level < LevelDebug {
		return
	}
	withFields(z.log.Debug(), fields).Msg(msg)
}

func (z *Zerolog) Info(ctx context.Context, msg string, fields ...Field) {
	if z.level < LevelInfo {
		return
	}
	withFields(z.log.Info(), fields).Msg(msg)
}

func (z *Zerolog) Warn(ctx context.Context, msg string, fields ...Field) {
	if z.level < LevelWarn {
		return
	}
	withFields(z.log.Warn(), fields).Msg(msg)
}

func (z *Zerolog) Error(ctx context.Context, msg string, fields ...Field) {
	if z.level < LevelError {
		return
	}
	withFields(z.log.Error(), fields).Msg(msg)
}

// Elapsed is a convenience Field constructor for call-duration logging,
// used throughout the retry helper and provider registry.
func Elapsed(since time.Time) Field {
	return F("elapsed_ms", time.Since(since).Milliseconds())
}
