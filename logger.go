package flowgraph

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a prefixed diagnostic sink shared by the managers.
// It holds no state besides its prefix and enabled flag.
type Logger struct {
	base    zerolog.Logger
	zl      zerolog.Logger
	prefix  string
	enabled bool
}

// NewLogger wraps zl, tagging every event with component=prefix.
func NewLogger(zl zerolog.Logger, prefix string, enabled bool) *Logger {
	return &Logger{
		base:    zl,
		zl:      zl.With().Str("component", prefix).Logger(),
		prefix:  prefix,
		enabled: enabled,
	}
}

// DefaultLogger returns an enabled logger writing to the global zerolog logger.
func DefaultLogger(prefix string) *Logger {
	return NewLogger(log.Logger, prefix, true)
}

// NopLogger returns a disabled logger.
func NopLogger() *Logger {
	return NewLogger(zerolog.Nop(), "", false)
}

// Prefix returns the component prefix written with every event.
func (l *Logger) Prefix() string { return l.prefix }

// Enabled reports whether events are written.
func (l *Logger) Enabled() bool { return l.enabled }

// Log writes an info event. An optional data value is attached as "data".
func (l *Logger) Log(msg string, data ...any) {
	l.write(l.zl.Info(), msg, data)
}

// Warn writes a warning event.
func (l *Logger) Warn(msg string, data ...any) {
	l.write(l.zl.Warn(), msg, data)
}

// Error writes an error event.
func (l *Logger) Error(msg string, data ...any) {
	l.write(l.zl.Error(), msg, data)
}

// Debug writes a debug event.
func (l *Logger) Debug(msg string, data ...any) {
	l.write(l.zl.Debug(), msg, data)
}

// Group writes a separator line opening a named block of related events.
func (l *Logger) Group(title string) {
	if !l.enabled {
		return
	}
	l.zl.Info().Msg("======== " + title + " ========")
}

// GroupEnd writes the separator closing a group.
func (l *Logger) GroupEnd() {
	if !l.enabled {
		return
	}
	l.zl.Info().Msg("==============================")
}

// Sub returns a logger with the prefix "<prefix>:<sub>" and the same enabled flag.
func (l *Logger) Sub(sub string) *Logger {
	return NewLogger(l.base, l.prefix+":"+sub, l.enabled)
}

func (l *Logger) write(e *zerolog.Event, msg string, data []any) {
	if !l.enabled || e == nil {
		return
	}
	switch len(data) {
	case 0:
	case 1:
		e = e.Interface("data", data[0])
	default:
		e = e.Interface("data", data)
	}
	e.Msg(msg)
}
