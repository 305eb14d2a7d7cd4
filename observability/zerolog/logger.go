// Package zerolog adapts core.Logger onto github.com/rs/zerolog, the
// structured-logging library the retrieval pack's logiface-zerolog adapter
// wires the same way: fields go on as typed key-value pairs on a
// per-level zerolog.Event, never string-formatted ahead of time.
package zerolog

import (
	"github.com/Swind/go-fiber-runtime/core"
	"github.com/rs/zerolog"
)

// Logger implements core.Logger over a zerolog.Logger.
type Logger struct {
	Z zerolog.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps an existing zerolog.Logger.
func New(z zerolog.Logger) *Logger {
	return &Logger{Z: z}
}

func (l *Logger) Debug(msg string, fields ...core.Field) { l.log(l.Z.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.log(l.Z.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { l.log(l.Z.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.log(l.Z.Error(), msg, fields) }

func (l *Logger) log(event *zerolog.Event, msg string, fields []core.Field) {
	for _, f := range fields {
		event = event.Interface(f.Key, f.Value)
	}
	event.Msg(msg)
}
