package utils

import (
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/rs/zerolog"
	"github.com/vgarvardt/gue/v5/adapter"
)

// GueLogAdapter routes gue pool logs to zerolog
type GueLogAdapter struct {
	log zerolog.Logger
}

// NewGueLoggerAdapter creates adapter tagged with the pool name
func NewGueLoggerAdapter(pool string) *GueLogAdapter {
	return &GueLogAdapter{log: goapp.Log.With().Str("pool", pool).Logger()}
}

// Debug implements adapter.Logger
func (l *GueLogAdapter) Debug(msg string, fields ...adapter.Field) {
	add(l.log.Debug(), fields).Msg(msg)
}

// Info implements adapter.Logger, gue info is too chatty for the service log
func (l *GueLogAdapter) Info(msg string, fields ...adapter.Field) {
	add(l.log.Debug(), fields).Msg(msg)
}

// Error implements adapter.Logger
func (l *GueLogAdapter) Error(msg string, fields ...adapter.Field) {
	add(l.log.Error(), fields).Msg(msg)
}

// With implements adapter.Logger
func (l *GueLogAdapter) With(fields ...adapter.Field) adapter.Logger {
	c := l.log.With()
	for _, f := range fields {
		c = fieldTo(c, f)
	}
	return &GueLogAdapter{log: c.Logger()}
}

func add(le *zerolog.Event, fields []adapter.Field) *zerolog.Event {
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			le = le.AnErr(f.Key, err)
			continue
		}
		le = le.Interface(f.Key, f.Value)
	}
	return le
}

func fieldTo(c zerolog.Context, f adapter.Field) zerolog.Context {
	if err, ok := f.Value.(error); ok {
		return c.AnErr(f.Key, err)
	}
	return c.Interface(f.Key, f.Value)
}
