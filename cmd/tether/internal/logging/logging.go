// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package logging sets up the process logger and adapts it to the logger
// interface used by the tether libraries.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Logger is the process logger.
var Logger = zerolog.Nop()

// Config holds logging configuration.
type Config struct {
	Level      string
	JSONOutput bool
	Output     io.Writer
}

// Init replaces Logger according to cfg. Unknown levels mean info.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithComponent creates a child logger with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// KgoLogger writes franz-go and tether library logs to a zerolog logger.
type KgoLogger struct {
	L zerolog.Logger
}

// For returns a KgoLogger for the named component of Logger.
func For(component string) *KgoLogger {
	return &KgoLogger{L: WithComponent(component)}
}

// Level reports the most verbose kgo level the logger will write.
func (k *KgoLogger) Level() kgo.LogLevel {
	level := k.L.GetLevel()
	if global := zerolog.GlobalLevel(); global > level {
		level = global
	}

	switch {
	case level <= zerolog.DebugLevel:
		return kgo.LogLevelDebug
	case level == zerolog.InfoLevel:
		return kgo.LogLevelInfo
	case level == zerolog.WarnLevel:
		return kgo.LogLevelWarn
	case level <= zerolog.PanicLevel:
		return kgo.LogLevelError
	}
	return kgo.LogLevelNone
}

// Log writes msg with keyvals as fields. Pairs whose key is not a string
// are dropped.
func (k *KgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	var e *zerolog.Event
	switch level {
	case kgo.LogLevelError:
		e = k.L.Error()
	case kgo.LogLevelWarn:
		e = k.L.Warn()
	case kgo.LogLevelInfo:
		e = k.L.Info()
	case kgo.LogLevelDebug:
		e = k.L.Debug()
	default:
		return
	}

	if len(keyvals)%2 == 1 {
		keyvals = append(keyvals, "(missing)")
	}
	e.Fields(keyvals).Msg(msg)
}
