// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

import "github.com/twmb/franz-go/pkg/kgo"

// NopLogger, the default logger, drops everything.
type NopLogger struct{}

func (*NopLogger) Level() kgo.LogLevel { return kgo.LogLevelNone }
func (*NopLogger) Log(kgo.LogLevel, string, ...any) {
}

// LoggerOrNop returns l, or a NopLogger when l is nil.
func LoggerOrNop(l kgo.Logger) kgo.Logger {
	if l == nil {
		return &NopLogger{}
	}
	return l
}
