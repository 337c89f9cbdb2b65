// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

import "errors"

var (
	// ErrValidation indicates configuration validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrNotConnected indicates there is no live connection for the current epoch.
	ErrNotConnected = &metricError{
		metric:  "not_connected",
		message: "not connected",
	}

	// ErrStopped indicates the lifecycle loop exited before a connection was
	// established.
	ErrStopped = &metricError{
		metric:  "stopped",
		message: "manager stopped",
	}

	// ErrConnectivity marks an error as a loss of connectivity to the remote
	// service. Scoped access recovers from these by restarting the connection.
	ErrConnectivity = &metricError{
		metric:  "connectivity_error",
		message: "connectivity error",
	}

	// ErrMisuse marks an error caused by the caller, such as handing the wrong
	// value to scoped access. It is always returned to the caller.
	ErrMisuse = &metricError{
		metric:  "misuse",
		message: "misuse",
	}
)

// metricError is an internal error type that wraps errors with a type classification
// for metrics and observability.
type metricError struct {
	metric  string // Type classification for metrics (e.g., "connectivity_error")
	message string // Human-readable message
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.message == t.message
	}
	return false
}

// NewError creates a sentinel error carrying a metric label. Packages built on
// tether use it so that ErrorType understands their errors too.
func NewError(metric, message string) error {
	return &metricError{
		metric:  metric,
		message: message,
	}
}

// Connectivity wraps err so that it is treated as a connectivity failure.
// A nil err yields nil.
func Connectivity(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrConnectivity, err)
}

// Misuse wraps err so that it is treated as a caller error.
// A nil err yields nil.
func Misuse(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrMisuse, err)
}

// ErrorType extracts the error type string for metrics classification.
// Walks the error chain to find metricError types.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	return "unknown"
}
