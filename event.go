// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

import "time"

// LifecycleEvent describes a step of the connection lifecycle.
type LifecycleEvent struct {
	// Name is the Manager's name.
	Name string

	// State is the state the manager is in after the step.
	State State

	// Epoch is the sequence number of the connection the event refers to.
	// Epochs start at 1 and increase with every successful connect.
	Epoch uint64

	// Attempt is the connect attempt number within the current epoch,
	// starting at 1. Zero for events unrelated to connecting.
	Attempt int

	// Error is the error that caused the step, if any.
	Error error

	// ErrorType is the error classification (empty when Error is nil).
	ErrorType string

	// Duration is the time spent in the step: the connect attempt for
	// connect events, the lifetime of the epoch for disconnect events.
	Duration time.Duration
}

// AddLifecycleEventListener adds a listener for lifecycle events.
//
// The returned function removes the listener.
//
// Listeners are called from the lifecycle goroutine and must not block.
func (m *Manager[H]) AddLifecycleEventListener(fn func(*LifecycleEvent)) func() {
	return m.listeners.Add(fn)
}

func (m *Manager[H]) dispatchEvent(event *LifecycleEvent) {
	event.Name = m.Name
	if event.Error != nil {
		event.ErrorType = ErrorType(event.Error)
	}

	m.listeners.Visit(func(listener func(*LifecycleEvent)) {
		listener(event)
	})
}
