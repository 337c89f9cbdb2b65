// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

// State is the lifecycle state of a Manager.
type State int

const (
	// Idle means the manager has never been started.
	Idle State = iota

	// Connecting means the first connection of a run is being established.
	Connecting

	// Connected means a live connection is available.
	Connected

	// Reconnecting means a previous connection was lost or torn down and a
	// new one is being established.
	Reconnecting

	// Stopping means Stop was called and the loop is releasing resources.
	Stopping

	// Stopped means the loop has exited and no connection is held.
	Stopped
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
