// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

// Outcome represents the result of a scoped access block.
type Outcome int

const (
	// Completed indicates the block ran against a live connection and
	// returned no error.
	Completed Outcome = iota

	// Recovered indicates the block failed with a connectivity error. The
	// error was suppressed and a reconnect was triggered. The work the block
	// attempted may or may not have happened.
	Recovered

	// Unavailable indicates there was no live connection, so the block was
	// never run.
	Unavailable

	// Failed indicates the block returned an error that was handed back to
	// the caller.
	Failed
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "Completed"
	case Recovered:
		return "Recovered"
	case Unavailable:
		return "Unavailable"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}
