// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Do runs fn with the live handle of the current epoch.
//
// The handle is not locked while fn runs. A concurrent Restart or Stop may
// close it under fn, which then sees connectivity errors. The handle must not
// be retained after fn returns.
//
// Errors from fn are classified:
//   - nil: Completed, nil.
//   - wrapping ErrMisuse: Failed and the error, logged as a warning.
//   - connectivity errors (ErrConnectivity or IsConnectivityError): the
//     connection is restarted and the error is suppressed; Recovered, nil.
//   - anything else: Failed and the unchanged error.
//
// If no connection is live fn is not called and Do returns Unavailable with
// ErrNotConnected.
func (m *Manager[H]) Do(ctx context.Context, fn func(context.Context, H) error) (Outcome, error) {
	if fn == nil {
		return Failed, Misuse(fmt.Errorf("scoped access requires a function"))
	}

	m.mu.RLock()
	r, h, live, ep := m.run, m.handle, m.live, m.epoch
	m.mu.RUnlock()

	if !live {
		return Unavailable, ErrNotConnected
	}

	err := fn(ctx, h)
	switch {
	case err == nil:
		return Completed, nil

	case errors.Is(err, ErrMisuse):
		r.logger.Log(kgo.LogLevelWarn, "scoped access misuse", "name", m.Name, "error", err.Error())
		return Failed, err

	case m.isConnectivityError(err):
		r.logger.Log(kgo.LogLevelError, "connectivity lost during scoped access",
			"name", m.Name, "error", err.Error())
		m.restartEpoch(ep)
		return Recovered, nil
	}

	return Failed, err
}

func (m *Manager[H]) isConnectivityError(err error) bool {
	if errors.Is(err, ErrConnectivity) {
		return true
	}
	if m.IsConnectivityError != nil {
		return m.IsConnectivityError(err)
	}
	return false
}
