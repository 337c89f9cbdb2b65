// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fnErr       error
		classifier  func(error) bool
		wantOutcome Outcome
		wantErr     error
		wantRestart bool
	}{
		{
			name:        "success",
			wantOutcome: Completed,
		}, {
			name:        "unrelated error propagates",
			fnErr:       errBoom,
			wantOutcome: Failed,
			wantErr:     errBoom,
		}, {
			name:        "misuse is returned",
			fnErr:       Misuse(errBoom),
			wantOutcome: Failed,
			wantErr:     ErrMisuse,
		}, {
			name:        "connectivity is suppressed",
			fnErr:       Connectivity(errBoom),
			wantOutcome: Recovered,
			wantRestart: true,
		}, {
			name:        "classifier marks connectivity",
			fnErr:       errBoom,
			classifier:  func(err error) bool { return errors.Is(err, errBoom) },
			wantOutcome: Recovered,
			wantRestart: true,
		}, {
			name:        "misuse wins over classifier",
			fnErr:       Misuse(errBoom),
			classifier:  func(error) bool { return true },
			wantOutcome: Failed,
			wantErr:     ErrMisuse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &fakeConnector{}
			m := newTestManager(c)
			m.IsConnectivityError = tc.classifier

			require.NoError(t, m.Start())
			waitConnect(t, m)

			outcome, err := m.Do(context.Background(), func(context.Context, *fakeHandle) error {
				return tc.fnErr
			})
			assert.Equal(t, tc.wantOutcome, outcome)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}

			if tc.wantRestart {
				require.Eventually(t, func() bool { return m.Epoch() == 2 }, testWait, testTick)
				waitConnect(t, m)
				assert.Equal(t, int32(1), c.closes.Load())
			} else {
				assert.Equal(t, uint64(1), m.Epoch())
				assert.Equal(t, int32(0), c.closes.Load())
			}

			stopAndWait(t, m)
		})
	}
}

func TestDoNilFunc(t *testing.T) {
	t.Parallel()
	m := newTestManager(&fakeConnector{})

	outcome, err := m.Do(context.Background(), nil)
	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, ErrMisuse)
}

func TestDoNotConnected(t *testing.T) {
	t.Parallel()
	c := &fakeConnector{failures: 1 << 30}
	m := newTestManager(c)

	called := false
	fn := func(context.Context, *fakeHandle) error {
		called = true
		return nil
	}

	outcome, err := m.Do(context.Background(), fn)
	assert.Equal(t, Unavailable, outcome)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, m.Start())
	outcome, err = m.Do(context.Background(), fn)
	assert.Equal(t, Unavailable, outcome)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, called)

	stopAndWait(t, m)
}

// TestDoStaleRestart verifies a connectivity error reported against an old
// connection does not tear down its replacement.
func TestDoStaleRestart(t *testing.T) {
	t.Parallel()
	c := &fakeConnector{}
	m := newTestManager(c)

	require.NoError(t, m.Start())
	waitConnect(t, m)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := m.Do(context.Background(), func(context.Context, *fakeHandle) error {
			close(entered)
			<-proceed
			return Connectivity(errBoom)
		})
		done <- outcome
	}()

	// Replace the connection while the block above is still running.
	<-entered
	m.Restart()
	require.Eventually(t, func() bool { return m.Epoch() == 2 }, testWait, testTick)

	close(proceed)
	assert.Equal(t, Recovered, <-done)

	assert.Equal(t, uint64(2), m.Epoch())
	assert.True(t, m.Connected())
	assert.Equal(t, int32(1), c.closes.Load())

	stopAndWait(t, m)
}

// TestDoHandleClosedDuringCallback verifies the loop can replace the handle
// while a callback still runs.
func TestDoHandleClosedDuringCallback(t *testing.T) {
	t.Parallel()
	c := &fakeConnector{}
	m := newTestManager(c)
	require.NoError(t, m.Start())
	waitConnect(t, m)

	outcome, err := m.Do(context.Background(), func(_ context.Context, h *fakeHandle) error {
		m.Restart()
		require.Eventually(t, func() bool { return c.closes.Load() == 1 }, testWait, testTick)
		assert.Equal(t, int32(1), h.attempt)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)

	require.Eventually(t, func() bool { return m.Epoch() == 2 }, testWait, testTick)
	stopAndWait(t, m)
}
