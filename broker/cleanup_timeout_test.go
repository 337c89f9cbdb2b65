// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flushCapture records the context passed to Flush.
type flushCapture struct {
	*fakeClient
	ctx context.Context
}

func (f *flushCapture) Flush(ctx context.Context) error {
	f.ctx = ctx
	return nil
}

// TestCloseSessionCleanupTimeout verifies that CleanupTimeout only applies
// when the caller's context has no deadline.
func TestCloseSessionCleanupTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		cleanupTimeout time.Duration
		callerTimeout  time.Duration
		wantDeadline   time.Duration
	}{
		{
			name: "no timeout anywhere",
		}, {
			name:           "cleanup timeout only",
			cleanupTimeout: 5 * time.Second,
			wantDeadline:   5 * time.Second,
		}, {
			name:           "shorter caller deadline",
			cleanupTimeout: 10 * time.Second,
			callerTimeout:  2 * time.Second,
			wantDeadline:   2 * time.Second,
		}, {
			name:           "longer caller deadline",
			cleanupTimeout: 2 * time.Second,
			callerTimeout:  10 * time.Second,
			wantDeadline:   10 * time.Second,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := &Producer{CleanupTimeout: tc.cleanupTimeout}
			client := &flushCapture{fakeClient: newFakeClient(newFakeCluster())}

			ctx := context.Background()
			if tc.callerTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tc.callerTimeout)
				defer cancel()
			}

			p.closeSession(ctx, &session{client: client})
			require.NotNil(t, client.ctx)
			assert.True(t, client.isClosed())

			deadline, ok := client.ctx.Deadline()
			if tc.wantDeadline == 0 {
				assert.False(t, ok, "expected no deadline")
				return
			}

			require.True(t, ok, "expected a deadline")
			assert.InDelta(t, tc.wantDeadline.Seconds(), time.Until(deadline).Seconds(), 0.1)
		})
	}
}
