// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/xmidt-org/tether"
)

var (
	// ErrNoPrimary indicates no sentinel could name the primary.
	ErrNoPrimary = tether.NewError("no_primary", "no sentinel returned a primary address")

	// ErrUnknownRole indicates a Role other than Primary or Replica.
	ErrUnknownRole = tether.NewError("unknown_role", "unknown role")
)

// Replies that mean the node cannot serve us right now. After a failover the
// old primary answers READONLY until the roles are resolved again.
var unavailableReplies = []string{"LOADING", "READONLY", "MASTERDOWN"}

// IsConnectivityError reports whether err means the Redis connection is no
// longer usable and should be replaced.
//
// A missing key (redis.Nil) and caller cancellation are never connectivity
// errors.
func IsConnectivityError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch {
	case errors.Is(err, tether.ErrConnectivity),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, redis.ErrPoolTimeout),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var reply redis.Error
	if errors.As(err, &reply) {
		msg := reply.Error()
		for _, prefix := range unavailableReplies {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
		return false
	}

	var ne net.Error
	return errors.As(err, &ne)
}
