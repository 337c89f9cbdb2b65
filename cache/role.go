// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xmidt-org/tether"
)

// Role selects which node a Scope talks to.
type Role string

const (
	// Primary is the node that accepts writes.
	Primary Role = "primary"

	// Replica is a read-only copy of the primary. Without a healthy replica,
	// and always for a direct Client, it is the primary.
	Replica Role = "replica"
)

// conn is the handle of one epoch.
type conn struct {
	primary *redis.Client
	replica *redis.Client
}

func (c *conn) pick(role Role) (redis.Cmdable, error) {
	switch role {
	case Primary:
		return c.primary, nil
	case Replica:
		return c.replica, nil
	}
	return nil, errors.Join(ErrUnknownRole, fmt.Errorf("role %q", role))
}

func (c *conn) close() error {
	var errs []error
	if c.replica != nil && c.replica != c.primary {
		errs = append(errs, c.replica.Close())
	}
	if c.primary != nil {
		errs = append(errs, c.primary.Close())
	}
	return errors.Join(errs...)
}

// Scope runs commands against one role of the live connection.
type Scope struct {
	c    *core
	role Role
}

// Do runs fn with the node of the scope's role. Outcomes follow
// tether.Manager.Do: connectivity errors restart the connection and are
// suppressed, other errors are returned.
func (s Scope) Do(ctx context.Context, fn func(context.Context, redis.Cmdable) error) (tether.Outcome, error) {
	if fn == nil {
		return tether.Failed, tether.Misuse(fmt.Errorf("scoped access requires a function"))
	}

	return s.c.mgr.Do(ctx, func(ctx context.Context, h *conn) error {
		cmd, err := h.pick(s.role)
		if err != nil {
			return tether.Misuse(err)
		}
		return fn(ctx, cmd)
	})
}
