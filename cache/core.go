// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// core is the machinery shared by Client and SentinelClient.
type core struct {
	configureOnce sync.Once
	logger        kgo.Logger
	namespace     Namespace
	interval      time.Duration

	mgr tether.Manager[*conn]
}

type settings struct {
	name      string
	namespace Namespace
	interval  time.Duration
	logger    kgo.Logger
	listeners []func(*tether.LifecycleEvent)
}

func (c *core) configure(s settings, connector tether.Connector[*conn]) {
	c.configureOnce.Do(func() {
		c.logger = tether.LoggerOrNop(s.logger)
		c.namespace = s.namespace.orDefault()

		c.interval = s.interval
		if c.interval <= 0 {
			c.interval = tether.DefaultRetryInterval
		}

		c.mgr.Name = s.name
		c.mgr.RetryInterval = c.interval
		c.mgr.Connector = connector
		c.mgr.IsConnectivityError = IsConnectivityError
		c.mgr.Logger = c.logger
		c.mgr.InitialLifecycleEventListeners = s.listeners
	})
}

func (c *core) log() kgo.Logger {
	return tether.LoggerOrNop(c.logger)
}

// probe refreshes the liveness key. It expires after two intervals, so a
// stale key means nobody has been connected for a while.
func (c *core) probe(ctx context.Context, cmd redis.Cmdable) error {
	return cmd.Set(ctx, string(c.namespace), "alive", 2*c.interval).Err()
}

// serve probes the primary every interval until ctx is done. A probe that
// fails for connectivity reasons ends the epoch.
func (c *core) serve(ctx context.Context, h *conn) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		err := c.probe(ctx, h.primary)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case IsConnectivityError(err):
			return tether.Connectivity(err)
		default:
			c.logger.Log(kgo.LogLevelWarn, "liveness probe failed", "name", c.mgr.Name, "error", err.Error())
		}
	}
}

// Use returns a Scope for role.
func (c *core) Use(role Role) Scope {
	return Scope{c: c, role: role}
}

// Stop asks the client to disconnect. It does not block; use WaitStop.
func (c *core) Stop() {
	c.mgr.Stop()
}

// Restart replaces the live connection.
func (c *core) Restart() {
	c.mgr.Restart()
}

// WaitConnect blocks until a connection is live. See tether.Manager.WaitConnect.
func (c *core) WaitConnect(ctx context.Context) error {
	return c.mgr.WaitConnect(ctx)
}

// WaitStop blocks until the client has fully stopped.
func (c *core) WaitStop(ctx context.Context) error {
	return c.mgr.WaitStop(ctx)
}

// State returns the lifecycle state.
func (c *core) State() tether.State {
	return c.mgr.State()
}

// Connected reports whether a connection is live.
func (c *core) Connected() bool {
	return c.mgr.Connected()
}

// AddLifecycleEventListener adds a listener for connection lifecycle events.
// The returned function removes it.
func (c *core) AddLifecycleEventListener(fn func(*tether.LifecycleEvent)) func() {
	return c.mgr.AddLifecycleEventListener(fn)
}
