// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// Client keeps a connection to a single Redis server alive in the
// background.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	// Name identifies the client in logs and lifecycle events.
	// Default: "cache".
	Name string

	// Addr is the server address in "host:port" format. Required.
	// Use SetAddr to change it at runtime.
	Addr string

	// DB is the database to select.
	DB int

	// Username and Password authenticate with the server.
	// Optional.
	Username string
	Password string

	// Namespace prefixes keys and names the liveness key.
	// Default: DefaultNamespace.
	Namespace Namespace

	// RetryInterval is the pause between failed connect attempts and
	// between liveness probes.
	// Default: 10s.
	RetryInterval time.Duration

	// Options are the base go-redis options. Addr, DB and the credentials
	// above replace theirs.
	// Optional.
	Options *redis.Options

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialLifecycleEventListeners are registered when Start() is first called.
	// Optional.
	InitialLifecycleEventListeners []func(*tether.LifecycleEvent)

	core

	mu   sync.Mutex
	addr string
}

func (c *Client) validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required, is.DialString),
		validation.Field(&c.DB, validation.Min(0)),
	)
	if err != nil {
		return errors.Join(tether.ErrValidation, err)
	}
	return nil
}

// Start validates the configuration and starts connecting in the background.
// Use WaitConnect to wait for the first connection.
//
// Calling Start again while running does nothing.
func (c *Client) Start() error {
	if err := c.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.addr == "" {
		c.addr = c.Addr
	}
	c.mu.Unlock()

	name := c.Name
	if name == "" {
		name = "cache"
	}

	c.configure(settings{
		name:      name,
		namespace: c.Namespace,
		interval:  c.RetryInterval,
		logger:    c.Logger,
		listeners: c.InitialLifecycleEventListeners,
	}, &clientConnector{c: c})

	return c.mgr.Start()
}

// SetAddr moves the client to another server. The connection is restarted
// when the address changes.
func (c *Client) SetAddr(addr string) error {
	if err := validation.Validate(addr, validation.Required, is.DialString); err != nil {
		return errors.Join(tether.ErrValidation, err)
	}

	c.mu.Lock()
	changed := c.addr != addr
	c.addr = addr
	c.mu.Unlock()

	if changed {
		c.log().Log(kgo.LogLevelInfo, "address updated", "addr", addr)
		c.mgr.Restart()
	}
	return nil
}

func (c *Client) currentAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// clientConnector adapts a Client to tether.Connector and tether.Server.
type clientConnector struct {
	c *Client
}

func (cc *clientConnector) Connect(ctx context.Context) (*conn, error) {
	c := cc.c
	addr := c.currentAddr()

	rc := redis.NewClient(redisOptions(c.Options, addr, c.DB, c.Username, c.Password))
	if err := c.probe(ctx, rc); err != nil {
		_ = rc.Close()
		return nil, tether.Connectivity(fmt.Errorf("liveness probe of %s failed: %w", addr, err))
	}

	return &conn{primary: rc, replica: rc}, nil
}

func (cc *clientConnector) Close(_ context.Context, h *conn) error {
	return h.close()
}

func (cc *clientConnector) Serve(ctx context.Context, h *conn) error {
	return cc.c.serve(ctx, h)
}

// redisOptions copies base and applies the connection settings.
func redisOptions(base *redis.Options, addr string, db int, username, password string) *redis.Options {
	var o redis.Options
	if base != nil {
		o = *base
	}

	o.Addr = addr
	o.DB = db
	if username != "" {
		o.Username = username
	}
	if password != "" {
		o.Password = password
	}
	return &o
}
