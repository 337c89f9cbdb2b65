// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/xmidt-org/tether"
)

// Connection holds the settings shared by Producer and Consumer.
//
// All fields must be set before Start and must not change afterwards. Use
// UpdateBrokers to move to other brokers at runtime.
type Connection struct {
	// Name identifies the client in logs and lifecycle events.
	// Default: "producer" or "consumer".
	Name string

	// Brokers is the list of Kafka broker addresses.
	// Required. Each address must be in "host:port" format.
	Brokers []string

	// SASL configures SASL authentication.
	// Optional. Takes precedence over User and Password.
	SASL sasl.Mechanism

	// User and Password enable SASL/PLAIN authentication when SASL is nil.
	User     string
	Password string

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// ClientID is sent to the brokers.
	// Default: the Name followed by a random UUID.
	ClientID string

	// RetryInterval is the pause between failed connect attempts.
	// Default: 10s.
	RetryInterval time.Duration

	// RequestTimeout sets the maximum time to wait for broker responses.
	// Zero or negative values mean no timeout.
	RequestTimeout time.Duration

	// TopicDefaults supplies partition count, replication factor and
	// configs for topics created automatically.
	TopicDefaults TopicSpec

	// CreateTimeout bounds automatic topic creation.
	// Default: 3s.
	CreateTimeout time.Duration

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// Opts are passed to franz-go after the options derived from the fields
	// above, so they take precedence.
	Opts []kgo.Opt

	// InitialLifecycleEventListeners are registered when Start() is first called.
	// Optional.
	InitialLifecycleEventListeners []func(*tether.LifecycleEvent)
}

func (c *Connection) validate() error {
	if len(c.Brokers) == 0 {
		return errors.Join(tether.ErrValidation, fmt.Errorf("brokers list is required"))
	}

	for i, broker := range c.Brokers {
		if broker == "" {
			return errors.Join(tether.ErrValidation, fmt.Errorf("broker %d is empty", i))
		}
	}

	return nil
}

// mechanism returns the configured SASL mechanism, if any.
func (c *Connection) mechanism() sasl.Mechanism {
	if c.SASL != nil {
		return c.SASL
	}
	if c.User != "" {
		return plain.Auth{User: c.User, Pass: c.Password}.AsMechanism()
	}
	return nil
}

// core is the connection machinery shared by Producer and Consumer.
type core struct {
	conn *Connection

	// clientFactory is for internal use only (testing hook).
	clientFactory clientFactory

	configureOnce sync.Once
	logger        kgo.Logger
	clientID      string

	topics Topics
	mgr    tether.Manager[*session]

	// mu protects the fields below.
	mu    sync.Mutex
	seeds []string
	// Topics must be (re)created on the next connect while wantGen differs
	// from doneGen.
	wantGen uint64
	doneGen uint64
}

// configure applies the Connection settings the first time the client is
// started.
func (c *core) configure(conn *Connection, name string, connector tether.Connector[*session]) {
	c.configureOnce.Do(func() {
		c.conn = conn
		if conn.Name != "" {
			name = conn.Name
		}

		c.logger = tether.LoggerOrNop(conn.Logger)
		if c.clientFactory == nil {
			c.clientFactory = defaultClientFactory
		}

		c.clientID = conn.ClientID
		if c.clientID == "" {
			c.clientID = name + "-" + uuid.NewString()
		}

		c.mu.Lock()
		if c.seeds == nil {
			c.seeds = slices.Clone(conn.Brokers)
		}
		c.mu.Unlock()

		c.topics.Defaults = conn.TopicDefaults
		c.topics.CreateTimeout = conn.CreateTimeout
		c.topics.Logger = c.logger

		c.mgr.Name = name
		c.mgr.RetryInterval = conn.RetryInterval
		c.mgr.Connector = connector
		c.mgr.IsConnectivityError = IsConnectivityError
		c.mgr.Logger = c.logger
		c.mgr.InitialLifecycleEventListeners = conn.InitialLifecycleEventListeners
	})
}

func (c *core) log() kgo.Logger {
	return tether.LoggerOrNop(c.logger)
}

func (c *core) currentSeeds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.seeds)
}

// topicsNeedCreate makes the next connect create the desired topics.
func (c *core) topicsNeedCreate() {
	c.mu.Lock()
	c.wantGen++
	c.mu.Unlock()
}

// pendingCreate returns the generation to pass to createdThrough, and
// whether topics need creating.
func (c *core) pendingCreate() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wantGen, c.wantGen != c.doneGen
}

func (c *core) createdThrough(gen uint64) {
	c.mu.Lock()
	if gen > c.doneGen {
		c.doneGen = gen
	}
	c.mu.Unlock()
}

// baseOpts returns the franz-go options common to producers and consumers,
// excluding Connection.Opts.
func (c *core) baseOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.currentSeeds()...),
		kgo.ClientID(c.clientID),
		kgo.WithLogger(c.logger),
	}

	if m := c.conn.mechanism(); m != nil {
		opts = append(opts, kgo.SASL(m))
	}

	if c.conn.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(c.conn.TLS))
	}

	if c.conn.RequestTimeout > 0 {
		opts = append(opts, kgo.RequestTimeoutOverhead(c.conn.RequestTimeout))
	}

	return opts
}

// openAdmin is an AdminOpener backed by a throwaway client.
func (c *core) openAdmin(context.Context) (AdminChannel, func(), error) {
	opts := append(c.baseOpts(), c.conn.Opts...)
	client, err := c.clientFactory(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Kafka admin client: %w", err)
	}
	return newAdmin(client), client.Close, nil
}

// dial creates a client with opts and checks that a broker answers.
func (c *core) dial(ctx context.Context, opts []kgo.Opt) (*session, error) {
	client, err := c.clientFactory(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, tether.Connectivity(fmt.Errorf("ping failed: %w", err))
	}

	return newSession(client), nil
}

// UpdateBrokers replaces the seed brokers.
//
// When the set changes the session is restarted against the new brokers.
// When it is not a subset of the previous set the client may be talking to
// a different cluster, so known topics are forgotten and the desired topics
// are created again on the next connect.
func (c *core) UpdateBrokers(brokers []string) error {
	conn := Connection{Brokers: brokers}
	if err := conn.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	old := c.seeds
	c.seeds = slices.Clone(brokers)
	changed := !sameSet(old, brokers)
	foreign := !subset(brokers, old)
	if foreign {
		c.wantGen++
	}
	c.mu.Unlock()

	if !changed {
		return nil
	}

	if foreign {
		c.topics.Reset()
	}

	c.log().Log(kgo.LogLevelInfo, "brokers updated", "brokers", brokers, "recreate_topics", foreign)
	c.mgr.Restart()
	return nil
}

func subset(a, b []string) bool {
	for _, s := range a {
		if !slices.Contains(b, s) {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	return subset(a, b) && subset(b, a)
}

// CreateTopics creates topics through the live session.
//
// Returns ErrNotConnected, after logging a warning, when no session is live.
func (c *core) CreateTopics(ctx context.Context, specs ...TopicSpec) (success []string, failed map[string]TopicError, err error) {
	outcome, err := c.mgr.Do(ctx, func(ctx context.Context, s *session) error {
		var e error
		success, failed, e = c.topics.CreateTopics(ctx, s.admin, specs...)
		return e
	})
	return success, failed, c.adminResult(outcome, err, "create topics")
}

// DeleteTopics deletes topics through the live session.
//
// Returns ErrNotConnected, after logging a warning, when no session is live.
func (c *core) DeleteTopics(ctx context.Context, names ...string) (success []string, failed map[string]TopicError, err error) {
	outcome, err := c.mgr.Do(ctx, func(ctx context.Context, s *session) error {
		var e error
		success, failed, e = c.topics.DeleteTopics(ctx, s.admin, names...)
		return e
	})
	return success, failed, c.adminResult(outcome, err, "delete topics")
}

// Topics lists the topics in the cluster through the live session.
//
// Returns ErrNotConnected, after logging a warning, when no session is live.
func (c *core) Topics(ctx context.Context) ([]string, error) {
	var names []string
	outcome, err := c.mgr.Do(ctx, func(ctx context.Context, s *session) error {
		var e error
		names, e = c.topics.ListTopics(ctx, s.admin)
		return e
	})
	return names, c.adminResult(outcome, err, "list topics")
}

// TopicRegistry returns the desired, existing and created topic sets.
func (c *core) TopicRegistry() *Topics {
	return &c.topics
}

func (c *core) adminResult(outcome tether.Outcome, err error, op string) error {
	switch outcome {
	case tether.Unavailable:
		c.log().Log(kgo.LogLevelWarn, "not connected, ignoring admin request", "operation", op)
		return err
	case tether.Recovered:
		// The session was lost mid-request and is being replaced.
		return errors.Join(tether.ErrNotConnected, fmt.Errorf("%s interrupted by connection loss", op))
	}
	return err
}

// Stop asks the client to disconnect. It does not block; use WaitStop.
func (c *core) Stop() {
	c.mgr.Stop()
}

// Restart replaces the live session.
func (c *core) Restart() {
	c.mgr.Restart()
}

// WaitConnect blocks until a session is live. See tether.Manager.WaitConnect.
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

// Connected reports whether a session is live.
func (c *core) Connected() bool {
	return c.mgr.Connected()
}

// AddLifecycleEventListener adds a listener for connection lifecycle events.
// The returned function removes it.
func (c *core) AddLifecycleEventListener(fn func(*tether.LifecycleEvent)) func() {
	return c.mgr.AddLifecycleEventListener(fn)
}

// withCleanupTimeout applies d to ctx only if ctx has no deadline.
func withCleanupTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			return context.WithTimeout(ctx, d)
		}
	}
	return ctx, func() {}
}
