// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// Consumer consumes records from Kafka and hands each one to the Handler
// registered for its topic. The session is kept alive in the background and
// replaced when it is lost.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type Consumer struct {
	Connection

	// Group is the consumer group to join.
	// Optional. Without a group all partitions are consumed directly.
	Group string

	// StartFromEarliest consumes from the oldest available offset. By default
	// a new session starts at the end of every assigned partition, so only
	// records produced after connecting are consumed.
	StartFromEarliest bool

	// Dispatch selects sync or async handler dispatch.
	// Default: DispatchSync.
	Dispatch DispatchMode

	// DrainTimeout bounds the wait for asynchronous handlers when a session
	// ends. Zero or negative values mean no timeout.
	DrainTimeout time.Duration

	// InitialDispatchEventListeners are registered when Start() is first called.
	// Optional.
	InitialDispatchEventListeners []func(*DispatchEvent)

	core

	callbacks                    callbacks
	registerInitialListenersOnce sync.Once
}

// AddDispatchEventListener adds a listener for handled records.
// The returned function removes the listener.
func (c *Consumer) AddDispatchEventListener(fn func(*DispatchEvent)) func() {
	return c.callbacks.listeners.Add(fn)
}

// RegisterCallbacks registers record handlers. A nil handler or one with an
// invalid topic is rejected. For each topic the last handler registered wins.
//
// Accepted topics are added to the desired topics and are created on the
// next connect. Registering while connected restarts the session so the new
// topics are subscribed.
func (c *Consumer) RegisterCallbacks(hs ...Handler) (accepted, rejected []Handler) {
	accepted, rejected = c.callbacks.register(hs...)
	log := tether.LoggerOrNop(c.Connection.Logger)

	for _, h := range rejected {
		if h == nil {
			log.Log(kgo.LogLevelError, "rejected nil handler")
			continue
		}
		log.Log(kgo.LogLevelError, "rejected handler", "topic", h.Topic())
	}

	if len(accepted) == 0 {
		return accepted, rejected
	}

	names := make([]string, 0, len(accepted))
	for _, h := range accepted {
		names = append(names, h.Topic())
	}
	log.Log(kgo.LogLevelInfo, "registered handlers", "topics", names)

	c.topics.want(names...)
	c.topicsNeedCreate()

	if c.mgr.Connected() {
		c.mgr.Restart()
	}

	return accepted, rejected
}

// Start validates the configuration and starts connecting in the background.
// Use WaitConnect to wait for the first session.
//
// Calling Start again while running does nothing.
func (c *Consumer) Start() error {
	if err := c.validate(); err != nil {
		return err
	}

	c.registerInitialListenersOnce.Do(func() {
		for _, listener := range c.InitialDispatchEventListeners {
			c.callbacks.listeners.Add(listener)
		}
	})

	c.configure(&c.Connection, "consumer", &consumerConnector{c: c})

	c.callbacks.mu.Lock()
	c.callbacks.mode = c.Dispatch
	c.callbacks.logger = c.logger
	c.callbacks.mu.Unlock()

	return c.mgr.Start()
}

func (c *Consumer) validate() error {
	return errors.Join(
		c.Connection.validate(),
		validateDispatchMode(c.Dispatch),
	)
}

// toKgoOpts converts the Consumer's configuration to franz-go client options.
func (c *Consumer) toKgoOpts(topics []string) []kgo.Opt {
	opts := c.baseOpts()

	if len(topics) > 0 {
		opts = append(opts, kgo.ConsumeTopics(topics...))
	}

	if c.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(c.Group))
	}

	if c.StartFromEarliest {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
		if c.Group != "" {
			// Committed group offsets win over the reset offset.
			opts = append(opts, kgo.AdjustFetchOffsetsFn(c.skipCommitted))
		}
	}

	return append(opts, c.Opts...)
}

// skipCommitted replaces the offsets fetched for the group, committed or
// not, with the partition end.
func (c *Consumer) skipCommitted(_ context.Context, fetched map[string]map[int32]kgo.Offset) (map[string]map[int32]kgo.Offset, error) {
	end := kgo.NewOffset().AtEnd()
	for topic, partitions := range fetched {
		for p := range partitions {
			partitions[p] = end
		}
		c.log().Log(kgo.LogLevelDebug, "starting from end", "topic", topic, "partitions", len(partitions))
	}
	return fetched, nil
}

// serve polls records and dispatches them until ctx is done or the session
// is lost.
func (c *Consumer) serve(ctx context.Context, s *session) error {
	if len(c.callbacks.topics()) == 0 {
		<-ctx.Done()
		return nil
	}

	for {
		fetches := s.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return tether.Connectivity(kgo.ErrClientClosed)
		}

		var lost error
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			c.logger.Log(kgo.LogLevelWarn, "fetch error",
				"topic", topic, "partition", partition, "error", err.Error())
			if lost == nil && IsConnectivityError(err) {
				lost = err
			}
		})

		fetches.EachRecord(func(r *kgo.Record) {
			c.callbacks.dispatch(ctx, r)
		})

		if ctx.Err() != nil {
			return nil
		}
		if lost != nil {
			return tether.Connectivity(lost)
		}
	}
}

func (c *Consumer) closeSession(ctx context.Context, s *session) {
	s.client.Close()

	ctx, cancel := withCleanupTimeout(ctx, c.DrainTimeout)
	defer cancel()

	if err := c.callbacks.wait(ctx); err != nil {
		c.logger.Log(kgo.LogLevelWarn, "handlers still running after drain timeout", "error", err.Error())
	}
}

// consumerConnector adapts a Consumer to tether.Connector and tether.Server.
type consumerConnector struct {
	c *Consumer
}

func (cc *consumerConnector) Connect(ctx context.Context) (*session, error) {
	c := cc.c

	if gen, pending := c.pendingCreate(); pending {
		if _, _, err := c.topics.AutoCreateTopics(ctx, c.openAdmin); err != nil {
			return nil, err
		}
		c.createdThrough(gen)
	}

	return c.dial(ctx, c.toKgoOpts(c.callbacks.topics()))
}

func (cc *consumerConnector) Close(ctx context.Context, s *session) error {
	cc.c.closeSession(ctx, s)
	return nil
}

func (cc *consumerConnector) Serve(ctx context.Context, s *session) error {
	return cc.c.serve(ctx, s)
}
