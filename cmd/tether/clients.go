// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
	"github.com/xmidt-org/tether/broker"
	"github.com/xmidt-org/tether/cache"
	"github.com/xmidt-org/tether/cmd/tether/internal/config"
	"github.com/xmidt-org/tether/cmd/tether/internal/logging"
	"github.com/xmidt-org/tether/cmd/tether/internal/metrics"
)

// cacheClient is the part of cache.Client and cache.SentinelClient the
// command uses.
type cacheClient interface {
	Start() error
	Stop()
	WaitConnect(ctx context.Context) error
	WaitStop(ctx context.Context) error
	State() tether.State
	Connected() bool
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) (tether.Outcome, error)
	Middleware(key func(*http.Request) string, ttl time.Duration) func(http.Handler) http.Handler
	Clean(ctx context.Context, route string) (int64, error)
	CleanPattern(ctx context.Context, pattern string) (int64, error)
}

func connection(name string, k config.Kafka) broker.Connection {
	return broker.Connection{
		Name:           name,
		Brokers:        k.Brokers,
		User:           k.User,
		Password:       k.Password,
		ClientID:       k.ClientID,
		RetryInterval:  k.RetryInterval.Std(),
		RequestTimeout: k.RequestTimeout.Std(),
		TopicDefaults: broker.TopicSpec{
			Partitions:        k.Partitions,
			ReplicationFactor: k.ReplicationFactor,
		},
		Logger:                         logging.For(name),
		InitialLifecycleEventListeners: []func(*tether.LifecycleEvent){metrics.ObserveLifecycle},
	}
}

func newProducer(k config.Kafka) *broker.Producer {
	return &broker.Producer{
		Connection:                   connection("producer", k),
		Acks:                         broker.Acks(k.Acks),
		Compression:                  broker.Compression(k.Compression),
		WRPHeaders:                   k.WRPHeaders,
		InitialProduceEventListeners: []func(*broker.ProduceEvent){metrics.ObserveProduce},
	}
}

// newConsumer returns a consumer of the configured topics that logs every
// record it receives.
func newConsumer(k config.Kafka) *broker.Consumer {
	c := &broker.Consumer{
		Connection:                    connection("consumer", k),
		Group:                         k.Group,
		StartFromEarliest:             k.StartFromEarliest,
		Dispatch:                      broker.DispatchMode(k.Dispatch),
		InitialDispatchEventListeners: []func(*broker.DispatchEvent){metrics.ObserveDispatch},
	}

	logger := logging.WithComponent("records")
	for _, topic := range k.Topics {
		c.RegisterCallbacks(broker.TopicHandler(topic, func(_ context.Context, r *kgo.Record) error {
			logger.Info().
				Str("topic", r.Topic).
				Int32("partition", r.Partition).
				Int64("offset", r.Offset).
				Bytes("key", r.Key).
				Int("size", len(r.Value)).
				Msg("record received")
			return nil
		}))
	}

	return c
}

func newCache(r config.Redis) cacheClient {
	listeners := []func(*tether.LifecycleEvent){metrics.ObserveLifecycle}

	if len(r.Sentinels) > 0 {
		return &cache.SentinelClient{
			Name:                           "cache",
			Sentinels:                      r.Sentinels,
			ServiceName:                    r.ServiceName,
			ClientName:                     r.ClientName,
			DB:                             r.DB,
			Username:                       r.Username,
			Password:                       r.Password,
			Namespace:                      cache.Namespace(r.Namespace),
			RetryInterval:                  r.RetryInterval.Std(),
			Logger:                         logging.For("cache"),
			InitialLifecycleEventListeners: listeners,
		}
	}

	return &cache.Client{
		Name:                           "cache",
		Addr:                           r.Addr,
		DB:                             r.DB,
		Username:                       r.Username,
		Password:                       r.Password,
		Namespace:                      cache.Namespace(r.Namespace),
		RetryInterval:                  r.RetryInterval.Std(),
		Logger:                         logging.For("cache"),
		InitialLifecycleEventListeners: listeners,
	}
}

// lifecycle is a started client that can be stopped.
type lifecycle interface {
	Stop()
	WaitStop(ctx context.Context) error
}

// stopAll stops every client and waits for them up to timeout.
func stopAll(timeout time.Duration, clients ...lifecycle) {
	for _, c := range clients {
		c.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, c := range clients {
		if err := c.WaitStop(ctx); err != nil {
			logging.Logger.Warn().Err(err).Msg("client did not stop in time")
		}
	}
}
