// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

//go:build integration

package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether/broker"
	"github.com/xmidt-org/wrp-go/v5"
)

const (
	connectWait = 30 * time.Second
	consumeWait = 10 * time.Second
)

// setupKafka starts a single Kafka broker and returns its address. The
// container is terminated when the test completes.
func setupKafka(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// The confluent-local image runs in KRaft mode without zookeeper.
	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("tether-test"),
	)
	require.NoError(t, err, "Failed to start Kafka container")

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	return brokers[0]
}

func connection(addr string) broker.Connection {
	return broker.Connection{
		Brokers:       []string{addr},
		RetryInterval: 500 * time.Millisecond,
	}
}

// startProducer starts a Producer and waits for its first session.
func startProducer(t *testing.T, p *broker.Producer) {
	t.Helper()

	require.NoError(t, p.Start())
	t.Cleanup(func() {
		p.Stop()
		_ = p.WaitStop(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectWait)
	defer cancel()
	require.NoError(t, p.WaitConnect(ctx))
}

// startConsumer starts a Consumer and waits for its first session.
func startConsumer(t *testing.T, c *broker.Consumer) {
	t.Helper()

	require.NoError(t, c.Start())
	t.Cleanup(func() {
		c.Stop()
		_ = c.WaitStop(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectWait)
	defer cancel()
	require.NoError(t, c.WaitConnect(ctx))
}

// recordSink is a Handler that forwards records to a channel.
func recordSink(topic string, n int) (broker.Handler, <-chan *kgo.Record) {
	ch := make(chan *kgo.Record, n)
	return broker.TopicHandler(topic, func(_ context.Context, r *kgo.Record) error {
		ch <- r
		return nil
	}), ch
}

// receive reads n records from ch or fails the test.
func receive(t *testing.T, ch <-chan *kgo.Record, n int) []*kgo.Record {
	t.Helper()

	var got []*kgo.Record
	deadline := time.After(consumeWait)
	for len(got) < n {
		select {
		case r := <-ch:
			got = append(got, r)
		case <-deadline:
			t.Fatalf("received %d of %d records", len(got), n)
		}
	}
	return got
}

func decodeWRP(t *testing.T, r *kgo.Record) *wrp.Message {
	t.Helper()

	var msg wrp.Message
	require.NoError(t, wrp.NewDecoderBytes(r.Value, wrp.Msgpack).Decode(&msg))
	return &msg
}
