// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package broker provides Kafka producers and consumers whose sessions are
// kept alive by a tether.Manager.
//
// # Producer
//
//	p := &broker.Producer{
//	    Connection: broker.Connection{
//	        Brokers: []string{"localhost:9092"},
//	    },
//	    Acks: broker.AcksAll,
//	}
//	if err := p.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer func() {
//	    p.Stop()
//	    _ = p.WaitStop(context.Background())
//	}()
//
//	outcome, err := p.WithSender(ctx, "device-events", func(s *broker.Sender) error {
//	    return s.Produce(ctx, []byte("key"), []byte("value"))
//	})
//
// Errors that mean the session was lost are not returned from WithSender:
// the session is restarted and the outcome is tether.Recovered.
//
// # Consumer
//
//	c := &broker.Consumer{
//	    Connection: broker.Connection{Brokers: []string{"localhost:9092"}},
//	    Group:      "my-group",
//	}
//	c.RegisterCallbacks(broker.TopicHandler("device-events",
//	    func(ctx context.Context, r *kgo.Record) error {
//	        return process(r.Value)
//	    }))
//	if err := c.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// Registered topics are created before consuming starts. Unless
// StartFromEarliest is set, each session starts at the end of its
// partitions.
//
// # Topics
//
// Topics tracks desired, existing and created topics and issues
// create/delete requests to the cluster controller. A topic that already
// exists counts as created, and one that is already gone counts as deleted.
package broker
