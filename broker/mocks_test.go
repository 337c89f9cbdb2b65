// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// mockKafkaClient is a mock implementation of kafkaClient for testing.
type mockKafkaClient struct {
	mock.Mock
}

func (m *mockKafkaClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKafkaClient) Produce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) TryProduce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	args := m.Called(ctx, rs)
	return args.Get(0).(kgo.ProduceResults)
}

func (m *mockKafkaClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKafkaClient) PollFetches(ctx context.Context) kgo.Fetches {
	args := m.Called(ctx)
	return args.Get(0).(kgo.Fetches)
}

func (m *mockKafkaClient) Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(kmsg.Response)
	return resp, args.Error(1)
}

func (m *mockKafkaClient) Close() {
	m.Called()
}

func (m *mockKafkaClient) BufferedProduceRecords() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockKafkaClient) BufferedProduceBytes() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

// fakeCluster answers admin requests like a small cluster would.
type fakeCluster struct {
	mu         sync.Mutex
	controller int32
	topics     map[string]bool
	requests   []kmsg.Request

	// failCreate maps topic names to error codes returned on create.
	failCreate map[string]int16
}

func newFakeCluster(topics ...string) *fakeCluster {
	c := &fakeCluster{
		controller: 1,
		topics:     make(map[string]bool),
		failCreate: make(map[string]int16),
	}
	for _, t := range topics {
		c.topics[t] = true
	}
	return c
}

func (c *fakeCluster) Request(_ context.Context, req kmsg.Request) (kmsg.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	switch r := req.(type) {
	case *kmsg.MetadataRequest:
		resp := kmsg.NewPtrMetadataResponse()
		resp.ControllerID = c.controller
		for name := range c.topics {
			t := kmsg.NewMetadataResponseTopic()
			t.Topic = kmsg.StringPtr(name)
			resp.Topics = append(resp.Topics, t)
		}
		return resp, nil

	case *kmsg.CreateTopicsRequest:
		resp := kmsg.NewPtrCreateTopicsResponse()
		for _, rt := range r.Topics {
			t := kmsg.NewCreateTopicsResponseTopic()
			t.Topic = rt.Topic
			switch {
			case c.failCreate[rt.Topic] != 0:
				t.ErrorCode = c.failCreate[rt.Topic]
				t.ErrorMessage = kmsg.StringPtr("rejected")
			case c.topics[rt.Topic]:
				t.ErrorCode = 36
				t.ErrorMessage = kmsg.StringPtr("Topic '" + rt.Topic + "' already exists.")
			default:
				c.topics[rt.Topic] = true
			}
			resp.Topics = append(resp.Topics, t)
		}
		return resp, nil

	case *kmsg.DeleteTopicsRequest:
		resp := kmsg.NewPtrDeleteTopicsResponse()
		for _, name := range r.TopicNames {
			t := kmsg.NewDeleteTopicsResponseTopic()
			t.Topic = kmsg.StringPtr(name)
			if !c.topics[name] {
				t.ErrorCode = 3
			}
			delete(c.topics, name)
			resp.Topics = append(resp.Topics, t)
		}
		return resp, nil
	}

	return nil, kgo.ErrClientClosed
}

func (c *fakeCluster) count(key int16) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.requests {
		if r.Key() == key {
			n++
		}
	}
	return n
}

// createRequest returns the last create request sent for topic.
func (c *fakeCluster) createRequest(topic string) (kmsg.CreateTopicsRequestTopic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found kmsg.CreateTopicsRequestTopic
	ok := false
	for _, r := range c.requests {
		create, isCreate := r.(*kmsg.CreateTopicsRequest)
		if !isCreate {
			continue
		}
		for _, rt := range create.Topics {
			if rt.Topic == topic {
				found, ok = rt, true
			}
		}
	}
	return found, ok
}

func (c *fakeCluster) has(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

// fakeClient is a kafkaClient backed by a fakeCluster. Produced records are
// captured; fetches are fed through a channel.
type fakeClient struct {
	cluster *fakeCluster

	mu       sync.Mutex
	produced []*kgo.Record
	closed   bool

	// produceErr, if set, is returned for every produced record.
	produceErr error
	pingErr    error

	fetches chan kgo.Fetches
}

func newFakeClient(cluster *fakeCluster) *fakeClient {
	return &fakeClient{
		cluster: cluster,
		fetches: make(chan kgo.Fetches, 16),
	}
}

func (f *fakeClient) Ping(context.Context) error { return f.pingErr }

func (f *fakeClient) record(r *kgo.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.produceErr != nil {
		return f.produceErr
	}
	f.produced = append(f.produced, r)
	return nil
}

func (f *fakeClient) TryProduce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	promise(r, f.record(r))
}

func (f *fakeClient) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	promise(r, f.record(r))
}

func (f *fakeClient) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.record(r)})
	}
	return results
}

func (f *fakeClient) Flush(context.Context) error { return nil }

func (f *fakeClient) PollFetches(ctx context.Context) kgo.Fetches {
	select {
	case fs := <-f.fetches:
		return fs
	case <-ctx.Done():
		return errFetches(ctx.Err())
	}
}

func (f *fakeClient) Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error) {
	return f.cluster.Request(ctx, req)
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) records() []*kgo.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*kgo.Record(nil), f.produced...)
}

func (f *fakeClient) BufferedProduceRecords() int64 { return 0 }
func (f *fakeClient) BufferedProduceBytes() int64   { return 0 }

// fakeFactory hands out fakeClients and remembers them.
type fakeFactory struct {
	cluster *fakeCluster

	mu      sync.Mutex
	clients []*fakeClient

	// setup, if set, is applied to each new client.
	setup func(n int, c *fakeClient)
}

func (f *fakeFactory) new(...kgo.Opt) (kafkaClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := newFakeClient(f.cluster)
	if f.setup != nil {
		f.setup(len(f.clients), c)
	}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}

func records(topic string, partition int32, values ...string) kgo.Fetches {
	rs := make([]*kgo.Record, 0, len(values))
	for i, v := range values {
		rs = append(rs, &kgo.Record{
			Topic:     topic,
			Partition: partition,
			Offset:    int64(i),
			Value:     []byte(v),
		})
	}
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic: topic,
			Partitions: []kgo.FetchPartition{{
				Partition: partition,
				Records:   rs,
			}},
		}},
	}}
}

func errFetches(err error) kgo.Fetches {
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Partitions: []kgo.FetchPartition{{
				Partition: -1,
				Err:       err,
			}},
		}},
	}}
}

const (
	testInterval = 20 * time.Millisecond
	testWait     = 2 * time.Second
	testTick     = 5 * time.Millisecond
)
