// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// AdminChannel issues administrative topic requests to a Kafka cluster.
type AdminChannel interface {
	// FindController returns the broker id of the cluster controller.
	FindController(ctx context.Context) (int32, error)

	// ListTopics returns the names of all topics in the cluster.
	ListTopics(ctx context.Context) ([]string, error)

	// CreateTopics asks the controller to create topics. The broker waits up
	// to timeout for the creation to complete.
	CreateTopics(ctx context.Context, controller int32, specs []TopicSpec, timeout time.Duration) ([]TopicResult, error)

	// DeleteTopics asks the controller to delete topics.
	DeleteTopics(ctx context.Context, controller int32, names []string, timeout time.Duration) ([]TopicResult, error)
}

// TopicResult is the per-topic answer to a create or delete request.
type TopicResult struct {
	Topic   string
	Code    int16
	Message string
}

// NewAdmin returns an AdminChannel that talks to the cluster through cl.
func NewAdmin(cl *kgo.Client) AdminChannel {
	return newAdmin(cl)
}

// brokerDialer is implemented by *kgo.Client; it allows pinning a request to
// a specific broker.
type brokerDialer interface {
	Broker(id int) *kgo.Broker
}

// kmsgAdmin implements AdminChannel with raw kmsg requests.
type kmsgAdmin struct {
	client kmsg.Requestor
}

func newAdmin(client kmsg.Requestor) *kmsgAdmin {
	return &kmsgAdmin{client: client}
}

// to returns the requestor for the controller broker, or the client itself
// when it cannot address individual brokers.
func (a *kmsgAdmin) to(controller int32) kmsg.Requestor {
	if d, ok := a.client.(brokerDialer); ok && controller >= 0 {
		return d.Broker(int(controller))
	}
	return a.client
}

func (a *kmsgAdmin) metadata(ctx context.Context) (*kmsg.MetadataResponse, error) {
	// No topics listed: the response describes every topic.
	req := kmsg.NewPtrMetadataRequest()
	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return nil, errors.Join(ErrTopicAdmin, fmt.Errorf("metadata request failed"), err)
	}
	return resp, nil
}

func (a *kmsgAdmin) FindController(ctx context.Context) (int32, error) {
	resp, err := a.metadata(ctx)
	if err != nil {
		return -1, err
	}
	if resp.ControllerID < 0 {
		return -1, errors.Join(ErrTopicAdmin, fmt.Errorf("cluster reported no controller"))
	}
	return resp.ControllerID, nil
}

func (a *kmsgAdmin) ListTopics(ctx context.Context) ([]string, error) {
	resp, err := a.metadata(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		if t.Topic == nil || t.ErrorCode != 0 {
			continue
		}
		names = append(names, *t.Topic)
	}
	return names, nil
}

func (a *kmsgAdmin) CreateTopics(ctx context.Context, controller int32, specs []TopicSpec, timeout time.Duration) ([]TopicResult, error) {
	req := kmsg.NewPtrCreateTopicsRequest()
	req.TimeoutMillis = int32(timeout.Milliseconds())

	for _, spec := range specs {
		t := kmsg.NewCreateTopicsRequestTopic()
		t.Topic = spec.Name
		t.NumPartitions = spec.Partitions
		t.ReplicationFactor = spec.ReplicationFactor

		if len(spec.ReplicaAssignment) > 0 {
			// An explicit assignment replaces the counts.
			t.NumPartitions = -1
			t.ReplicationFactor = -1
			for partition, replicas := range spec.ReplicaAssignment {
				ra := kmsg.NewCreateTopicsRequestTopicReplicaAssignment()
				ra.Partition = partition
				ra.Replicas = replicas
				t.ReplicaAssignment = append(t.ReplicaAssignment, ra)
			}
		}

		for name, value := range spec.Configs {
			c := kmsg.NewCreateTopicsRequestTopicConfig()
			c.Name = name
			c.Value = kmsg.StringPtr(value)
			t.Configs = append(t.Configs, c)
		}

		req.Topics = append(req.Topics, t)
	}

	resp, err := req.RequestWith(ctx, a.to(controller))
	if err != nil {
		return nil, errors.Join(ErrTopicAdmin, fmt.Errorf("create topics request failed"), err)
	}

	results := make([]TopicResult, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		results = append(results, TopicResult{
			Topic:   t.Topic,
			Code:    t.ErrorCode,
			Message: deref(t.ErrorMessage),
		})
	}
	return results, nil
}

func (a *kmsgAdmin) DeleteTopics(ctx context.Context, controller int32, names []string, timeout time.Duration) ([]TopicResult, error) {
	req := kmsg.NewPtrDeleteTopicsRequest()
	req.TimeoutMillis = int32(timeout.Milliseconds())

	// Older versions read TopicNames, v6+ reads Topics.
	req.TopicNames = names
	for _, name := range names {
		t := kmsg.NewDeleteTopicsRequestTopic()
		t.Topic = kmsg.StringPtr(name)
		req.Topics = append(req.Topics, t)
	}

	resp, err := req.RequestWith(ctx, a.to(controller))
	if err != nil {
		return nil, errors.Join(ErrTopicAdmin, fmt.Errorf("delete topics request failed"), err)
	}

	results := make([]TopicResult, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		results = append(results, TopicResult{
			Topic:   deref(t.Topic),
			Code:    t.ErrorCode,
			Message: deref(t.ErrorMessage),
		})
	}
	return results, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
