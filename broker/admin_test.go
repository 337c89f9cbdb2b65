// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kmsg"
)

func TestAdminCreateRequest(t *testing.T) {
	t.Parallel()

	client := &mockKafkaClient{}
	var sent *kmsg.CreateTopicsRequest
	client.On("Request", mock.Anything, mock.AnythingOfType("*kmsg.CreateTopicsRequest")).
		Run(func(args mock.Arguments) {
			sent = args.Get(1).(*kmsg.CreateTopicsRequest)
		}).
		Return(kmsg.NewPtrCreateTopicsResponse(), nil)

	specs := []TopicSpec{
		{
			Name:              "counts",
			Partitions:        4,
			ReplicationFactor: 2,
			Configs:           map[string]string{"cleanup.policy": "compact"},
		}, {
			Name:              "pinned",
			Partitions:        9,
			ReplicationFactor: 9,
			ReplicaAssignment: map[int32][]int32{0: {1, 2}},
		},
	}

	_, err := newAdmin(client).CreateTopics(context.Background(), 1, specs, 3*time.Second)
	require.NoError(t, err)
	require.NotNil(t, sent)

	assert.Equal(t, int32(3000), sent.TimeoutMillis)
	require.Len(t, sent.Topics, 2)

	counts := sent.Topics[0]
	assert.Equal(t, "counts", counts.Topic)
	assert.Equal(t, int32(4), counts.NumPartitions)
	assert.Equal(t, int16(2), counts.ReplicationFactor)
	require.Len(t, counts.Configs, 1)
	assert.Equal(t, "cleanup.policy", counts.Configs[0].Name)
	assert.Equal(t, "compact", *counts.Configs[0].Value)

	pinned := sent.Topics[1]
	assert.Equal(t, int32(-1), pinned.NumPartitions)
	assert.Equal(t, int16(-1), pinned.ReplicationFactor)
	require.Len(t, pinned.ReplicaAssignment, 1)
	assert.Equal(t, []int32{1, 2}, pinned.ReplicaAssignment[0].Replicas)

	client.AssertExpectations(t)
}

func TestAdminDeleteRequest(t *testing.T) {
	t.Parallel()

	client := &mockKafkaClient{}
	var sent *kmsg.DeleteTopicsRequest
	client.On("Request", mock.Anything, mock.AnythingOfType("*kmsg.DeleteTopicsRequest")).
		Run(func(args mock.Arguments) {
			sent = args.Get(1).(*kmsg.DeleteTopicsRequest)
		}).
		Return(kmsg.NewPtrDeleteTopicsResponse(), nil)

	_, err := newAdmin(client).DeleteTopics(context.Background(), 1, []string{"a", "b"}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, sent)

	assert.Equal(t, []string{"a", "b"}, sent.TopicNames)
	require.Len(t, sent.Topics, 2)
	assert.Equal(t, "b", *sent.Topics[1].Topic)
}

func TestAdminRequestFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("broken pipe")
	client := &mockKafkaClient{}
	client.On("Request", mock.Anything, mock.Anything).Return(nil, boom)

	admin := newAdmin(client)

	_, err := admin.FindController(context.Background())
	assert.ErrorIs(t, err, ErrTopicAdmin)
	assert.ErrorIs(t, err, boom)

	_, err = admin.ListTopics(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = admin.CreateTopics(context.Background(), 1, []TopicSpec{{Name: "a"}}, time.Second)
	assert.ErrorIs(t, err, ErrTopicAdmin)

	_, err = admin.DeleteTopics(context.Background(), 1, []string{"a"}, time.Second)
	assert.ErrorIs(t, err, ErrTopicAdmin)
}

func TestAdminNoController(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	cluster.controller = -1

	_, err := newAdmin(cluster).FindController(context.Background())
	assert.ErrorIs(t, err, ErrTopicAdmin)
}
