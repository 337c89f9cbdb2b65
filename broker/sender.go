// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
	"github.com/xmidt-org/wrp-go/v5"
)

// Sender produces records to one topic within a WithSender call.
type Sender struct {
	producer *Producer
	client   kafkaClient
	topic    string
	closed   atomic.Bool
}

// Topic returns the topic records are produced to.
func (s *Sender) Topic() string {
	return s.topic
}

func (s *Sender) check() error {
	if s.closed.Load() {
		return tether.Misuse(ErrSenderClosed)
	}
	return nil
}

// Produce produces a record and waits for the broker acknowledgment.
func (s *Sender) Produce(ctx context.Context, key, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}

	return s.produceSync(ctx, &kgo.Record{
		Topic: s.topic,
		Key:   key,
		Value: value,
	})
}

// ProduceAsync buffers a record and returns without waiting for the broker.
// promise, if not nil, is called with the result.
func (s *Sender) ProduceAsync(ctx context.Context, key, value []byte, promise func(*kgo.Record, error)) error {
	if err := s.check(); err != nil {
		return err
	}

	began := time.Now()
	r := &kgo.Record{
		Topic: s.topic,
		Key:   key,
		Value: value,
	}
	s.client.Produce(ctx, r, func(r *kgo.Record, err error) {
		s.producer.dispatchEvent(&ProduceEvent{Topic: r.Topic}, began, err)
		if promise != nil {
			promise(r, err)
		}
	})
	return nil
}

// ProduceWRP encodes msg as msgpack and produces it keyed by the device id
// of its source, so that messages from one device stay ordered. The
// Producer's WRPHeaders are added to the record.
//
// The quality of service decides how long to wait:
//   - 0-24: fire-and-forget, dropped if the buffer is full.
//   - 25-74: buffered, the result is only reported to listeners.
//   - 75-99: waits for the broker acknowledgment.
func (s *Sender) ProduceWRP(ctx context.Context, msg *wrp.Message) error {
	if err := s.check(); err != nil {
		return err
	}
	if msg == nil {
		return tether.Misuse(fmt.Errorf("nil message"))
	}

	encoded, err := msg.EncodeMsgpack(nil)
	if err != nil {
		return tether.Misuse(errors.Join(ErrEncoding, fmt.Errorf("msgpack encoding failed"), err))
	}

	deviceID, err := wrp.ParseDeviceID(msg.Source)
	if err != nil {
		return tether.Misuse(errors.Join(tether.ErrValidation,
			fmt.Errorf("invalid device ID in WRP Source `%s`", msg.Source), err))
	}

	r := &kgo.Record{
		Topic:   s.topic,
		Key:     deviceID.Bytes(),
		Value:   encoded,
		Headers: wrpRecordHeaders(s.producer.WRPHeaders, msg),
	}

	began := time.Now()
	report := func(r *kgo.Record, err error) {
		s.producer.dispatchEvent(&ProduceEvent{Topic: r.Topic}, began, err)
	}

	switch qos := msg.QualityOfService; {
	case qos <= 24:
		s.client.TryProduce(ctx, r, report)
		return nil
	case qos <= 74:
		s.client.Produce(ctx, r, report)
		return nil
	}

	return s.produceSync(ctx, r)
}

func (s *Sender) produceSync(ctx context.Context, r *kgo.Record) error {
	began := time.Now()

	err := s.client.ProduceSync(ctx, r).FirstErr()
	if err != nil {
		err = fmt.Errorf("broker rejected record for '%s': %w", s.topic, err)
	}

	s.producer.dispatchEvent(&ProduceEvent{Topic: s.topic}, began, err)
	return err
}
