// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/eventor"
	"github.com/xmidt-org/tether"
)

// Handler processes the records of one topic.
type Handler interface {
	// Topic is the topic the handler consumes.
	Topic() string

	// Handle processes a record. Errors are logged and reported to dispatch
	// listeners; they never stop consumption.
	Handle(ctx context.Context, r *kgo.Record) error
}

type topicHandler struct {
	topic string
	fn    func(context.Context, *kgo.Record) error
}

func (h *topicHandler) Topic() string { return h.topic }

func (h *topicHandler) Handle(ctx context.Context, r *kgo.Record) error {
	return h.fn(ctx, r)
}

// TopicHandler returns a Handler for topic that calls fn. A nil fn yields a
// nil Handler.
func TopicHandler(topic string, fn func(context.Context, *kgo.Record) error) Handler {
	if fn == nil {
		return nil
	}
	return &topicHandler{topic: topic, fn: fn}
}

// DispatchMode selects how records are handed to handlers.
type DispatchMode string

const (
	// DispatchSync runs each handler to completion before the next record
	// is dispatched. Records of a partition are handled in offset order.
	DispatchSync DispatchMode = "sync"

	// DispatchAsync runs each handler in its own goroutine. Ordering is not
	// guaranteed; every record is still handled.
	DispatchAsync DispatchMode = "async"
)

func validateDispatchMode(mode DispatchMode) error {
	switch mode {
	case "", DispatchSync, DispatchAsync:
		return nil
	}
	return errors.Join(tether.ErrValidation,
		fmt.Errorf("dispatch mode '%s' is invalid: must be '%s', '%s' or empty", mode, DispatchSync, DispatchAsync))
}

// DispatchEvent describes the handling of one record.
type DispatchEvent struct {
	// Topic, Partition and Offset identify the record.
	Topic     string
	Partition int32
	Offset    int64

	// Error is the handler error, ErrUnregisteredTopic or ErrHandlerPanic.
	Error error

	// ErrorType is the error classification (empty for success).
	ErrorType string

	// Duration is the time the handler took.
	Duration time.Duration
}

// callbacks maps topics to handlers and dispatches records to them.
type callbacks struct {
	mode   DispatchMode
	logger kgo.Logger

	listeners eventor.Eventor[func(*DispatchEvent)]

	mu       sync.RWMutex
	handlers map[string]Handler

	inflight sync.WaitGroup
}

// register stores hs. The last handler registered for a topic wins.
func (c *callbacks) register(hs ...Handler) (accepted, rejected []Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers == nil {
		c.handlers = make(map[string]Handler)
	}

	for _, h := range hs {
		if h == nil {
			rejected = append(rejected, h)
			continue
		}
		if err := ValidateTopicName(h.Topic()); err != nil {
			rejected = append(rejected, h)
			continue
		}
		c.handlers[h.Topic()] = h
		accepted = append(accepted, h)
	}

	return accepted, rejected
}

// lookup returns the handler for topic with the current mode and logger.
func (c *callbacks) lookup(topic string) (Handler, DispatchMode, kgo.Logger) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[topic], c.mode, tether.LoggerOrNop(c.logger)
}

// topics returns the registered topics, sorted.
func (c *callbacks) topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.handlers))
}

// dispatch hands r to its handler according to the dispatch mode.
func (c *callbacks) dispatch(ctx context.Context, r *kgo.Record) {
	h, mode, logger := c.lookup(r.Topic)
	if h == nil {
		err := errors.Join(ErrUnregisteredTopic, fmt.Errorf("topic '%s'", r.Topic))
		logger.Log(kgo.LogLevelError, "record for unregistered topic",
			"topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
		c.dispatchEvent(r, time.Now(), err)
		return
	}

	if mode == DispatchAsync {
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.invoke(ctx, h, r, logger)
		}()
		return
	}

	c.invoke(ctx, h, r, logger)
}

func (c *callbacks) invoke(ctx context.Context, h Handler, r *kgo.Record, logger kgo.Logger) {
	began := time.Now()
	err := safeHandle(ctx, h, r)
	if err != nil {
		logger.Log(kgo.LogLevelError, "handler failed",
			"topic", r.Topic, "partition", r.Partition, "offset", r.Offset,
			"value", string(r.Value), "error", err.Error())
	}
	c.dispatchEvent(r, began, err)
}

func safeHandle(ctx context.Context, h Handler, r *kgo.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Join(ErrHandlerPanic, fmt.Errorf("%v", p))
		}
	}()
	return h.Handle(ctx, r)
}

// wait blocks until every asynchronous handler has returned or ctx is done.
func (c *callbacks) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *callbacks) dispatchEvent(r *kgo.Record, since time.Time, err error) {
	event := DispatchEvent{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Duration:  time.Since(since),
	}
	if err != nil {
		event.Error = err
		event.ErrorType = tether.ErrorType(err)
	}

	c.listeners.Visit(func(listener func(*DispatchEvent)) {
		listener(&event)
	})
}
