// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/eventor"
	"github.com/xmidt-org/tether"
)

// ProduceEvent represents an event when a record has been either produced or
// failed to be produced.
type ProduceEvent struct {
	// Topic is the Kafka topic the record was produced to (or attempted to produce to).
	Topic string

	// Error is the error that occurred during producing (nil for successful produces).
	Error error

	// ErrorType is the error classification (empty for successful produces).
	ErrorType string

	// Duration is the time taken from the produce call to completion.
	Duration time.Duration
}

// Producer produces records to Kafka over a session that is kept alive in the
// background.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type Producer struct {
	Connection

	// Acks sets the broker acknowledgment requirement.
	// Default: franz-go default (all ISR replicas).
	Acks Acks

	// Compression sets the batch compression codec.
	// Default: no compression.
	Compression Compression

	// Linger is how long to wait for more records before sending a batch.
	// Zero disables lingering.
	Linger time.Duration

	// MaxBufferedRecords sets the maximum number of records to buffer.
	// Zero or negative values disable this limit.
	MaxBufferedRecords int

	// MaxBufferedBytes sets the maximum bytes of records to buffer.
	// Zero or negative values disable this limit.
	MaxBufferedBytes int

	// MaxRetries controls retry behavior on broker failures.
	// <=0: franz-go default. >0: Retry up to this many times.
	MaxRetries int

	// CleanupTimeout sets the maximum time to wait for buffered records
	// to flush when a session ends. Zero or negative values mean no timeout.
	CleanupTimeout time.Duration

	// AllowAutoTopicCreation lets brokers create missing topics on produce.
	// Topics are also created explicitly by WithSender either way.
	AllowAutoTopicCreation bool

	// WRPHeaders adds record headers to messages sent with ProduceWRP. Each
	// value is a literal or a "wrp." field reference such as "wrp.Source",
	// "wrp.PartnerIDs", "wrp.Header.X-Trace" or "wrp.Metadata.region".
	// Optional.
	WRPHeaders map[string][]string

	// InitialProduceEventListeners are registered when Start() is first called.
	// Optional.
	InitialProduceEventListeners []func(*ProduceEvent)

	core

	produceEventListeners        eventor.Eventor[func(*ProduceEvent)]
	registerInitialListenersOnce sync.Once
}

// AddProduceEventListener adds a listener for produce results.
// The returned function removes the listener.
//
// Listeners are called from internal goroutines and must be thread-safe.
func (p *Producer) AddProduceEventListener(fn func(*ProduceEvent)) func() {
	return p.produceEventListeners.Add(fn)
}

// Start validates the configuration and starts connecting in the background.
// Use WaitConnect to wait for the first session.
//
// Calling Start again while running does nothing.
func (p *Producer) Start() error {
	if err := p.validate(); err != nil {
		return err
	}

	p.registerInitialListenersOnce.Do(func() {
		for _, listener := range p.InitialProduceEventListeners {
			p.produceEventListeners.Add(listener)
		}
	})

	p.configure(&p.Connection, "producer", &producerConnector{p: p})
	return p.mgr.Start()
}

func (p *Producer) validate() error {
	return errors.Join(
		p.Connection.validate(),
		p.Acks.validate(),
		p.Compression.validate(),
		validateWRPHeaders(p.WRPHeaders),
	)
}

// WithSender runs fn with a Sender for topic on the live session.
//
// The topic is created first if it is not known to exist; creation failures
// are logged and fn still runs. If fn returns an error that means the session
// was lost, the session is restarted and the error is suppressed: the outcome
// is tether.Recovered with a nil error. Other errors are returned unchanged
// with tether.Failed. Without a live session fn is not called and the
// outcome is tether.Unavailable with tether.ErrNotConnected.
//
// The Sender must not be used after fn returns.
func (p *Producer) WithSender(ctx context.Context, topic string, fn func(*Sender) error) (tether.Outcome, error) {
	if fn == nil {
		return tether.Failed, tether.Misuse(fmt.Errorf("sender function is required"))
	}

	if err := ValidateTopicName(topic); err != nil {
		return tether.Failed, tether.Misuse(err)
	}

	return p.mgr.Do(ctx, func(ctx context.Context, s *session) error {
		p.ensureTopic(ctx, s, topic)

		sender := &Sender{
			producer: p,
			client:   s.client,
			topic:    topic,
		}
		defer sender.closed.Store(true)

		return fn(sender)
	})
}

// ensureTopic creates topic unless it is known to exist.
func (p *Producer) ensureTopic(ctx context.Context, s *session, topic string) {
	if p.topics.Exists(topic) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.topics.createTimeout())
	defer cancel()

	_, failed, err := p.topics.CreateTopics(ctx, s.admin, p.topics.Spec(topic))
	if err != nil {
		p.logger.Log(kgo.LogLevelWarn, "topic creation failed", "topic", topic, "error", err.Error())
		return
	}
	if terr, ok := failed[topic]; ok {
		p.logger.Log(kgo.LogLevelWarn, "topic not created", "topic", topic, "error", terr.Error())
	}
}

// dispatchEvent dispatches a ProduceEvent to all registered listeners.
func (p *Producer) dispatchEvent(event *ProduceEvent, since time.Time, err error) {
	if err != nil {
		event.Error = err
		event.ErrorType = tether.ErrorType(err)
	}
	event.Duration = time.Since(since)

	p.produceEventListeners.Visit(func(listener func(*ProduceEvent)) {
		listener(event)
	})
}

// toKgoOpts converts the Producer's configuration to franz-go client options.
func (p *Producer) toKgoOpts() []kgo.Opt {
	opts := p.baseOpts()

	if p.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	// Both buffer limits are independent.
	if p.MaxBufferedRecords > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(p.MaxBufferedRecords))
	}

	if p.MaxBufferedBytes > 0 {
		opts = append(opts, kgo.MaxBufferedBytes(p.MaxBufferedBytes))
	}

	if p.MaxRetries > 0 {
		opts = append(opts, kgo.RecordRetries(p.MaxRetries))
	}

	if p.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(p.Linger))
	}

	opts = append(opts, p.Acks.opts()...)
	opts = append(opts, p.Compression.opt())

	return append(opts, p.Opts...)
}

// closeSession flushes buffered records and closes the client.
func (p *Producer) closeSession(ctx context.Context, s *session) {
	ctx, cancel := withCleanupTimeout(ctx, p.CleanupTimeout)
	defer cancel()

	if err := s.client.Flush(ctx); err != nil {
		p.logger.Log(kgo.LogLevelWarn, "flush incomplete during shutdown", "error", err.Error())
	}

	s.client.Close()
}

// producerConnector adapts a Producer to tether.Connector.
type producerConnector struct {
	p *Producer
}

func (c *producerConnector) Connect(ctx context.Context) (*session, error) {
	return c.p.dial(ctx, c.p.toKgoOpts())
}

func (c *producerConnector) Close(ctx context.Context, s *session) error {
	c.p.closeSession(ctx, s)
	return nil
}
