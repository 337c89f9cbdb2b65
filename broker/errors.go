// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

var (
	// ErrUnregisteredTopic indicates a record arrived for a topic with no
	// registered handler.
	ErrUnregisteredTopic = tether.NewError("unregistered_topic", "no handler registered for topic")

	// ErrTopicAdmin indicates an administrative topic RPC could not be
	// completed. Per-topic failures are reported as TopicError values instead.
	ErrTopicAdmin = tether.NewError("topic_admin_error", "topic administration failed")

	// ErrHandlerPanic indicates a consumer handler panicked.
	ErrHandlerPanic = tether.NewError("handler_panic", "handler panicked")

	// ErrEncoding indicates a message could not be encoded.
	ErrEncoding = tether.NewError("encoding_error", "encoding error")

	// ErrSenderClosed indicates a Sender was used after its scope ended.
	ErrSenderClosed = tether.NewError("sender_closed", "sender used outside its scope")
)

// IsConnectivityError reports whether err means the Kafka session is no
// longer usable and should be replaced.
//
// Caller cancellation and deadlines are never connectivity errors.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch {
	case errors.Is(err, tether.ErrConnectivity),
		errors.Is(err, kgo.ErrClientClosed),
		errors.Is(err, kgo.ErrRecordTimeout),
		errors.Is(err, kerr.RequestTimedOut),
		errors.Is(err, kerr.NetworkException),
		errors.Is(err, kerr.BrokerNotAvailable),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return true
	}

	var ne net.Error
	return errors.As(err, &ne)
}
