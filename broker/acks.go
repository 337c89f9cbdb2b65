// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// Acks specifies the broker acknowledgment requirements.
type Acks string

const (
	// AcksAll requires all ISR replicas to acknowledge (strongest durability).
	AcksAll Acks = "all"

	// AcksLeader requires only the leader replica to acknowledge.
	AcksLeader Acks = "leader"

	// AcksNone requires no acknowledgment (fire-and-forget).
	AcksNone Acks = "none"
)

// opts returns the franz-go options for a. Anything weaker than AcksAll
// requires turning off idempotent writes.
func (a Acks) opts() []kgo.Opt {
	switch a {
	case AcksAll:
		return []kgo.Opt{kgo.RequiredAcks(kgo.AllISRAcks())}
	case AcksLeader:
		return []kgo.Opt{kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite()}
	case AcksNone:
		return []kgo.Opt{kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite()}
	}
	return nil
}

func (a Acks) validate() error {
	switch a {
	case "", AcksAll, AcksLeader, AcksNone:
		return nil
	}
	return errors.Join(tether.ErrValidation,
		fmt.Errorf("acks '%s' is invalid: must be '%s', '%s', '%s' or empty", a, AcksAll, AcksLeader, AcksNone))
}
