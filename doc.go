// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package tether keeps connections to brokered services alive.
//
// # Overview
//
// A Manager owns one connection at a time to a remote service such as a
// Kafka cluster or a Redis server. Start launches a background loop that
// connects, retries at a fixed interval for as long as it takes, waits for
// the connection to be lost, closes it and connects again. Callers never see
// connect failures; they wait for readiness and borrow the live connection
// through Do.
//
// The broker and cache sub-packages build Kafka producer/consumer and Redis
// clients on top of Manager.
//
// # Quick Start
//
//	m := &tether.Manager[*redis.Client]{
//	    Name:          "cache",
//	    RetryInterval: 5 * time.Second,
//	    Connector:     myConnector,
//	}
//	if err := m.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer func() {
//	    m.Stop()
//	    _ = m.WaitStop(context.Background())
//	}()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
//	defer cancel()
//	if err := m.WaitConnect(ctx); err != nil {
//	    log.Printf("not connected yet: %v", err)
//	}
//
//	outcome, err := m.Do(ctx, func(ctx context.Context, c *redis.Client) error {
//	    return c.Set(ctx, "k", "v", 0).Err()
//	})
//
// # Lifecycle
//
// A Manager moves through Idle, Connecting, Connected, Reconnecting,
// Stopping and Stopped. Each successful connect starts a new epoch. The old
// handle is always closed before the next connect attempt, and WaitConnect
// never returns nil before the new handle is usable.
//
// Stop is non-blocking. WaitStop returns once the loop has exited and the
// last handle has been closed.
//
// # Errors
//
// Do sorts errors returned by the caller's block into connectivity errors,
// which restart the connection and are suppressed (Outcome Recovered),
// misuse errors, and everything else, which is returned unchanged.
//
// # Observability
//
// Lifecycle steps are published as LifecycleEvent values to listeners
// registered with AddLifecycleEventListener or InitialLifecycleEventListeners.
// Logging goes through franz-go's kgo.Logger interface.
package tether
