// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

/*
Package cache keeps Redis connections alive and offers cache-aside reads on
top of them.

Client talks to a single server. SentinelClient asks sentinels for the
primary and a replica, and asks again on every reconnect so that a failover
is followed. Both probe the primary by refreshing a liveness key named after
the Namespace.

Commands run inside a scope:

	outcome, err := client.Use(cache.Replica).Do(ctx, func(ctx context.Context, r redis.Cmdable) error {
		return r.Get(ctx, key).Err()
	})

A lost connection is restarted and the error is suppressed (tether.Recovered).

Aside and Middleware serve cached values without running the wrapped
computation. They never write to the cache themselves; Store does. Clean
removes every cached response of a route in one server-side script.
*/
package cache
