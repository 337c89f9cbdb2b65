// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// DefaultAsideTTL is the expiry set on a hit when Aside is given none.
const DefaultAsideTTL = 3000 * time.Millisecond

// Loader computes a value that may also be cached.
type Loader func(ctx context.Context) ([]byte, error)

// Aside returns a decorator that consults the cache before calling a Loader.
//
// The key is read from the replica. On a hit its expiry is reset to ttl on
// the primary and the cached bytes are returned without calling the Loader.
// On a miss, or when the cache cannot be reached, the Loader is called. The
// result is not written back; use Store to populate the cache.
func (c *core) Aside(key string, ttl time.Duration) func(Loader) Loader {
	return func(fn Loader) Loader {
		return func(ctx context.Context) ([]byte, error) {
			if value, ok := c.lookup(ctx, key, ttl); ok {
				return value, nil
			}
			return fn(ctx)
		}
	}
}

// lookup reads key and refreshes its expiry on a hit. Errors count as a
// miss.
func (c *core) lookup(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	if ttl <= 0 {
		ttl = DefaultAsideTTL
	}

	var value []byte
	_, err := c.Use(Replica).Do(ctx, func(ctx context.Context, r redis.Cmdable) error {
		var err error
		value, err = r.Get(ctx, key).Bytes()
		return err
	})
	if err != nil || value == nil {
		if err != nil && !errors.Is(err, redis.Nil) {
			c.log().Log(kgo.LogLevelDebug, "cache read failed", "key", key, "error", err.Error())
		}
		return nil, false
	}

	_, err = c.Use(Primary).Do(ctx, func(ctx context.Context, r redis.Cmdable) error {
		return r.PExpire(ctx, key, ttl).Err()
	})
	if err != nil {
		c.log().Log(kgo.LogLevelDebug, "cache expiry refresh failed", "key", key, "error", err.Error())
	}

	return value, true
}

// Store writes value under key on the primary with the given expiry.
// A ttl of zero keeps the key until it is deleted.
func (c *core) Store(ctx context.Context, key string, value []byte, ttl time.Duration) (tether.Outcome, error) {
	return c.Use(Primary).Do(ctx, func(ctx context.Context, r redis.Cmdable) error {
		return r.Set(ctx, key, value, ttl).Err()
	})
}

// Middleware serves GET and HEAD requests from the cache when their key is
// present, and passes everything else to the next handler. A nil key
// function uses the namespaced HTTPCacheKey of the request path and query.
//
// Like Aside, responses are never written to the cache by the middleware.
func (c *core) Middleware(key func(*http.Request) string, ttl time.Duration) func(http.Handler) http.Handler {
	if key == nil {
		key = func(r *http.Request) string {
			return c.namespace.HTTPCacheKey(r.URL.Path, r.URL.RawQuery)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			body, ok := c.lookup(r.Context(), key(r), ttl)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", http.DetectContentType(body))
			w.Header().Set("Content-Length", fmt.Sprint(len(body)))
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = w.Write(body)
			}
		})
	}
}
