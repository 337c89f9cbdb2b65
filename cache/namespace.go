// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/md5" //nolint:gosec // key derivation only
	"encoding/hex"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace Namespace = "tether"

// Namespace prefixes every key written by one application so that several
// can share a Redis database. The namespace itself is the liveness key.
type Namespace string

func (n Namespace) orDefault() Namespace {
	if n == "" {
		return DefaultNamespace
	}
	return n
}

// Key returns k inside the namespace.
func (n Namespace) Key(k string) string {
	return string(n.orDefault()) + ":" + k
}

// HTTPCacheKey returns the key of a cached HTTP response for route. A
// non-empty query is folded into the key as its md5 digest.
func (n Namespace) HTTPCacheKey(route, query string) string {
	var digest string
	if query != "" {
		sum := md5.Sum([]byte(query)) //nolint:gosec
		digest = hex.EncodeToString(sum[:])
	}
	return n.Key("http_cache:" + route + ":" + digest)
}

// RoutePattern returns a SCAN pattern matching every cached response of
// route, whatever its query.
func (n Namespace) RoutePattern(route string) string {
	return n.Key("http_cache:" + route + ":*")
}
