// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// cleanScript deletes every key matching ARGV[1] and returns how many were
// deleted. It runs on the server, so no key matching the pattern can be
// added between the scan and the delete.
const cleanScript = `
local cursor = "0"
local deleted = 0
repeat
	local result = redis.call("SCAN", cursor, "MATCH", ARGV[1], "COUNT", 100)
	cursor = result[1]
	for _, key in ipairs(result[2]) do
		deleted = deleted + redis.call("DEL", key)
	end
until cursor == "0"
return deleted
`

// Clean deletes every cached response of route and returns the number of
// keys deleted.
func (c *core) Clean(ctx context.Context, route string) (int64, error) {
	return c.CleanPattern(ctx, c.namespace.RoutePattern(route))
}

// CleanPattern deletes every key matching the SCAN pattern in a single
// server-side script and returns the number of keys deleted.
func (c *core) CleanPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	outcome, err := c.Use(Primary).Do(ctx, func(ctx context.Context, r redis.Cmdable) error {
		var err error
		deleted, err = r.Eval(ctx, cleanScript, nil, pattern).Int64()
		return err
	})

	switch outcome {
	case tether.Completed:
		return deleted, nil
	case tether.Recovered:
		return 0, errors.Join(tether.ErrNotConnected, fmt.Errorf("clean of %q interrupted by connection loss", pattern))
	}

	c.log().Log(kgo.LogLevelError, "cache clean failed", "pattern", pattern, "error", err.Error())
	return 0, err
}
