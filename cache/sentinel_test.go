// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alicebob/miniredis/v2/server"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/tether"
)

// topology is what a fake sentinel reports.
type topology struct {
	mu       sync.Mutex
	primary  string
	replicas []string
	calls    int
}

func (tp *topology) set(primary string, replicas ...string) {
	tp.mu.Lock()
	tp.primary, tp.replicas = primary, replicas
	tp.mu.Unlock()
}

func (tp *topology) resolve(context.Context) (string, []string, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.calls++
	return tp.primary, tp.replicas, nil
}

func newTestSentinelClient(t *testing.T, tp *topology) *SentinelClient {
	t.Helper()

	s := &SentinelClient{
		Sentinels:     []string{"localhost:26379"},
		Namespace:     "test",
		ClientName:    "tether-test",
		RetryInterval: testInterval,
		Options:       noRetries(),
	}
	s.resolve = tp.resolve

	require.NoError(t, s.Start())
	t.Cleanup(func() {
		s.Stop()
		_ = s.WaitStop(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()
	require.NoError(t, s.WaitConnect(ctx))
	return s
}

func get(t *testing.T, s *SentinelClient, role Role, key string) string {
	t.Helper()

	var got string
	_, err := s.Use(role).Do(context.Background(), func(ctx context.Context, r redis.Cmdable) error {
		var err error
		got, err = r.Get(ctx, key).Result()
		return err
	})
	require.NoError(t, err)
	return got
}

func TestSentinelValidation(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, (&SentinelClient{}).Start(), tether.ErrValidation)
	assert.ErrorIs(t, (&SentinelClient{Sentinels: []string{""}}).Start(), tether.ErrValidation)
	assert.ErrorIs(t, (&SentinelClient{Sentinels: []string{"sentinel"}}).Start(), tether.ErrValidation)
}

func TestSentinelRoles(t *testing.T) {
	t.Parallel()

	primary := miniredis.RunT(t)
	replica := miniredis.RunT(t)
	tp := &topology{}
	tp.set(primary.Addr(), replica.Addr())

	s := newTestSentinelClient(t, tp)

	assert.True(t, primary.Exists("test"), "the primary is probed")
	assert.False(t, replica.Exists("test"))

	require.NoError(t, primary.Set("k", "from-primary"))
	require.NoError(t, replica.Set("k", "from-replica"))

	assert.Equal(t, "from-primary", get(t, s, Primary, "k"))
	assert.Equal(t, "from-replica", get(t, s, Replica, "k"))
}

func TestSentinelAside(t *testing.T) {
	t.Parallel()

	primary := miniredis.RunT(t)
	replica := miniredis.RunT(t)
	tp := &topology{}
	tp.set(primary.Addr(), replica.Addr())
	s := newTestSentinelClient(t, tp)

	require.NoError(t, primary.Set("k", "v"))
	require.NoError(t, replica.Set("k", "v"))

	got, err := s.Aside("k", time.Minute)(func(context.Context) ([]byte, error) {
		t.Fatal("loader called on a hit")
		return nil, nil
	})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	assert.Equal(t, time.Minute, primary.TTL("k"), "expiry is refreshed on the primary")
	assert.Zero(t, replica.TTL("k"))
}

func TestSentinelWithoutReplica(t *testing.T) {
	t.Parallel()

	t.Run("none reported", func(t *testing.T) {
		t.Parallel()
		primary := miniredis.RunT(t)
		tp := &topology{}
		tp.set(primary.Addr())
		s := newTestSentinelClient(t, tp)

		require.NoError(t, primary.Set("k", "v"))
		assert.Equal(t, "v", get(t, s, Replica, "k"))
	})

	t.Run("replica unreachable", func(t *testing.T) {
		t.Parallel()
		primary := miniredis.RunT(t)
		gone := miniredis.RunT(t)
		addr := gone.Addr()
		gone.Close()

		tp := &topology{}
		tp.set(primary.Addr(), addr)
		s := newTestSentinelClient(t, tp)

		require.NoError(t, primary.Set("k", "v"))
		assert.Equal(t, "v", get(t, s, Replica, "k"))
	})
}

func TestSentinelFailover(t *testing.T) {
	t.Parallel()

	a := miniredis.RunT(t)
	b := miniredis.RunT(t)
	tp := &topology{}
	tp.set(a.Addr(), b.Addr())
	s := newTestSentinelClient(t, tp)

	tp.set(b.Addr(), a.Addr())

	// The old primary now refuses writes, which restarts the connection.
	a.SetError("READONLY You can't write against a read only replica.")
	_, _ = s.Use(Primary).Do(context.Background(), func(ctx context.Context, r redis.Cmdable) error {
		return r.Set(ctx, "k", "v", 0).Err()
	})

	require.Eventually(t, func() bool { return s.Connected() && b.Exists("test") }, testWait, testTick)
	a.SetError("")

	_, err := s.Use(Primary).Do(context.Background(), func(ctx context.Context, r redis.Cmdable) error {
		return r.Set(ctx, "k", "after", 0).Err()
	})
	require.NoError(t, err)

	got, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "after", got)
}

func TestHealthyReplicas(t *testing.T) {
	t.Parallel()

	infos := []map[string]string{
		{"ip": "10.0.0.3", "port": "6379", "flags": "slave"},
		{"ip": "10.0.0.2", "port": "6379", "flags": "slave,s_down"},
		{"ip": "10.0.0.1", "port": "6379", "flags": "slave"},
		{"ip": "10.0.0.4", "port": "6379", "flags": "slave,disconnected"},
		{"ip": "10.0.0.5", "port": "6379", "flags": "slave,o_down"},
		{"port": "6379", "flags": "slave"},
	}

	assert.Equal(t, []string{"10.0.0.1:6379", "10.0.0.3:6379"}, healthyReplicas(infos))
	assert.Empty(t, healthyReplicas(nil))
}

// fakeSentinel answers SENTINEL queries for service "mymaster".
func fakeSentinel(t *testing.T, primary string, replicas ...string) string {
	t.Helper()

	srv, err := server.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	err = srv.Register("SENTINEL", func(c *server.Peer, _ string, args []string) {
		if len(args) != 2 || args[1] != DefaultServiceName {
			c.WriteError("ERR No such master with that name")
			return
		}

		switch args[0] {
		case "get-master-addr-by-name":
			host, port, _ := net.SplitHostPort(primary)
			c.WriteLen(2)
			c.WriteBulk(host)
			c.WriteBulk(port)
		case "replicas", "slaves":
			c.WriteLen(len(replicas))
			for _, r := range replicas {
				host, port, _ := net.SplitHostPort(r)
				c.WriteLen(6)
				for _, s := range []string{"ip", host, "port", port, "flags", "slave"} {
					c.WriteBulk(s)
				}
			}
		default:
			c.WriteError("ERR unknown sentinel subcommand")
		}
	})
	require.NoError(t, err)

	return srv.Addr().String()
}

func TestQuerySentinels(t *testing.T) {
	t.Parallel()

	primary := miniredis.RunT(t)
	replica := miniredis.RunT(t)

	down, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	downAddr := down.Addr().String()
	require.NoError(t, down.Close())

	s := &SentinelClient{
		Sentinels:     []string{downAddr, fakeSentinel(t, primary.Addr(), replica.Addr())},
		Namespace:     "test",
		RetryInterval: testInterval,
		Options:       noRetries(),
	}
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		s.Stop()
		_ = s.WaitStop(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()
	require.NoError(t, s.WaitConnect(ctx))

	assert.True(t, primary.Exists("test"))
	require.NoError(t, replica.Set("k", "v"))
	assert.Equal(t, "v", get(t, s, Replica, "k"))
}

func TestQuerySentinelsUnreachable(t *testing.T) {
	t.Parallel()

	down, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := down.Addr().String()
	require.NoError(t, down.Close())

	s := &SentinelClient{Sentinels: []string{addr, "127.0.0.1:1"}}
	s.logger = tether.LoggerOrNop(nil)

	_, _, err = s.querySentinels(context.Background())
	assert.ErrorIs(t, err, ErrNoPrimary)
	assert.ErrorIs(t, err, tether.ErrConnectivity)
}
