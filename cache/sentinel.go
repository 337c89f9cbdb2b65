// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// DefaultServiceName is the sentinel service name used when none is set.
const DefaultServiceName = "mymaster"

// SentinelClient discovers the primary and a replica of a Redis service
// through sentinels and keeps connections to both alive. Every reconnect
// resolves the roles again, which is how a failover is followed.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type SentinelClient struct {
	// Name identifies the client in logs and lifecycle events.
	// Default: "cache".
	Name string

	// Sentinels are the sentinel addresses in "host:port" format. Required.
	Sentinels []string

	// ServiceName is the name the sentinels monitor the primary under.
	// Default: "mymaster".
	ServiceName string

	// DB is the database to select.
	DB int

	// Username and Password authenticate with the data nodes.
	// Optional.
	Username string
	Password string

	// SentinelUsername and SentinelPassword authenticate with the sentinels.
	// Optional.
	SentinelUsername string
	SentinelPassword string

	// ClientName picks the replica: the same name always maps to the same
	// healthy replica.
	// Default: "tether-" followed by a random UUID.
	ClientName string

	// Namespace prefixes keys and names the liveness key.
	// Default: DefaultNamespace.
	Namespace Namespace

	// RetryInterval is the pause between failed connect attempts and
	// between liveness probes.
	// Default: 10s.
	RetryInterval time.Duration

	// Options are the base go-redis options for the data nodes.
	// Optional.
	Options *redis.Options

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialLifecycleEventListeners are registered when Start() is first called.
	// Optional.
	InitialLifecycleEventListeners []func(*tether.LifecycleEvent)

	core

	clientName string

	// resolve is for internal use only (testing hook).
	resolve func(ctx context.Context) (primary string, replicas []string, err error)
}

func (s *SentinelClient) validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Sentinels, validation.Required, validation.Each(validation.Required, is.DialString)),
		validation.Field(&s.DB, validation.Min(0)),
	)
	if err != nil {
		return errors.Join(tether.ErrValidation, err)
	}
	return nil
}

// Start validates the configuration and starts connecting in the background.
// Use WaitConnect to wait for the first connection.
//
// Calling Start again while running does nothing.
func (s *SentinelClient) Start() error {
	if err := s.validate(); err != nil {
		return err
	}

	name := s.Name
	if name == "" {
		name = "cache"
	}

	s.configure(settings{
		name:      name,
		namespace: s.Namespace,
		interval:  s.RetryInterval,
		logger:    s.Logger,
		listeners: s.InitialLifecycleEventListeners,
	}, &sentinelConnector{s: s})

	if s.clientName == "" {
		s.clientName = s.ClientName
		if s.clientName == "" {
			s.clientName = "tether-" + uuid.NewString()
		}
	}
	if s.resolve == nil {
		s.resolve = s.querySentinels
	}

	return s.mgr.Start()
}

func (s *SentinelClient) serviceName() string {
	if s.ServiceName == "" {
		return DefaultServiceName
	}
	return s.ServiceName
}

func (s *SentinelClient) options(addr string) *redis.Options {
	o := redisOptions(s.Options, addr, s.DB, s.Username, s.Password)
	if o.ClientName == "" {
		o.ClientName = s.clientName
	}
	return o
}

// querySentinels asks each sentinel in turn for the primary and the healthy
// replicas. The first sentinel that answers wins.
func (s *SentinelClient) querySentinels(ctx context.Context) (string, []string, error) {
	errs := []error{ErrNoPrimary}
	for _, addr := range s.Sentinels {
		primary, replicas, err := s.ask(ctx, addr)
		if err == nil {
			return primary, replicas, nil
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("sentinel %s: %w", addr, err))
	}
	return "", nil, tether.Connectivity(errors.Join(errs...))
}

func (s *SentinelClient) ask(ctx context.Context, addr string) (string, []string, error) {
	sc := redis.NewSentinelClient(&redis.Options{
		Addr:     addr,
		Username: s.SentinelUsername,
		Password: s.SentinelPassword,
	})
	defer sc.Close()

	hostPort, err := sc.GetMasterAddrByName(ctx, s.serviceName()).Result()
	if err != nil {
		return "", nil, err
	}
	if len(hostPort) != 2 {
		return "", nil, fmt.Errorf("unexpected primary address %q", hostPort)
	}
	primary := net.JoinHostPort(hostPort[0], hostPort[1])

	infos, err := sc.Replicas(ctx, s.serviceName()).Result()
	if err != nil {
		s.logger.Log(kgo.LogLevelWarn, "replica lookup failed, reading from the primary",
			"sentinel", addr, "error", err.Error())
		return primary, nil, nil
	}

	return primary, healthyReplicas(infos), nil
}

// healthyReplicas returns the sorted addresses of the replicas no sentinel
// considers down.
func healthyReplicas(infos []map[string]string) []string {
	var addrs []string
	for _, info := range infos {
		if info["ip"] == "" || info["port"] == "" || !healthy(info["flags"]) {
			continue
		}
		addrs = append(addrs, net.JoinHostPort(info["ip"], info["port"]))
	}
	slices.Sort(addrs)
	return addrs
}

func healthy(flags string) bool {
	for _, f := range strings.Split(flags, ",") {
		switch f {
		case "s_down", "o_down", "disconnected":
			return false
		}
	}
	return true
}

// sentinelConnector adapts a SentinelClient to tether.Connector and
// tether.Server.
type sentinelConnector struct {
	s *SentinelClient
}

func (sc *sentinelConnector) Connect(ctx context.Context) (*conn, error) {
	s := sc.s

	primaryAddr, replicas, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}

	primary := redis.NewClient(s.options(primaryAddr))
	if err := s.probe(ctx, primary); err != nil {
		_ = primary.Close()
		return nil, tether.Connectivity(fmt.Errorf("liveness probe of primary %s failed: %w", primaryAddr, err))
	}

	h := &conn{primary: primary, replica: primary}

	replicas = slices.DeleteFunc(slices.Clone(replicas), func(a string) bool { return a == primaryAddr })
	slices.Sort(replicas)
	if len(replicas) == 0 {
		s.logger.Log(kgo.LogLevelInfo, "connected without a replica", "primary", primaryAddr)
		return h, nil
	}

	replicaAddr := replicas[pickIndex(s.clientName, len(replicas))]
	replica := redis.NewClient(s.options(replicaAddr))
	if err := replica.Ping(ctx).Err(); err != nil {
		_ = replica.Close()
		s.logger.Log(kgo.LogLevelWarn, "replica unreachable, reading from the primary",
			"replica", replicaAddr, "error", err.Error())
		return h, nil
	}

	h.replica = replica
	s.logger.Log(kgo.LogLevelInfo, "connected", "primary", primaryAddr, "replica", replicaAddr)
	return h, nil
}

func (sc *sentinelConnector) Close(_ context.Context, h *conn) error {
	return h.close()
}

func (sc *sentinelConnector) Serve(ctx context.Context, h *conn) error {
	return sc.s.serve(ctx, h)
}
