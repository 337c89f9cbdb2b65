// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
listen: ":9000"
log:
  level: debug
  json: true
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  group: devices
  topics: [device-events]
  dispatch: async
  retry_interval: 5s
  wrp_headers:
    X-Device: [wrp.DeviceID]
redis:
  addr: "redis:6379"
  namespace: api
  ttl: 1m
`

const tomlConfig = `
listen = ":9000"

[kafka]
brokers = ["kafka-1:9092"]
acks = "leader"
retry_interval = "250ms"

[redis]
sentinels = ["s1:26379", "s2:26379"]
service_name = "cache"
`

const jsonConfig = `{
  "listen": ":9000",
  "kafka": {"brokers": ["kafka-1:9092"], "request_timeout": "2s"},
  "redis": {"addr": "redis:6379", "db": 3}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFormats(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg, err := Load(writeFile(t, "tether.yaml", yamlConfig))
		require.NoError(t, err)

		assert.Equal(t, ":9000", cfg.Listen)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.JSON)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "async", cfg.Kafka.Dispatch)
		assert.Equal(t, 5*time.Second, cfg.Kafka.RetryInterval.Std())
		assert.Equal(t, []string{"wrp.DeviceID"}, cfg.Kafka.WRPHeaders["X-Device"])
		assert.Equal(t, time.Minute, cfg.Redis.TTL.Std())
		assert.True(t, cfg.Kafka.Enabled())
		assert.True(t, cfg.Redis.Enabled())
	})

	t.Run("toml", func(t *testing.T) {
		cfg, err := Load(writeFile(t, "tether.toml", tomlConfig))
		require.NoError(t, err)

		assert.Equal(t, "leader", cfg.Kafka.Acks)
		assert.Equal(t, 250*time.Millisecond, cfg.Kafka.RetryInterval.Std())
		assert.Equal(t, []string{"s1:26379", "s2:26379"}, cfg.Redis.Sentinels)
		assert.Equal(t, "cache", cfg.Redis.ServiceName)
		assert.Equal(t, "info", cfg.Log.Level, "defaults survive")
		assert.Equal(t, "sync", cfg.Kafka.Dispatch)
	})

	t.Run("json", func(t *testing.T) {
		cfg, err := Load(writeFile(t, "tether.json", jsonConfig))
		require.NoError(t, err)

		assert.Equal(t, 2*time.Second, cfg.Kafka.RequestTimeout.Std())
		assert.Equal(t, 3, cfg.Redis.DB)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := Load(writeFile(t, "tether.ini", "listen=:1"))
		assert.ErrorContains(t, err, "unsupported config extension")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "tether.yaml", "kafka:\n  retry_interval: soon\n"))
		assert.Error(t, err)
	})
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TETHER_LISTEN", ":7000")
	t.Setenv("TETHER_LOG_JSON", "true")
	t.Setenv("TETHER_KAFKA_BROKERS", " a:9092, b:9092 ,")
	t.Setenv("TETHER_REDIS_ADDR", "cache:6379")
	t.Setenv("TETHER_REDIS_DB", "2")
	t.Setenv("TETHER_REDIS_NAMESPACE", "")

	cfg, err := Load(writeFile(t, "tether.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Listen)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "api", cfg.Redis.Namespace, "empty variables are ignored")
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "log json", env: map[string]string{"TETHER_LOG_JSON": "maybe"}},
		{name: "redis db", env: map[string]string{"TETHER_REDIS_DB": "two"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			lookup := func(k string) (string, bool) {
				v, ok := tc.env[k]
				return v, ok
			}
			assert.Error(t, applyEnv(&cfg, lookup))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "no listen", modify: func(c *Config) { c.Listen = "" }, wantErr: true},
		{name: "log level", modify: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "bad broker", modify: func(c *Config) { c.Kafka.Brokers = []string{"nohost"} }, wantErr: true},
		{name: "empty broker", modify: func(c *Config) { c.Kafka.Brokers = []string{""} }, wantErr: true},
		{name: "acks", modify: func(c *Config) { c.Kafka.Acks = "some" }, wantErr: true},
		{name: "compression", modify: func(c *Config) { c.Kafka.Compression = "brotli" }, wantErr: true},
		{name: "dispatch", modify: func(c *Config) { c.Kafka.Dispatch = "parallel" }, wantErr: true},
		{name: "topics without brokers", modify: func(c *Config) { c.Kafka.Topics = []string{"a"} }, wantErr: true},
		{
			name: "topics with brokers",
			modify: func(c *Config) {
				c.Kafka.Brokers = []string{"localhost:9092"}
				c.Kafka.Topics = []string{"a"}
			},
		},
		{name: "negative partitions", modify: func(c *Config) { c.Kafka.Partitions = -1 }, wantErr: true},
		{name: "redis addr", modify: func(c *Config) { c.Redis.Addr = "localhost:6379" }},
		{name: "bad redis addr", modify: func(c *Config) { c.Redis.Addr = "localhost" }, wantErr: true},
		{
			name: "addr and sentinels",
			modify: func(c *Config) {
				c.Redis.Addr = "localhost:6379"
				c.Redis.Sentinels = []string{"localhost:26379"}
			},
			wantErr: true,
		},
		{name: "negative db", modify: func(c *Config) { c.Redis.DB = -1 }, wantErr: true},
		{name: "negative ttl", modify: func(c *Config) { c.Redis.TTL = Duration(-time.Second) }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDurationText(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))

	assert.Error(t, d.UnmarshalText([]byte("90")))
}
