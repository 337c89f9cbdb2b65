// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package config loads the tether command configuration from a file and the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TETHER_"

// Duration is a time.Duration written as a string such as "10s" in every
// supported file format.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds runtime parameters for the tether command.
type Config struct {
	Listen string `json:"listen" yaml:"listen" toml:"listen"`
	Log    Log    `json:"log" yaml:"log" toml:"log"`
	Kafka  Kafka  `json:"kafka" yaml:"kafka" toml:"kafka"`
	Redis  Redis  `json:"redis" yaml:"redis" toml:"redis"`
}

// Log configures the process logger.
type Log struct {
	Level string `json:"level" yaml:"level" toml:"level"`
	JSON  bool   `json:"json" yaml:"json" toml:"json"`
}

// Kafka configures the producer and consumer. Kafka is disabled when no
// brokers are given.
type Kafka struct {
	Brokers        []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	User           string   `json:"user" yaml:"user" toml:"user"`
	Password       string   `json:"password" yaml:"password" toml:"password"`
	ClientID       string   `json:"client_id" yaml:"client_id" toml:"client_id"`
	RetryInterval  Duration `json:"retry_interval" yaml:"retry_interval" toml:"retry_interval"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	Acks           string   `json:"acks" yaml:"acks" toml:"acks"`
	Compression    string   `json:"compression" yaml:"compression" toml:"compression"`

	// WRPHeaders maps record header names to literals or wrp.* field
	// references for WRP messages.
	WRPHeaders map[string][]string `json:"wrp_headers" yaml:"wrp_headers" toml:"wrp_headers"`

	// Group and Topics configure the consumer. Nothing is consumed without
	// topics.
	Group             string   `json:"group" yaml:"group" toml:"group"`
	Topics            []string `json:"topics" yaml:"topics" toml:"topics"`
	Dispatch          string   `json:"dispatch" yaml:"dispatch" toml:"dispatch"`
	StartFromEarliest bool     `json:"start_from_earliest" yaml:"start_from_earliest" toml:"start_from_earliest"`

	Partitions        int32 `json:"partitions" yaml:"partitions" toml:"partitions"`
	ReplicationFactor int16 `json:"replication_factor" yaml:"replication_factor" toml:"replication_factor"`
}

// Enabled reports whether any brokers are configured.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Redis configures the cache. Either Addr or Sentinels selects the client;
// the cache is disabled when neither is set.
type Redis struct {
	Addr        string   `json:"addr" yaml:"addr" toml:"addr"`
	Sentinels   []string `json:"sentinels" yaml:"sentinels" toml:"sentinels"`
	ServiceName string   `json:"service_name" yaml:"service_name" toml:"service_name"`
	ClientName  string   `json:"client_name" yaml:"client_name" toml:"client_name"`
	DB          int      `json:"db" yaml:"db" toml:"db"`
	Username    string   `json:"username" yaml:"username" toml:"username"`
	Password    string   `json:"password" yaml:"password" toml:"password"`
	Namespace   string   `json:"namespace" yaml:"namespace" toml:"namespace"`
	TTL         Duration `json:"ttl" yaml:"ttl" toml:"ttl"`

	RetryInterval Duration `json:"retry_interval" yaml:"retry_interval" toml:"retry_interval"`
}

// Enabled reports whether a Redis server or sentinel is configured.
func (r Redis) Enabled() bool {
	return r.Addr != "" || len(r.Sentinels) > 0
}

// Default returns the configuration used for unset values.
func Default() Config {
	return Config{
		Listen: ":8080",
		Log:    Log{Level: "info"},
		Kafka:  Kafka{Dispatch: "sync"},
	}
}

// Load reads the configuration file at path, if any, on top of Default and
// then applies TETHER_* environment overrides. The file format follows the
// extension: .yaml/.yml, .json or .toml.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	case ".json":
		err = json.Unmarshal(b, cfg)
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides cfg with the environment variables present.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	env := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := env(key); ok {
			*dst = splitList(v)
		}
	}

	str("LISTEN", &cfg.Listen)
	str("LOG_LEVEL", &cfg.Log.Level)

	str("KAFKA_USER", &cfg.Kafka.User)
	str("KAFKA_PASSWORD", &cfg.Kafka.Password)
	str("KAFKA_CLIENT_ID", &cfg.Kafka.ClientID)
	str("KAFKA_GROUP", &cfg.Kafka.Group)
	str("KAFKA_ACKS", &cfg.Kafka.Acks)
	str("KAFKA_DISPATCH", &cfg.Kafka.Dispatch)
	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	list("KAFKA_TOPICS", &cfg.Kafka.Topics)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_SERVICE_NAME", &cfg.Redis.ServiceName)
	str("REDIS_CLIENT_NAME", &cfg.Redis.ClientName)
	str("REDIS_USERNAME", &cfg.Redis.Username)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("REDIS_NAMESPACE", &cfg.Redis.Namespace)
	list("REDIS_SENTINELS", &cfg.Redis.Sentinels)

	if v, ok := env("LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_JSON: %w", EnvPrefix, err)
		}
		cfg.Log.JSON = b
	}

	if v, ok := env("REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		cfg.Redis.DB = db
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration as a whole.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.Log),
		validation.Field(&c.Kafka),
		validation.Field(&c.Redis),
	)
}

// Validate checks the log settings.
func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// Validate checks the Kafka settings.
func (k Kafka) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.Brokers, validation.Each(validation.Required, is.DialString)),
		validation.Field(&k.Acks, validation.In("all", "leader", "none")),
		validation.Field(&k.Compression, validation.In("none", "gzip", "snappy", "lz4", "zstd")),
		validation.Field(&k.Dispatch, validation.In("sync", "async")),
		validation.Field(&k.Group, validation.When(k.Group != "", validation.Length(1, 255))),
		validation.Field(&k.Topics, validation.When(len(k.Topics) > 0,
			validation.By(func(any) error {
				if !k.Enabled() {
					return fmt.Errorf("topics need brokers")
				}
				return nil
			}))),
		validation.Field(&k.Partitions, validation.Min(int32(0))),
	)
}

// Validate checks the Redis settings.
func (r Redis) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addr,
			validation.When(r.Addr != "", is.DialString),
			validation.When(len(r.Sentinels) > 0, validation.Empty.Error("must be empty when sentinels are set")),
		),
		validation.Field(&r.Sentinels, validation.Each(validation.Required, is.DialString)),
		validation.Field(&r.DB, validation.Min(0)),
		validation.Field(&r.TTL, validation.Min(Duration(0))),
	)
}
