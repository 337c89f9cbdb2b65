// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/tether"
)

// DefaultCreateTimeout bounds topic creation when Topics.CreateTimeout is
// not set.
const DefaultCreateTimeout = 3 * time.Second

var topicNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateTopicName checks name against the Kafka topic naming rules.
func ValidateTopicName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, 249),
		validation.Match(topicNamePattern),
		validation.NotIn(".", ".."),
	)
	if err != nil {
		return errors.Join(tether.ErrValidation, fmt.Errorf("topic %q: %w", name, err))
	}
	return nil
}

// TopicSpec describes a topic to create.
type TopicSpec struct {
	// Name is the topic name. Required.
	Name string

	// Partitions is the partition count. Zero means Topics.Defaults, then 1.
	// -1 lets the broker decide.
	Partitions int32

	// ReplicationFactor is the replica count. Zero means Topics.Defaults,
	// then -1 (broker default).
	ReplicationFactor int16

	// ReplicaAssignment pins partitions to brokers. When set, Partitions and
	// ReplicationFactor are ignored.
	ReplicaAssignment map[int32][]int32

	// Configs are topic level configuration overrides.
	Configs map[string]string
}

// TopicError is a per-topic failure reported by the cluster.
type TopicError struct {
	Code    int16
	Message string
}

func (e TopicError) Error() string {
	name := "UNKNOWN"
	if ke, ok := kerr.ErrorForCode(e.Code).(*kerr.Error); ok {
		name = ke.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("%s (%d)", name, e.Code)
	}
	return fmt.Sprintf("%s (%d): %s", name, e.Code, e.Message)
}

// Unwrap returns the kerr error for the code.
func (e TopicError) Unwrap() error {
	return kerr.ErrorForCode(e.Code)
}

// AdminOpener provides an AdminChannel for the duration of one operation.
// The returned function releases it.
type AdminOpener func(ctx context.Context) (AdminChannel, func(), error)

// Borrowed returns an AdminOpener for a channel that is already open and
// must not be closed by the operation.
func Borrowed(ch AdminChannel) AdminOpener {
	return func(context.Context) (AdminChannel, func(), error) {
		return ch, func() {}, nil
	}
}

// Topics tracks the topics a client wants, knows to exist, and has created,
// and performs the administrative requests that change them.
//
// The sets are only changed by successful requests. Every created topic is
// also an existing one.
//
// The zero value is ready to use.
type Topics struct {
	// Defaults supplies Partitions, ReplicationFactor and Configs for specs
	// that leave them unset. The Name is ignored.
	Defaults TopicSpec

	// CreateTimeout bounds topic creation.
	// Default: 3s.
	CreateTimeout time.Duration

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	mu      sync.Mutex
	desired map[string]TopicSpec
	exists  map[string]struct{}
	created map[string]struct{}
}

func (t *Topics) init() {
	if t.desired == nil {
		t.desired = make(map[string]TopicSpec)
	}
	if t.exists == nil {
		t.exists = make(map[string]struct{})
	}
	if t.created == nil {
		t.created = make(map[string]struct{})
	}
}

func (t *Topics) logger() kgo.Logger {
	return tether.LoggerOrNop(t.Logger)
}

func (t *Topics) createTimeout() time.Duration {
	if t.CreateTimeout > 0 {
		return t.CreateTimeout
	}
	return DefaultCreateTimeout
}

// withDefaults fills the unset fields of spec.
func (t *Topics) withDefaults(spec TopicSpec) TopicSpec {
	if spec.Partitions == 0 {
		spec.Partitions = t.Defaults.Partitions
		if spec.Partitions == 0 {
			spec.Partitions = 1
		}
	}
	if spec.ReplicationFactor == 0 {
		spec.ReplicationFactor = t.Defaults.ReplicationFactor
		if spec.ReplicationFactor == 0 {
			spec.ReplicationFactor = -1
		}
	}
	if spec.Configs == nil && len(t.Defaults.Configs) > 0 {
		spec.Configs = maps.Clone(t.Defaults.Configs)
	}
	return spec
}

// Desire merges specs into the desired set. A later spec for the same name
// replaces the earlier one. Unset fields take the Defaults in effect when the
// topic is created.
func (t *Topics) Desire(specs ...TopicSpec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()

	for _, spec := range specs {
		t.desired[spec.Name] = spec
	}
}

// want adds bare specs for names that are not desired yet.
func (t *Topics) want(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()

	for _, name := range names {
		if _, ok := t.desired[name]; !ok {
			t.desired[name] = TopicSpec{Name: name}
		}
	}
}

// Spec returns the desired spec for name, or the defaults under that name.
func (t *Topics) Spec(name string) TopicSpec {
	t.mu.Lock()
	defer t.mu.Unlock()

	spec, ok := t.desired[name]
	if !ok {
		spec.Name = name
	}
	return t.withDefaults(spec)
}

// Desired returns the desired specs ordered by name.
func (t *Topics) Desired() []TopicSpec {
	t.mu.Lock()
	defer t.mu.Unlock()

	specs := make([]TopicSpec, 0, len(t.desired))
	for _, spec := range t.desired {
		specs = append(specs, t.withDefaults(spec))
	}
	slices.SortFunc(specs, func(a, b TopicSpec) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return specs
}

// Exists reports whether name is known to exist in the cluster.
func (t *Topics) Exists(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.exists[name]
	return ok
}

// Existing returns the topics known to exist, sorted.
func (t *Topics) Existing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.exists))
}

// Created returns the topics this client created or found already created,
// sorted.
func (t *Topics) Created() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.created))
}

// Reset forgets which topics exist, keeping the desired set. Used when the
// client moves to a different cluster.
func (t *Topics) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.exists = make(map[string]struct{})
	t.created = make(map[string]struct{})
}

// FindController returns the controller broker id.
func (t *Topics) FindController(ctx context.Context, ch AdminChannel) (int32, error) {
	return ch.FindController(ctx)
}

// ListTopics returns the topics in the cluster and records them as existing.
func (t *Topics) ListTopics(ctx context.Context, ch AdminChannel) ([]string, error) {
	names, err := ch.ListTopics(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.init()
	for _, name := range names {
		t.exists[name] = struct{}{}
	}
	t.mu.Unlock()

	slices.Sort(names)
	return names, nil
}

// CreateTopics creates topics on the controller.
//
// A topic that already exists counts as created. Per-topic failures are
// returned in failed; err is only set if the request itself failed.
func (t *Topics) CreateTopics(ctx context.Context, ch AdminChannel, specs ...TopicSpec) (success []string, failed map[string]TopicError, err error) {
	if len(specs) == 0 {
		return nil, nil, nil
	}

	filled := make([]TopicSpec, 0, len(specs))
	for _, spec := range specs {
		filled = append(filled, t.withDefaults(spec))
	}

	controller, err := ch.FindController(ctx)
	if err != nil {
		return nil, nil, err
	}

	results, err := ch.CreateTopics(ctx, controller, filled, t.createTimeout())
	if err != nil {
		return nil, nil, err
	}

	success, failed = partition(results, kerr.TopicAlreadyExists.Code)

	t.mu.Lock()
	t.init()
	for _, name := range success {
		t.exists[name] = struct{}{}
		t.created[name] = struct{}{}
	}
	t.mu.Unlock()

	return success, failed, nil
}

// DeleteTopics deletes topics on the controller.
//
// A topic that is already absent counts as deleted. Per-topic failures are
// returned in failed; err is only set if the request itself failed.
func (t *Topics) DeleteTopics(ctx context.Context, ch AdminChannel, names ...string) (success []string, failed map[string]TopicError, err error) {
	if len(names) == 0 {
		return nil, nil, nil
	}

	controller, err := ch.FindController(ctx)
	if err != nil {
		return nil, nil, err
	}

	results, err := ch.DeleteTopics(ctx, controller, names, t.createTimeout())
	if err != nil {
		return nil, nil, err
	}

	success, failed = partition(results, kerr.UnknownTopicOrPartition.Code)

	t.mu.Lock()
	t.init()
	for _, name := range success {
		delete(t.exists, name)
		delete(t.created, name)
	}
	t.mu.Unlock()

	return success, failed, nil
}

// AutoCreateTopics adds specs to the desired set and creates every desired
// topic through a channel obtained from open. The whole operation, including
// opening the channel, is bounded by CreateTimeout.
func (t *Topics) AutoCreateTopics(ctx context.Context, open AdminOpener, specs ...TopicSpec) (success []string, failed map[string]TopicError, err error) {
	t.Desire(specs...)
	desired := t.Desired()
	if len(desired) == 0 {
		return nil, nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.createTimeout())
	defer cancel()

	names := make([]string, 0, len(desired))
	for _, spec := range desired {
		names = append(names, spec.Name)
	}
	t.logger().Log(kgo.LogLevelInfo, "creating topics", "topics", names)

	ch, release, err := open(ctx)
	if err != nil {
		return nil, nil, errors.Join(ErrTopicAdmin, fmt.Errorf("opening admin channel"), err)
	}
	defer release()

	success, failed, err = t.CreateTopics(ctx, ch, desired...)
	if err != nil {
		t.logger().Log(kgo.LogLevelWarn, "topic creation failed", "error", err.Error())
		return nil, nil, err
	}

	if len(success) > 0 {
		t.logger().Log(kgo.LogLevelInfo, "topics created", "topics", success)
	}
	for name, terr := range failed {
		t.logger().Log(kgo.LogLevelWarn, "topic not created", "topic", name, "error", terr.Error())
	}

	return success, failed, nil
}

// partition splits results into successes and failures. ok is an additional
// code treated as success.
func partition(results []TopicResult, ok int16) ([]string, map[string]TopicError) {
	var success []string
	failed := make(map[string]TopicError)

	for _, r := range results {
		if r.Code == 0 || r.Code == ok {
			success = append(success, r.Topic)
			continue
		}
		failed[r.Topic] = TopicError{Code: r.Code, Message: r.Message}
	}

	slices.Sort(success)
	return success, failed
}
