// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/xmidt-org/tether/broker"
)

func newTopicsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List, create and delete Kafka topics",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the topics of the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProducer(cmd.Context(), func(ctx context.Context, p *broker.Producer) error {
				names, err := p.Topics(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}

	var spec broker.TopicSpec
	create := &cobra.Command{
		Use:     "create TOPIC...",
		Short:   "Create topics",
		Args:    cobra.MinimumNArgs(1),
		Example: "  tether topics create device-events --partitions 12 --replication-factor 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := make([]broker.TopicSpec, 0, len(args))
			for _, name := range args {
				s := spec
				s.Name = name
				specs = append(specs, s)
			}

			return a.withProducer(cmd.Context(), func(ctx context.Context, p *broker.Producer) error {
				success, failed, err := p.CreateTopics(ctx, specs...)
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), "created", success, failed)
			})
		},
	}
	create.Flags().Int32Var(&spec.Partitions, "partitions", 0, "partition count (0 uses the configured default)")
	create.Flags().Int16Var(&spec.ReplicationFactor, "replication-factor", 0, "replication factor (0 uses the configured default)")
	create.Flags().StringToStringVar(&spec.Configs, "config", nil, "topic config entries, e.g. retention.ms=60000")

	del := &cobra.Command{
		Use:     "delete TOPIC...",
		Aliases: []string{"rm"},
		Short:   "Delete topics",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withProducer(cmd.Context(), func(ctx context.Context, p *broker.Producer) error {
				success, failed, err := p.DeleteTopics(ctx, args...)
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), "deleted", success, failed)
			})
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

// withProducer runs fn with a connected producer and stops it afterwards.
func (a *app) withProducer(ctx context.Context, fn func(context.Context, *broker.Producer) error) error {
	if !a.cfg.Kafka.Enabled() {
		return errors.New("no kafka brokers configured")
	}

	p := newProducer(a.cfg.Kafka)
	if err := p.Start(); err != nil {
		return err
	}
	defer stopAll(shutdownTimeout, p)

	wait, cancel := context.WithTimeout(ctx, a.connectTimeout)
	defer cancel()
	if err := p.WaitConnect(wait); err != nil {
		return fmt.Errorf("connect to kafka: %w", err)
	}

	return fn(ctx, p)
}

// report prints per-topic results and fails when any topic failed.
func report(w io.Writer, verb string, success []string, failed map[string]broker.TopicError) error {
	for _, name := range success {
		fmt.Fprintf(w, "%s %s\n", verb, name)
	}

	if len(failed) == 0 {
		return nil
	}

	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, 0, len(names))
	for _, name := range names {
		fmt.Fprintf(w, "failed %s: %v\n", name, failed[name])
		errs = append(errs, fmt.Errorf("%s: %w", name, failed[name]))
	}
	return errors.Join(errs...)
}
