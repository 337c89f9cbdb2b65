// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached responses",
	}

	var pattern bool
	clean := &cobra.Command{
		Use:   "clean ROUTE...",
		Short: "Delete every cached response of the routes",
		Long: `clean deletes the cached responses of each route, whatever their query.
With --pattern the arguments are Redis SCAN patterns matched against the
whole key instead.`,
		Args:    cobra.MinimumNArgs(1),
		Example: "  tether cache clean /api/v1/devices\n  tether cache clean --pattern 'tether:session:*'",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd.Context(), func(ctx context.Context, c cleaner) error {
				var total int64
				for _, arg := range args {
					var (
						n   int64
						err error
					)
					if pattern {
						n, err = c.CleanPattern(ctx, arg)
					} else {
						n, err = c.Clean(ctx, arg)
					}
					if err != nil {
						return fmt.Errorf("clean %s: %w", arg, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d deleted\n", arg, n)
					total += n
				}
				if len(args) > 1 {
					fmt.Fprintf(cmd.OutOrStdout(), "total: %d deleted\n", total)
				}
				return nil
			})
		},
	}
	clean.Flags().BoolVar(&pattern, "pattern", false, "treat arguments as SCAN patterns")

	cmd.AddCommand(clean)
	return cmd
}

// cleaner is a connected cache client.
type cleaner interface {
	Clean(ctx context.Context, route string) (int64, error)
	CleanPattern(ctx context.Context, pattern string) (int64, error)
}

// withCache runs fn with a connected cache client and stops it afterwards.
func (a *app) withCache(ctx context.Context, fn func(context.Context, cleaner) error) error {
	if !a.cfg.Redis.Enabled() {
		return errors.New("no redis server or sentinels configured")
	}

	c := newCache(a.cfg.Redis)
	if err := c.Start(); err != nil {
		return err
	}
	defer stopAll(shutdownTimeout, c)

	wait, cancel := context.WithTimeout(ctx, a.connectTimeout)
	defer cancel()
	if err := c.WaitConnect(wait); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	return fn(ctx, c)
}
