// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/xmidt-org/tether/cache"
	"github.com/xmidt-org/tether/cmd/tether/internal/logging"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold the configured connections and serve them over HTTP",
		Long: `serve starts a producer, a consumer of the configured topics and a
cache client, keeps them connected, and serves health, metrics, produce
and cache routes until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.Listen = listen
			}
			return serve(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides the config)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	log := logging.WithComponent("serve")
	cfg := a.cfg

	s := &server{logger: log}
	var started []lifecycle
	defer func() { stopAll(shutdownTimeout, started...) }()

	if cfg.Kafka.Enabled() {
		s.producer = newProducer(cfg.Kafka)
		if err := s.producer.Start(); err != nil {
			return fmt.Errorf("start producer: %w", err)
		}
		started = append(started, s.producer)

		if len(cfg.Kafka.Topics) > 0 {
			s.consumer = newConsumer(cfg.Kafka)
			if err := s.consumer.Start(); err != nil {
				return fmt.Errorf("start consumer: %w", err)
			}
			started = append(started, s.consumer)
		}
	}

	if cfg.Redis.Enabled() {
		s.cache = newCache(cfg.Redis)
		s.ns = cache.Namespace(cfg.Redis.Namespace)
		s.cacheTTL = cfg.Redis.TTL.Std()
		if s.cacheTTL <= 0 {
			s.cacheTTL = cache.DefaultAsideTTL
		}
		if err := s.cache.Start(); err != nil {
			return fmt.Errorf("start cache: %w", err)
		}
		started = append(started, s.cache)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}
