// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/xmidt-org/tether"
	"github.com/xmidt-org/tether/broker"
	"github.com/xmidt-org/tether/cache"
	"github.com/xmidt-org/tether/cmd/tether/internal/metrics"
	"github.com/xmidt-org/wrp-go/v5"
)

// maxBodyBytes limits request bodies produced to Kafka or stored in Redis.
const maxBodyBytes = 1 << 20

// server exposes the managed clients over HTTP. A nil producer or cache
// leaves its routes out.
type server struct {
	producer *broker.Producer
	consumer *broker.Consumer
	cache    cacheClient
	cacheTTL time.Duration
	ns       cache.Namespace
	logger   zerolog.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Cache"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.ready)
	r.Handle("/metrics", metrics.Handler())

	if s.producer != nil {
		r.Route("/topics", func(r chi.Router) {
			r.Get("/", s.listTopics)
			r.Post("/{topic}", s.produce)
			r.Post("/{topic}/wrp", s.produceWRP)
		})
	}

	if s.cache != nil {
		miss := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("X-Cache", "MISS")
			http.Error(w, "not cached", http.StatusNotFound)
		})
		r.Route("/cache", func(r chi.Router) {
			r.With(s.cache.Middleware(nil, s.cacheTTL)).Get("/*", miss)
			r.Put("/*", s.store)
			r.Delete("/*", s.clean)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Outcome string `json:"outcome,omitempty"`
}

// writeOutcome maps the result of a scoped operation to a response.
func writeOutcome(w http.ResponseWriter, success int, outcome tether.Outcome, err error) {
	switch outcome {
	case tether.Completed:
		writeJSON(w, success, map[string]string{"outcome": outcome.String()})
		return
	case tether.Recovered:
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "connection lost, retry", Outcome: outcome.String()})
		return
	case tether.Unavailable:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Outcome: outcome.String()})
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(err, tether.ErrMisuse) || errors.Is(err, tether.ErrValidation) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Outcome: outcome.String()})
}

func (s *server) ready(w http.ResponseWriter, _ *http.Request) {
	states := map[string]string{}
	ready := true

	check := func(name string, state tether.State, connected bool) {
		states[name] = state.String()
		ready = ready && connected
	}
	if s.producer != nil {
		check("producer", s.producer.State(), s.producer.Connected())
	}
	if s.consumer != nil {
		check("consumer", s.consumer.State(), s.consumer.Connected())
	}
	if s.cache != nil {
		check("cache", s.cache.State(), s.cache.Connected())
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, states)
}

func (s *server) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.producer.Topics(r.Context())
	switch {
	case errors.Is(err, tether.ErrNotConnected):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return nil, false
	}
	return body, true
}

// produce sends the request body to the topic, keyed by the key query
// parameter, and waits for the broker.
func (s *server) produce(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var key []byte
	if k := r.URL.Query().Get("key"); k != "" {
		key = []byte(k)
	}

	outcome, err := s.producer.WithSender(r.Context(), chi.URLParam(r, "topic"), func(sender *broker.Sender) error {
		return sender.Produce(r.Context(), key, body)
	})
	if outcome == tether.Failed {
		s.logger.Warn().Err(err).Str("topic", chi.URLParam(r, "topic")).Msg("produce failed")
	}
	writeOutcome(w, http.StatusAccepted, outcome, err)
}

// produceWRP sends a msgpack encoded WRP message to the topic.
func (s *server) produceWRP(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var msg wrp.Message
	if err := wrp.NewDecoderBytes(body, wrp.Msgpack).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	outcome, err := s.producer.WithSender(r.Context(), chi.URLParam(r, "topic"), func(sender *broker.Sender) error {
		return sender.ProduceWRP(r.Context(), &msg)
	})
	writeOutcome(w, http.StatusAccepted, outcome, err)
}

// store caches the request body as the response of the same path.
func (s *server) store(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	key := s.cacheKey(r)
	outcome, err := s.cache.Store(r.Context(), key, body, s.cacheTTL)
	writeOutcome(w, http.StatusCreated, outcome, err)
}

// cacheKey matches the key the cache middleware reads.
func (s *server) cacheKey(r *http.Request) string {
	return s.ns.HTTPCacheKey(r.URL.Path, r.URL.RawQuery)
}

// clean deletes every cached response of the path.
func (s *server) clean(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.cache.Clean(r.Context(), r.URL.Path)
	switch {
	case errors.Is(err, tether.ErrNotConnected):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
