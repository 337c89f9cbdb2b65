// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes prometheus collectors fed by tether event
// listeners and HTTP middleware.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xmidt-org/tether"
	"github.com/xmidt-org/tether/broker"
)

const namespace = "tether"

var (
	// Connection lifecycle
	LifecycleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle transitions by client, state and error type",
		},
		[]string{"client", "state", "error_type"},
	)

	Connected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "Whether the client holds a live connection (1 = connected)",
		},
		[]string{"client"},
	)

	EpochDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "epoch_duration_seconds",
			Help:      "Lifetime of connections that ended",
			Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 21600, 86400},
		},
		[]string{"client"},
	)

	// Kafka
	Dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "records_total",
			Help:      "Records handed to handlers by topic and error type",
		},
		[]string{"topic", "error_type"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "handler_duration_seconds",
			Help:      "Time handlers took per record",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	Produced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "records_total",
			Help:      "Produced records by topic and error type",
		},
		[]string{"topic", "error_type"},
	)

	ProduceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "produce_duration_seconds",
			Help:      "Time from produce call to acknowledgement",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	// HTTP
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		LifecycleEvents, Connected, EpochDuration,
		Dispatched, DispatchDuration,
		Produced, ProduceDuration,
		HTTPRequests, HTTPDuration,
	)
}

// Handler returns the prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLifecycle records a lifecycle event.
func ObserveLifecycle(e *tether.LifecycleEvent) {
	LifecycleEvents.WithLabelValues(e.Name, e.State.String(), e.ErrorType).Inc()

	switch {
	case e.State == tether.Connected:
		Connected.WithLabelValues(e.Name).Set(1)
	case e.Attempt > 0:
		// A failed connect attempt; the gauge is already 0.
	default:
		Connected.WithLabelValues(e.Name).Set(0)
		if e.Duration > 0 {
			EpochDuration.WithLabelValues(e.Name).Observe(e.Duration.Seconds())
		}
	}
}

// ObserveDispatch records a handled record.
func ObserveDispatch(e *broker.DispatchEvent) {
	Dispatched.WithLabelValues(e.Topic, e.ErrorType).Inc()
	DispatchDuration.WithLabelValues(e.Topic).Observe(e.Duration.Seconds())
}

// ObserveProduce records a produce result.
func ObserveProduce(e *broker.ProduceEvent) {
	Produced.WithLabelValues(e.Topic, e.ErrorType).Inc()
	ProduceDuration.WithLabelValues(e.Topic).Observe(e.Duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Middleware instruments requests by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		path := routePatternOrPath(r)
		HTTPRequests.WithLabelValues(path, r.Method, strconv.Itoa(sr.status)).Inc()
		HTTPDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath prefers the chi route pattern to keep label
// cardinality low. It is read after routing has filled it in.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
