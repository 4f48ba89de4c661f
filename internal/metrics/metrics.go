// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics records stream statistics as Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so callers can pass one
// around without checking whether metrics are enabled.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jeranaias/npchat/internal/stream"
)

const namespace = "npchat"

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	streamsTotal    *prometheus.CounterVec
	streamsActive   prometheus.Gauge
	streamDuration  *prometheus.HistogramVec
	firstToken      *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	unitsTotal      *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := newMetrics()
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streams_total",
				Help:      "Total number of reply streams by outcome",
			},
			[]string{"model", "outcome"}, // outcome: completed, cancelled, failed
		),

		streamsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "streams_active",
				Help:      "Number of reply streams currently running",
			},
		),

		streamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stream_duration_seconds",
				Help:      "Duration of reply streams in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model", "outcome"},
		),

		firstToken: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stream_first_token_seconds",
				Help:      "Time from request start to the first token in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"model"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_tokens_total",
				Help:      "Total number of tokens delivered",
			},
			[]string{"model"},
		),

		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_units_total",
				Help:      "Total number of framed units by result",
			},
			[]string{"model", "result"}, // result: token, empty, malformed
		),

		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_bytes_total",
				Help:      "Total number of response bytes read",
			},
			[]string{"model"},
		),

		transportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_errors_total",
				Help:      "Total number of non-success HTTP responses by status code",
			},
			[]string{"model", "status"},
		),
	}

	m.registry.MustRegister(
		m.streamsTotal,
		m.streamsActive,
		m.streamDuration,
		m.firstToken,
		m.tokensTotal,
		m.unitsTotal,
		m.bytesTotal,
		m.transportErrors,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Track marks a stream as active and returns the function that records its
// final stats. Call the returned function exactly once.
func (m *Metrics) Track(model string) func(stream.Stats) {
	if m == nil {
		return func(stream.Stats) {}
	}
	m.streamsActive.Inc()
	return func(s stream.Stats) {
		m.streamsActive.Dec()
		m.Record(model, s)
	}
}

// Record adds the stats of a finished stream.
func (m *Metrics) Record(model string, s stream.Stats) {
	if m == nil || s.Outcome == stream.OutcomePending {
		return
	}

	outcome := s.Outcome.String()
	m.streamsTotal.WithLabelValues(model, outcome).Inc()
	m.streamDuration.WithLabelValues(model, outcome).Observe(s.Duration.Seconds())
	if s.Tokens > 0 {
		m.firstToken.WithLabelValues(model).Observe(s.FirstTokenTime.Seconds())
	}

	m.tokensTotal.WithLabelValues(model).Add(float64(s.Tokens))
	m.bytesTotal.WithLabelValues(model).Add(float64(s.Bytes))
	m.unitsTotal.WithLabelValues(model, "token").Add(float64(s.Tokens))
	m.unitsTotal.WithLabelValues(model, "empty").Add(float64(s.Empty))
	m.unitsTotal.WithLabelValues(model, "malformed").Add(float64(s.Malformed))

	if s.StatusCode != 0 && (s.StatusCode < 200 || s.StatusCode > 299) {
		m.transportErrors.WithLabelValues(model, strconv.Itoa(s.StatusCode)).Inc()
	}
}
