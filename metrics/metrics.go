// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes ingestion counters on a dedicated prometheus registry.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vectorload"

// Batch outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
)

// Metrics holds the ingestion collectors and their registry.
type Metrics struct {
	Registry *prometheus.Registry

	upserted          *prometheus.CounterVec
	skipped           *prometheus.CounterVec
	batches           *prometheus.CounterVec
	retries           *prometheus.CounterVec
	checkpointFailure *prometheus.CounterVec
	checkpointOffset  *prometheus.GaugeVec
	batchDuration     *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry. withRuntime adds the Go,
// process and build info collectors.
func New(withRuntime bool) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		upserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Records committed by upsert.",
		}, []string{"stream"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records discarded by normalization.",
		}, []string{"stream"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches processed, by outcome.",
		}, []string{"stream", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries after transient failures, by stage.",
		}, []string{"stream", "stage"}),
		checkpointFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_write_failures_total",
			Help:      "Checkpoint writes that failed.",
		}, []string{"stream"}),
		checkpointOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_offset",
			Help:      "Last checkpoint written.",
		}, []string{"stream"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time per batch including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stream"}),
	}

	registry.MustRegister(
		m.upserted,
		m.skipped,
		m.batches,
		m.retries,
		m.checkpointFailure,
		m.checkpointOffset,
		m.batchDuration,
	)
	if withRuntime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Upserted(stream string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.upserted.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) Skipped(stream string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.WithLabelValues(stream).Add(float64(n))
}

// Batch records one finished batch.
func (m *Metrics) Batch(stream, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(stream, outcome).Inc()
	m.batchDuration.WithLabelValues(stream).Observe(elapsed.Seconds())
}

func (m *Metrics) Retry(stream, stage string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(stream, stage).Inc()
}

func (m *Metrics) CheckpointFailure(stream string) {
	if m == nil {
		return
	}
	m.checkpointFailure.WithLabelValues(stream).Inc()
}

func (m *Metrics) CheckpointWritten(stream string, offset int) {
	if m == nil {
		return
	}
	m.checkpointOffset.WithLabelValues(stream).Set(float64(offset))
}

// Server returns an http.Server exposing /metrics on addr.
func (m *Metrics) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
