// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of framesync.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package telemetry mirrors align.Engine's introspection surface
// (spec.md §6) onto a Prometheus registry for scraping and onto a CSV file
// for offline analysis. The CSV file is appended to and never rotated; each
// CSV row carries an engine-wide completed-rows-per-second value, the rate
// the original system's fps_counter.py also cared about.
package telemetry

import (
	"fmt"

	"github.com/ClusterCockpit/framesync/internal/codec"
	"github.com/ClusterCockpit/framesync/internal/rowsink"
	"github.com/ClusterCockpit/framesync/pkg/align"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics registers and updates the engine's live Prometheus series against
// a private registry (never the global default, so multiple Engines in the
// same process, e.g. in tests, never collide).
type Metrics struct {
	registry *prometheus.Registry

	completedRows  prometheus.Counter
	skippedTotal   prometheus.Counter
	skippedStream  *prometheus.CounterVec
	bufferLength   *prometheus.GaugeVec
	mailboxDropped *prometheus.CounterVec
	ingestThrottle *prometheus.CounterVec

	lastCompleted uint64
	lastSkipped   []uint64
}

// NewMetrics creates and registers metric series for an engine with the
// given number of streams, under the streamNames labels (falls back to a
// numeric index if shorter than numStreams).
func NewMetrics(numStreams int, streamNames []string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		completedRows: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: "framesync",
			Name:      "completed_rows_total",
			Help:      "Total number of aligned rows emitted by the alignment engine.",
		}),
		skippedTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: "framesync",
			Name:      "skipped_total",
			Help:      "Total number of entries discarded as part of row completion across all streams.",
		}),
		skippedStream: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "framesync",
			Name:      "skipped_per_stream_total",
			Help:      "Entries discarded as part of row completion, per stream.",
		}, []string{"stream"}),
		bufferLength: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "framesync",
			Name:      "buffer_length",
			Help:      "Current number of entries held in a stream's sorted buffer.",
		}, []string{"stream"}),
		mailboxDropped: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "framesync",
			Name:      "mailbox_dropped_total",
			Help:      "Rows dropped by a row sink mailbox on overflow.",
		}, []string{"sink", "policy"}),
		ingestThrottle: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "framesync",
			Name:      "ingest_throttled_total",
			Help:      "Frames dropped by the ingestion rate limiter before reaching the engine.",
		}, []string{"stream"}),
		lastSkipped: make([]uint64, numStreams),
	}

	for i := 0; i < numStreams; i++ {
		m.skippedStream.WithLabelValues(streamLabel(i, streamNames))
		m.bufferLength.WithLabelValues(streamLabel(i, streamNames))
	}

	return m
}

func streamLabel(i int, names []string) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("stream-%d", i)
}

// Registry exposes the private registry for promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe updates the counters and gauges from a fresh engine snapshot.
// Since prometheus.Counter only supports Add, and align.Stats carries
// cumulative totals, Observe adds only the delta since the last call.
func (m *Metrics) Observe(stats align.Stats, buffers []align.BufferSnapshot, streamNames []string) {
	if stats.CompletedRows > m.lastCompleted {
		m.completedRows.Add(float64(stats.CompletedRows - m.lastCompleted))
		m.lastCompleted = stats.CompletedRows
	}

	var totalDelta uint64
	for i, skipped := range stats.SkippedPerStream {
		if i >= len(m.lastSkipped) {
			break
		}
		if skipped > m.lastSkipped[i] {
			delta := skipped - m.lastSkipped[i]
			m.skippedStream.WithLabelValues(streamLabel(i, streamNames)).Add(float64(delta))
			totalDelta += delta
			m.lastSkipped[i] = skipped
		}
	}
	if totalDelta > 0 {
		m.skippedTotal.Add(float64(totalDelta))
	}

	for i, b := range buffers {
		m.bufferLength.WithLabelValues(streamLabel(i, streamNames)).Set(float64(b.Len))
	}
}

// ObserveMailbox records a mailbox's cumulative drop count as a delta, the
// same pattern Observe uses for engine stats.
func (m *Metrics) ObserveMailbox(mailbox *rowsink.Mailbox[codec.Frame], previouslyDropped uint64) uint64 {
	dropped := mailbox.Dropped()
	if dropped > previouslyDropped {
		m.mailboxDropped.WithLabelValues(mailbox.Name(), mailbox.Policy().String()).
			Add(float64(dropped - previouslyDropped))
	}
	return dropped
}

// ObserveThrottle records an ingestion rate-limiter's cumulative drop count
// for one stream as a delta.
func (m *Metrics) ObserveThrottle(streamName string, throttled, previouslyThrottled uint64) uint64 {
	if throttled > previouslyThrottled {
		m.ingestThrottle.WithLabelValues(streamName).Add(float64(throttled - previouslyThrottled))
	}
	return throttled
}
