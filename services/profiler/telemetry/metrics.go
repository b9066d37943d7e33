// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry holds the profiler's tracer, meter and metric
// instruments. Instruments are created lazily and shared process-wide.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for profiler operations.
var (
	tracer = otel.Tracer("treescope.profiler")
	meter  = otel.Meter("treescope.profiler")
)

// Metric instruments.
var (
	messagesReceived metric.Int64Counter
	messagesDropped  metric.Int64Counter
	nodesBuilt       metric.Int64Counter
	layoutPasses     metric.Int64Counter
	frameBytes       metric.Int64Histogram
	analysisLatency  metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		messagesReceived, err = meter.Int64Counter(
			"profiler_messages_received_total",
			metric.WithDescription("Solver messages received, by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		messagesDropped, err = meter.Int64Counter(
			"profiler_messages_dropped_total",
			metric.WithDescription("Messages dropped due to errors or inconsistencies"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesBuilt, err = meter.Int64Counter(
			"profiler_nodes_built_total",
			metric.WithDescription("Tree nodes materialized by builders"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		layoutPasses, err = meter.Int64Counter(
			"profiler_layout_passes_total",
			metric.WithDescription("Layout recompute passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		frameBytes, err = meter.Int64Histogram(
			"profiler_frame_bytes",
			metric.WithDescription("Size of received frames"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analysisLatency, err = meter.Float64Histogram(
			"profiler_analysis_duration_seconds",
			metric.WithDescription("Duration of tree analyses"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// StartSpan opens a span under the profiler tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordMessage counts one received message of the given kind.
func RecordMessage(ctx context.Context, kind string, size int) {
	if initMetrics() != nil {
		return
	}
	messagesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	frameBytes.Record(ctx, int64(size))
}

// RecordDrop counts one dropped message with a reason.
func RecordDrop(ctx context.Context, reason string) {
	if initMetrics() != nil {
		return
	}
	messagesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordNodeBuilt counts one materialized node.
func RecordNodeBuilt(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	nodesBuilt.Add(ctx, 1)
}

// RecordLayoutPass counts one layout recompute pass.
func RecordLayoutPass(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	layoutPasses.Add(ctx, 1)
}

// RecordAnalysis records an analysis run with its duration.
func RecordAnalysis(ctx context.Context, name string, d time.Duration) {
	if initMetrics() != nil {
		return
	}
	analysisLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("analysis", name)))
}
