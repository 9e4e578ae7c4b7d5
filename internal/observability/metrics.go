// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridwatch_lines_read_total",
		Help: "Non-empty lines read from the device stream",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridwatch_decode_errors_total",
		Help: "Lines dropped because they could not be decoded",
	})
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridwatch_frames_decoded_total",
		Help: "Telemetry frames decoded",
	})
	MatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridwatch_match_outcomes_total",
		Help: "Match attempts by outcome (no_fix, no_assets, out_of_range, matched, registry_error)",
	}, []string{"outcome"})
	MergeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridwatch_merge_outcomes_total",
		Help: "Merge attempts by outcome (ok, not_found, error)",
	}, []string{"outcome"})
	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridwatch_match_distance_meters",
		Help:    "Distance between telemetry fix and matched pole",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 40, 50, 100},
	})
	ProcessLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridwatch_process_latency_seconds",
		Help:    "Time from line read to last publish for one frame",
		Buckets: prometheus.DefBuckets,
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridwatch_subscribers",
		Help: "Live subscribers attached to the broadcast hub",
	})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridwatch_events_dropped_total",
		Help: "Events not delivered to a subscriber, by reason (queue_full, send_error)",
	}, []string{"reason"})
	StreamFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridwatch_stream_faults_total",
		Help: "Device stream faults that ended a reader",
	})
)

func ObserveProcessLatency(start time.Time) {
	ProcessLatency.Observe(time.Since(start).Seconds())
}

// StartMetricsServer serves /metrics on its own port; it blocks.
func StartMetricsServer(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(":"+port, mux)
}
