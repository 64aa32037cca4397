// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-volumekey.
//
// go-volumekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for volume unlock
// operations: attempt counters by outcome, unlock latency, and metadata
// resolution counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all volumekey metrics
	Namespace = "volumekey"

	// Label names
	LabelStatus = "status"
	LabelKind   = "kind"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// UnlockAttempts counts unlock attempts by outcome status.
	UnlockAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unlock_attempts_total",
			Help:      "Total number of volume unlock attempts by status.",
		},
		[]string{LabelStatus},
	)

	// UnlockFailures counts unlock failures by error kind.
	UnlockFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unlock_failures_total",
			Help:      "Total number of failed volume unlock attempts by error kind.",
		},
		[]string{LabelKind},
	)

	// UnlockDuration observes end-to-end unlock latency, including any
	// interactive PIN prompting.
	UnlockDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "unlock_duration_seconds",
			Help:      "End-to-end duration of volume unlock attempts.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// MetadataResolutions counts automatic token metadata resolutions by
	// outcome status.
	MetadataResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "metadata_resolutions_total",
			Help:      "Total number of automatic token metadata resolutions by status.",
		},
		[]string{LabelStatus},
	)
)

// RecordUnlock records one unlock attempt. kind classifies the failure
// and is empty on success.
func RecordUnlock(kind string, duration time.Duration) {
	status := StatusSuccess
	if kind != "" {
		status = StatusError
		UnlockFailures.WithLabelValues(kind).Inc()
	}
	UnlockAttempts.WithLabelValues(status).Inc()
	UnlockDuration.Observe(duration.Seconds())
}

// RecordMetadataResolution records one automatic metadata resolution.
func RecordMetadataResolution(err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	MetadataResolutions.WithLabelValues(status).Inc()
}
