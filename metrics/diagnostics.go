/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orphanEndCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galileo_orphan_end_events_total",
			Help: "End events received for run ids that were never started",
		},
		[]string{"integration"},
	)

	rootReplacedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galileo_root_replaced_total",
			Help: "Parentless runs started while another root run was still open",
		},
		[]string{"integration"},
	)

	flushFailureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galileo_flush_failures_total",
			Help: "Flushes whose sink returned an error",
		},
		[]string{"sink"},
	)

	flushedTracesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galileo_flushed_traces_total",
			Help: "Traces handed to a sink",
		},
		[]string{"sink"},
	)
)

// OrphanEnd counts an end event for an unknown run id
func OrphanEnd(integration string) {
	orphanEndCounter.With(prometheus.Labels{"integration": integration}).Inc()
}

// RootReplaced counts a root run displaced by a later parentless run
func RootReplaced(integration string) {
	rootReplacedCounter.With(prometheus.Labels{"integration": integration}).Inc()
}

// FlushFailed counts a failed flush
func FlushFailed(sink string) {
	flushFailureCounter.With(prometheus.Labels{"sink": sink}).Inc()
}

// Flushed counts traces handed to a sink
func Flushed(sink string, n int) {
	flushedTracesCounter.With(prometheus.Labels{"sink": sink}).Add(float64(n))
}
