/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records OpenTelemetry GenAI counters for flushed traces and
// Prometheus diagnostics for the logging pipeline itself.
package metrics
