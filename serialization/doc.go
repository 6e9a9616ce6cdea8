/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package serialization renders arbitrary Go values as JSON-safe data for
// span inputs, outputs and metadata. Conversion never fails: cycles become a
// type-name placeholder, integers beyond the float64-safe range become
// strings, and values that cannot be represented become a bracketed type name.
package serialization
