/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adk

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/rungalileo/galileo-go/providers"
)

var (
	leadingStatus  = regexp.MustCompile(`^(\d{3})\s`)
	embeddedStatus = regexp.MustCompile(`(?i)(?:HTTP\s*|status[:\s]+)(\d{3})\b`)
)

func isHTTPStatus(code int) bool { return code >= 100 && code <= 599 }

// statusCode derives the HTTP status of a failed call. It consults vendor
// API errors, StatusCode or Code methods, and the error text, defaulting
// to 500.
func statusCode(err error) int {
	if err == nil {
		return 500
	}
	if code, ok := providers.StatusCode(err); ok && isHTTPStatus(code) {
		return code
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) && isHTTPStatus(coded.Code()) {
		return coded.Code()
	}
	var status interface{ StatusCode() int }
	if errors.As(err, &status) && isHTTPStatus(status.StatusCode()) {
		return status.StatusCode()
	}

	msg := err.Error()
	for _, re := range []*regexp.Regexp{leadingStatus, embeddedStatus} {
		if m := re.FindStringSubmatch(msg); m != nil {
			if code, err := strconv.Atoi(m[1]); err == nil && isHTTPStatus(code) {
				return code
			}
		}
	}
	return 500
}

// isFatal reports whether a model error aborts the run. These statuses are
// not retried, so the partial trace is committed right away.
func isFatal(code int) bool {
	switch code {
	case 401, 403, 429:
		return true
	}
	return false
}
