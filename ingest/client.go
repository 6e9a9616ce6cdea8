/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/rungalileo/galileo-go/retry"
)

// APIKeyHeader carries the API key on ingestion requests.
const APIKeyHeader = "Galileo-API-Key"

// Client posts batches to the hosted ingestion API.
type Client struct {
	endpoint  string
	apiKey    string
	logStream string
	http      *http.Client
	retry     retry.Config
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRetryConfig replaces the default retry configuration.
func WithRetryConfig(cfg retry.Config) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithLogStream names the log stream batches are written to when the request
// does not name one.
func WithLogStream(name string) ClientOption {
	return func(c *Client) { c.logStream = name }
}

// NewClient returns a client for the project at baseURL.
func NewClient(baseURL, project, apiKey string, opts ...ClientOption) (*Client, error) {
	if project == "" {
		return nil, errors.New("project is required")
	}
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	c := &Client{
		endpoint: u.JoinPath("v2", "projects", project, "traces").String(),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		retry:    retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return c, nil
}

// SinkName implements Named.
func (c *Client) SinkName() string { return "http" }

// Ingest implements Sink.
func (c *Client) Ingest(ctx context.Context, req *Request) error {
	if c.logStream != "" && req.LogStream == "" {
		clone := *req
		clone.LogStream = c.logStream
		req = &clone
	}
	body, err := EncodeRequest(req)
	if err != nil {
		return err
	}

	_, err = retry.RetryWithBackoff(ctx, c.retry, "ingest traces", retry.IsRetryable, func() (struct{}, error) {
		return struct{}{}, c.post(ctx, body)
	})
	if err != nil {
		return err
	}
	clog.FromContext(ctx).With("traces", len(req.Traces)).Debug("Ingested traces")
	return nil
}

// IngestAsync implements AsyncSink.
func (c *Client) IngestAsync(ctx context.Context, req *Request) <-chan error {
	return async(ctx, c, req)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := c.http.Do(hreq)
	if err != nil {
		return fmt.Errorf("posting traces: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &retry.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}
