/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config reads SDK settings from the environment and builds the
// sink they describe.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-envconfig"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rungalileo/galileo-go/ingest"
	"github.com/rungalileo/galileo-go/logger"
	"github.com/rungalileo/galileo-go/metrics"
	"github.com/rungalileo/galileo-go/retry"
)

// ErrNoSink is returned when neither a Redis URL nor API credentials are
// configured.
var ErrNoSink = errors.New("no sink configured: set GALILEO_REDIS_URL or GALILEO_API_KEY and GALILEO_PROJECT")

// Config holds the environment settings.
type Config struct {
	APIKey     string `env:"GALILEO_API_KEY"`
	ConsoleURL string `env:"GALILEO_CONSOLE_URL,default=https://api.galileo.ai"`
	Project    string `env:"GALILEO_PROJECT"`
	LogStream  string `env:"GALILEO_LOG_STREAM"`

	// RedisURL selects the Redis sink over the HTTP client.
	RedisURL string `env:"GALILEO_REDIS_URL"`
	RedisKey string `env:"GALILEO_REDIS_KEY,default=galileo:traces"`

	MaxRetries int           `env:"GALILEO_MAX_RETRIES,default=3"`
	Timeout    time.Duration `env:"GALILEO_TIMEOUT,default=30s"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	return &cfg, nil
}

// LoadFrom reads the configuration through l.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	return &cfg, nil
}

// NewSink builds the sink cfg selects: a Redis list when RedisURL is set,
// the HTTP ingestion client otherwise.
func NewSink(ctx context.Context, cfg *Config) (ingest.Sink, error) {
	if cfg.RedisURL != "" {
		s, err := ingest.NewRedisSink(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, fmt.Errorf("creating redis sink: %w", err)
		}
		return s, nil
	}
	if cfg.APIKey == "" || cfg.Project == "" {
		return nil, ErrNoSink
	}

	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	opts := []ingest.ClientOption{
		ingest.WithRetryConfig(rc),
		ingest.WithLogStream(cfg.LogStream),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, ingest.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	c, err := ingest.NewClient(cfg.ConsoleURL, cfg.Project, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating ingestion client: %w", err)
	}
	return c, nil
}

// Metrics returns GenAI metrics whose recordings carry the configured
// project and log stream.
func Metrics(cfg *Config) *metrics.GenAI {
	m := metrics.NewGenAI(metrics.MeterName)
	m.SetAttributeEnricher(metrics.StaticAttributes(
		attribute.String("galileo.project", cfg.Project),
		attribute.String("galileo.log_stream", cfg.LogStream),
	))
	return m
}

// NewLogger creates a logger flushing into the sink cfg selects. opts are
// applied after the sink and metrics, so they may replace either.
func NewLogger(ctx context.Context, cfg *Config, opts ...logger.Option) (*logger.Logger, error) {
	sink, err := NewSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	base := []logger.Option{logger.WithSink(sink), logger.WithMetrics(Metrics(cfg))}
	return logger.New(ctx, append(base, opts...)...)
}
