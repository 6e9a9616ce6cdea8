/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKey is the list batches are pushed onto.
	DefaultRedisKey = "galileo:traces"

	redisConnectTimeout = 10 * time.Second
	redisReadTimeout    = 5 * time.Second
	redisWriteTimeout   = 5 * time.Second
)

// RedisSink queues JSON batches on a Redis list for a separate ingestion
// worker to consume.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink connects to redisURL and verifies the connection. An empty
// key selects DefaultRedisKey.
func NewRedisSink(ctx context.Context, redisURL, key string) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.DialTimeout = redisConnectTimeout
	opts.ReadTimeout = redisReadTimeout
	opts.WriteTimeout = redisWriteTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis (timeout: %v): %w", redisConnectTimeout, err)
	}

	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key}, nil
}

// SinkName implements Named.
func (s *RedisSink) SinkName() string { return "redis" }

// Key returns the list the sink pushes onto.
func (s *RedisSink) Key() string { return s.key }

// Ingest implements Sink.
func (s *RedisSink) Ingest(ctx context.Context, req *Request) error {
	data, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("failed to publish traces: %w", err)
	}
	return nil
}

// IngestAsync implements AsyncSink.
func (s *RedisSink) IngestAsync(ctx context.Context, req *Request) <-chan error {
	return async(ctx, s, req)
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
