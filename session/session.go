/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rungalileo/galileo-go/logger"
	"github.com/rungalileo/galileo-go/tracker"
)

var (
	// ErrIDAndName is returned by Get unless exactly one of id and name is
	// given.
	ErrIDAndName = errors.New("exactly one of session id and name must be provided")

	// ErrNotFound is returned by Get for an unknown session.
	ErrNotFound = errors.New("session not found")
)

// Session bundles the state one logical conversation logs through. It
// replaces any process-wide notion of a current trace: construct one per
// conversation and pass it, or a context carrying it, to adapters.
type Session struct {
	ID         string
	Name       string
	ExternalID string
	// PreviousID links a session to the one it continues.
	PreviousID string

	Logger  *logger.Logger
	Tracker *tracker.Tracker
}

type sessionKey struct{}

// WithSession returns a context carrying s and its logger.
func WithSession(ctx context.Context, s *Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey{}, s)
	if s != nil && s.Logger != nil {
		ctx = logger.WithLogger(ctx, s.Logger)
	}
	return ctx
}

// FromContext returns the Session carried by ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// StartOptions describe a new session.
type StartOptions struct {
	Name       string
	ExternalID string
	PreviousID string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLoggerOptions are applied to the logger of every session.
func WithLoggerOptions(opts ...logger.Option) Option {
	return func(r *Registry) { r.loggerOpts = append(r.loggerOpts, opts...) }
}

// WithTrackerOptions are applied to the tracker of every session.
func WithTrackerOptions(opts ...tracker.Option) Option {
	return func(r *Registry) { r.trackerOpts = append(r.trackerOpts, opts...) }
}

// Registry creates sessions and finds them again by id or name. It is
// safe for concurrent use.
type Registry struct {
	loggerOpts  []logger.Option
	trackerOpts []tracker.Option

	mu     sync.Mutex
	byID   map[string]*Session
	byName map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byID:   make(map[string]*Session),
		byName: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates a session with a fresh id and its own logger and tracker.
// Starting a name that is already registered replaces the earlier session
// for lookups by name.
func (r *Registry) Start(ctx context.Context, so StartOptions) (*Session, error) {
	id := uuid.NewString()
	opts := append([]logger.Option{
		logger.WithSessionID(id),
		logger.WithExternalID(so.ExternalID),
	}, r.loggerOpts...)
	l, err := logger.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating logger for session %q: %w", so.Name, err)
	}

	s := &Session{
		ID:         id,
		Name:       so.Name,
		ExternalID: so.ExternalID,
		PreviousID: so.PreviousID,
		Logger:     l,
		Tracker:    tracker.New(r.trackerOpts...),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = s
	if so.Name != "" {
		r.byName[so.Name] = s
	}
	clog.FromContext(ctx).Debug("Started session", "session_id", id, "name", so.Name, "previous_session_id", so.PreviousID)
	return s, nil
}

// Get returns the session with the given id or name. Exactly one of them
// must be non-empty.
func (r *Registry) Get(id, name string) (*Session, error) {
	if (id == "") == (name == "") {
		return nil, ErrIDAndName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" {
		if s, ok := r.byID[id]; ok {
			return s, nil
		}
		return nil, fmt.Errorf("session id %q: %w", id, ErrNotFound)
	}
	if s, ok := r.byName[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("session name %q: %w", name, ErrNotFound)
}

// Close flushes the session's logger and forgets the session.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		if r.byName[s.Name] == s {
			delete(r.byName, s.Name)
		}
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("session id %q: %w", id, ErrNotFound)
	}
	if _, err := s.Logger.Flush(ctx); err != nil {
		return fmt.Errorf("flushing session %q: %w", id, err)
	}
	return nil
}

// FlushAll flushes every session concurrently and returns the first error.
// Every session is flushed even when one fails.
func (r *Registry) FlushAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var eg errgroup.Group
	for _, s := range sessions {
		eg.Go(func() error {
			if _, err := s.Logger.Flush(ctx); err != nil {
				return fmt.Errorf("flushing session %q: %w", s.ID, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
