/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ingest

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type fanout struct {
	sinks []Sink
}

// Fanout returns a sink that hands each batch to all sinks in parallel and
// joins their errors.
func Fanout(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &fanout{sinks: out}
}

func (f *fanout) SinkName() string { return "fanout" }

func (f *fanout) Ingest(ctx context.Context, req *Request) error {
	errs := make([]error, len(f.sinks))
	g := new(errgroup.Group)
	for i, s := range f.sinks {
		g.Go(func() error {
			if err := s.Ingest(ctx, req); err != nil {
				errs[i] = fmt.Errorf("%s: %w", Name(s), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
