// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package listener

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abcxyz/pkg/logging"
)

// DefaultShutdownTimeout bounds how long the supervisor waits for workers to
// stop.
const DefaultShutdownTimeout = 15 * time.Second

// Supervisor runs a set of workers for the lifetime of a context.
type Supervisor struct {
	workers         []*Worker
	shutdownTimeout time.Duration
}

// NewSupervisor creates a supervisor. A non-positive timeout uses
// DefaultShutdownTimeout.
func NewSupervisor(shutdownTimeout time.Duration, workers ...*Worker) *Supervisor {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Supervisor{workers: workers, shutdownTimeout: shutdownTimeout}
}

// Run starts every worker and blocks until ctx is done, then stops them. If
// any worker fails to start, the workers that did start are stopped and the
// start error is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		g.Go(func() error {
			return w.Start(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		if stopErr := s.stopAll(ctx); stopErr != nil {
			logger.WarnContext(ctx, "failed to stop workers after start failure", "error", stopErr)
		}
		return fmt.Errorf("failed to start workers: %w", err)
	}
	logger.InfoContext(ctx, "all workers running", "workers", len(s.workers))

	<-ctx.Done()
	return s.stopAll(ctx)
}

func (s *Supervisor) stopAll(parent context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.shutdownTimeout)
	defer cancel()

	var g errgroup.Group
	for _, w := range s.workers {
		g.Go(func() error {
			return w.Stop(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to stop workers: %w", err)
	}
	return nil
}
