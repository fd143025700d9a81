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

package events

import (
	"context"
	"fmt"
)

// Sink receives events. Implementations must treat the envelopes as
// read-only.
type Sink interface {
	Write(ctx context.Context, e *Envelope) error
	WriteMany(ctx context.Context, batch []*Envelope) error
}

// Handler forwards events to an ordered list of sinks. The list is fixed at
// construction.
type Handler struct {
	sinks []Sink
}

// NewHandler creates a handler that writes to sinks in the given order.
func NewHandler(sinks ...Sink) *Handler {
	s := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			s = append(s, sink)
		}
	}
	return &Handler{sinks: s}
}

// Handle writes a single event to every sink. The first sink error is
// returned and later sinks are not called.
func (h *Handler) Handle(ctx context.Context, e *Envelope) error {
	for i, sink := range h.sinks {
		if err := sink.Write(ctx, e); err != nil {
			return fmt.Errorf("sink %d (%T) failed to write event %s: %w", i, sink, e.ID, err)
		}
	}
	return nil
}

// HandleMany writes a batch to every sink in input order. An empty batch is a
// no-op.
func (h *Handler) HandleMany(ctx context.Context, batch []*Envelope) error {
	if len(batch) == 0 {
		return nil
	}
	for i, sink := range h.sinks {
		if err := sink.WriteMany(ctx, batch); err != nil {
			return fmt.Errorf("sink %d (%T) failed to write %d events: %w", i, sink, len(batch), err)
		}
	}
	return nil
}
