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

// Package collect is the HTTP endpoint that accepts captured events and hands
// them to the configured sinks.
package collect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/org-event-integrations/pkg/version"
	"github.com/abcxyz/pkg/healthcheck"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
)

// BatchHandler hands a single-organization batch to the sinks.
type BatchHandler interface {
	HandleMany(ctx context.Context, batch []*events.Envelope) error
}

// Server provides the collect endpoint.
type Server struct {
	h             *renderer.Renderer
	handler       BatchHandler
	signingSecret []byte
	projectID     string

	now   func() time.Time
	newID func() string
}

// NewServer creates a new HTTP server implementation that will handle
// receiving event batches.
func NewServer(h *renderer.Renderer, handler BatchHandler, cfg *Config) (*Server, error) {
	if h == nil {
		return nil, errors.New("renderer is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	return &Server{
		h:             h,
		handler:       handler,
		signingSecret: []byte(cfg.SigningSecret),
		projectID:     cfg.ProjectID,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
	}, nil
}

// Routes creates a ServeMux of all of the routes that
// this Router supports.
func (s *Server) Routes(ctx context.Context) http.Handler {
	logger := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/healthz", healthcheck.HandleHTTPHealthCheck())
	mux.Handle("POST /events", s.handleEvents())
	mux.Handle("/version", s.handleVersion())

	// Middleware
	root := logging.HTTPInterceptor(logger, s.projectID)(mux)

	return root
}

// handleVersion is a simple http.HandlerFunc that responds
// with version information for the server.
func (s *Server) handleVersion() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.h.RenderJSON(w, http.StatusOK, map[string]string{"version": version.HumanVersion})
	})
}
