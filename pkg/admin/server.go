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

// Package admin serves the organization facing endpoints that set up
// integrations and manage their delivery rules.
package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/org-event-integrations/pkg/oauth"
	"github.com/abcxyz/org-event-integrations/pkg/store"
	"github.com/abcxyz/org-event-integrations/pkg/version"
	"github.com/abcxyz/pkg/healthcheck"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
)

// Setup runs the OAuth flow of chat integrations.
type Setup interface {
	RedirectURL(ctx context.Context, orgID string, t integrations.Type, callbackURL string) (string, error)
	Complete(ctx context.Context, t integrations.Type, code, state, callbackURL string) (*integrations.OrganizationIntegration, error)
}

// Rules manages the delivery rules of an integration.
type Rules interface {
	Create(ctx context.Context, orgID, integrationID string, c *integrations.Configuration) (*integrations.Configuration, error)
	Update(ctx context.Context, orgID, integrationID, configurationID string, c *integrations.Configuration) (*integrations.Configuration, error)
	Delete(ctx context.Context, orgID, integrationID, configurationID string) error
}

// Server provides the admin endpoints.
type Server struct {
	h           *renderer.Renderer
	setup       Setup
	rules       Rules
	callbackURL func(t integrations.Type) string
	projectID   string
}

// NewServer creates the admin server. The callbackURL function must return
// the same URL for a type on every call.
func NewServer(h *renderer.Renderer, setup Setup, rules Rules, callbackURL func(t integrations.Type) string, projectID string) (*Server, error) {
	if h == nil {
		return nil, errors.New("renderer is required")
	}
	if setup == nil || callbackURL == nil {
		return nil, errors.New("oauth setup is required")
	}
	if rules == nil {
		return nil, errors.New("rule service is required")
	}
	return &Server{
		h:           h,
		setup:       setup,
		rules:       rules,
		callbackURL: callbackURL,
		projectID:   projectID,
	}, nil
}

// Routes creates a ServeMux of all of the routes that
// this Router supports.
func (s *Server) Routes(ctx context.Context) http.Handler {
	logger := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/healthz", healthcheck.HandleHTTPHealthCheck())
	mux.Handle("/version", s.handleVersion())

	mux.Handle("GET /organizations/{orgID}/integrations/{type}/redirect", s.handleRedirect())
	mux.Handle("GET /integrations/{type}/create", s.handleCreate())

	mux.Handle("POST /organizations/{orgID}/integrations/{integrationID}/configurations", s.handleCreateRule())
	mux.Handle("PUT /organizations/{orgID}/integrations/{integrationID}/configurations/{configurationID}", s.handleUpdateRule())
	mux.Handle("DELETE /organizations/{orgID}/integrations/{integrationID}/configurations/{configurationID}", s.handleDeleteRule())

	// Middleware
	root := logging.HTTPInterceptor(logger, s.projectID)(mux)

	return root
}

func (s *Server) handleVersion() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.h.RenderJSON(w, http.StatusOK, map[string]string{"version": version.HumanVersion})
	})
}

var (
	errNotFound      = errors.New("not found")
	errConflict      = errors.New("integration already exists")
	errBadRequest    = errors.New("bad request")
	errInvalidRule   = errors.New("invalid integration configuration")
	errInternal      = errors.New("internal error")
	errMalformedBody = errors.New("request body is not a configuration")
)

// renderError maps service errors to a status code. Details stay in the log.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	code, body := http.StatusInternalServerError, errInternal
	switch {
	case errors.Is(err, oauth.ErrNotFound), errors.Is(err, store.ErrNotFound):
		code, body = http.StatusNotFound, errNotFound
	case errors.Is(err, oauth.ErrConflict):
		code, body = http.StatusConflict, errConflict
	case errors.Is(err, oauth.ErrBadRequest):
		code, body = http.StatusBadRequest, errBadRequest
	case errors.Is(err, store.ErrInvalidConfiguration):
		code, body = http.StatusBadRequest, errInvalidRule
	}

	logging.FromContext(ctx).ErrorContext(ctx, "admin request failed",
		"code", code,
		"path", r.URL.Path,
		"error", err)
	s.h.RenderJSON(w, code, body)
}
