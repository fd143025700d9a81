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

package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/logging"
)

// maxRuleBytes bounds a delivery rule request body.
const maxRuleBytes = 1 << 20

// integrationResponse omits the credentials stored on the integration.
type integrationResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Type           string    `json:"type"`
	RevisionDate   time.Time `json:"revision_date"`
}

// ruleRequest carries the destination and filters as inline JSON.
type ruleRequest struct {
	EventType     *int            `json:"event_type"`
	Configuration json.RawMessage `json:"configuration"`
	Filters       json.RawMessage `json:"filters"`
	Template      string          `json:"template"`
}

func (req *ruleRequest) configuration() *integrations.Configuration {
	return &integrations.Configuration{
		EventType:     req.EventType,
		Configuration: rawString(req.Configuration),
		Filters:       rawString(req.Filters),
		Template:      req.Template,
	}
}

// ParseRule decodes a delivery rule document in the shape the rule
// endpoints accept.
func ParseRule(b []byte) (*integrations.Configuration, error) {
	var req ruleRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, fmt.Errorf("failed to decode delivery rule: %w", err)
	}
	return req.configuration(), nil
}

func rawString(m json.RawMessage) *string {
	trimmed := bytes.TrimSpace(m)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	s := string(trimmed)
	return &s
}

func (s *Server) handleRedirect() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := integrations.ParseType(r.PathValue("type"))
		if err != nil {
			s.renderError(w, r, errNotFound)
			return
		}

		u, err := s.setup.RedirectURL(r.Context(), r.PathValue("orgID"), t, s.callbackURL(t))
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
	})
}

func (s *Server) handleCreate() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		t, err := integrations.ParseType(r.PathValue("type"))
		if err != nil {
			s.renderError(w, r, errNotFound)
			return
		}

		q := r.URL.Query()
		integration, err := s.setup.Complete(ctx, t, q.Get("code"), q.Get("state"), s.callbackURL(t))
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		s.h.RenderJSON(w, http.StatusCreated, &integrationResponse{
			ID:             integration.ID,
			OrganizationID: integration.OrganizationID,
			Type:           integration.Type.String(),
			RevisionDate:   integration.RevisionDate,
		})
	})
}

func (s *Server) handleCreateRule() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decodeRule(w, r)
		if !ok {
			return
		}

		rule, err := s.rules.Create(r.Context(), r.PathValue("orgID"), r.PathValue("integrationID"), req.configuration())
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		s.h.RenderJSON(w, http.StatusCreated, rule)
	})
}

func (s *Server) handleUpdateRule() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decodeRule(w, r)
		if !ok {
			return
		}

		rule, err := s.rules.Update(r.Context(), r.PathValue("orgID"), r.PathValue("integrationID"), r.PathValue("configurationID"), req.configuration())
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		s.h.RenderJSON(w, http.StatusOK, rule)
	})
}

func (s *Server) handleDeleteRule() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.rules.Delete(r.Context(), r.PathValue("orgID"), r.PathValue("integrationID"), r.PathValue("configurationID")); err != nil {
			s.renderError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) decodeRule(w http.ResponseWriter, r *http.Request) (*ruleRequest, bool) {
	ctx := r.Context()

	var req ruleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRuleBytes)).Decode(&req); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to decode delivery rule",
			"code", http.StatusBadRequest,
			"error", err)
		s.h.RenderJSON(w, http.StatusBadRequest, errMalformedBody)
		return nil, false
	}
	return &req, true
}
