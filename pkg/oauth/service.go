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

// Package oauth sets up integrations that obtain their credentials through
// an OAuth authorization code flow.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/org-event-integrations/pkg/oauthstate"
	"github.com/abcxyz/org-event-integrations/pkg/store"
	"github.com/abcxyz/pkg/logging"
)

var (
	// ErrNotFound is returned for every state or ownership failure so callers
	// cannot tell them apart.
	ErrNotFound = errors.New("integration not found")

	// ErrConflict is returned when the organization already has a configured
	// integration of the type.
	ErrConflict = errors.New("integration already exists")

	// ErrBadRequest is returned for a missing code or a provider response
	// without usable credentials.
	ErrBadRequest = errors.New("bad oauth request")
)

// Exchanger is the provider side of the flow.
type Exchanger interface {
	// AuthCodeURL returns the provider authorize URL. The callback URL must
	// be identical to the one later passed to Exchange.
	AuthCodeURL(state, callbackURL string) string

	// Exchange trades the code for the integration-level configuration JSON.
	Exchange(ctx context.Context, code, callbackURL string) (string, error)
}

// Option configures a Service.
type Option func(s *Service)

// WithValidator checks provider credentials against the integration shape
// before they are stored.
func WithValidator(v *integrations.Validator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// Service runs the redirect and completion legs of the flow.
type Service struct {
	repo       store.IntegrationRepository
	codec      *oauthstate.Codec
	exchangers map[integrations.Type]Exchanger
	validator  *integrations.Validator

	now   func() time.Time
	newID func() string
}

// NewService creates a service. Only the types present in exchangers can be
// set up.
func NewService(repo store.IntegrationRepository, codec *oauthstate.Codec, exchangers map[integrations.Type]Exchanger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("integration repository is required")
	}
	if codec == nil {
		return nil, errors.New("state codec is required")
	}
	s := &Service{
		repo:       repo,
		codec:      codec,
		exchangers: exchangers,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Types returns the integration types the service can set up.
func (s *Service) Types() []integrations.Type {
	var out []integrations.Type
	for _, t := range integrations.DeliveryTypes {
		if _, ok := s.exchangers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// RedirectURL prepares the organization's integration of type t and returns
// the provider URL the user is sent to. An integration that exists but was
// never configured is reused.
func (s *Service) RedirectURL(ctx context.Context, orgID string, t integrations.Type, callbackURL string) (string, error) {
	exchanger, ok := s.exchangers[t]
	if !ok {
		return "", fmt.Errorf("%w: %s does not use oauth", ErrBadRequest, t)
	}

	integration, err := s.repo.GetIntegrationByOrganizationAndType(ctx, orgID, t)
	switch {
	case errors.Is(err, store.ErrNotFound):
		now := s.now()
		integration = &integrations.OrganizationIntegration{
			ID:             s.newID(),
			OrganizationID: orgID,
			Type:           t,
			CreationDate:   now,
			RevisionDate:   now,
		}
		if err := s.repo.CreateIntegration(ctx, integration); err != nil {
			return "", fmt.Errorf("failed to create %s integration: %w", t, err)
		}
	case err != nil:
		return "", fmt.Errorf("failed to look up %s integration: %w", t, err)
	case integration.Configured():
		return "", ErrConflict
	}

	state := s.codec.FromIntegration(integration)
	u := exchanger.AuthCodeURL(state.String(), callbackURL)
	if u == "" {
		return "", ErrNotFound
	}
	return u, nil
}

// Complete verifies the state, exchanges the code and stores the resulting
// credentials on the integration.
func (s *Service) Complete(ctx context.Context, t integrations.Type, code, rawState, callbackURL string) (*integrations.OrganizationIntegration, error) {
	logger := logging.FromContext(ctx)

	exchanger, ok := s.exchangers[t]
	if !ok {
		return nil, ErrNotFound
	}

	state := s.codec.FromString(rawState)
	if state == nil {
		return nil, ErrNotFound
	}

	integration, err := s.repo.GetIntegration(ctx, state.IntegrationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to load integration for oauth completion",
				"integration_id", state.IntegrationID,
				"error", err)
		}
		return nil, ErrNotFound
	}
	if integration.Type != t || integration.Configured() || !state.ValidateOrg(integration.OrganizationID) {
		return nil, ErrNotFound
	}

	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrBadRequest)
	}

	cfg, err := exchanger.Exchange(ctx, code, callbackURL)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange %s code: %w", t, err)
	}
	if cfg == "" {
		return nil, fmt.Errorf("%w: provider returned no credentials", ErrBadRequest)
	}
	if s.validator != nil {
		if err := s.validator.ValidateCredentials(t, cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
	}

	integration.Configuration = &cfg
	integration.RevisionDate = s.now()
	if err := s.repo.UpdateIntegration(ctx, integration); err != nil {
		return nil, fmt.Errorf("failed to store %s credentials: %w", t, err)
	}

	logger.InfoContext(ctx, "integration configured",
		"integration_id", integration.ID,
		"organization_id", integration.OrganizationID,
		"integration_type", t.String())
	return integration, nil
}
