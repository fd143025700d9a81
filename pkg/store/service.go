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

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/logging"
)

// ConfigurationService creates, updates and deletes delivery rules on behalf
// of an organization. Every change is validated before it is persisted and
// drops the cached rules of the integration.
type ConfigurationService struct {
	integrations   IntegrationRepository
	configurations ConfigurationRepository
	validator      *integrations.Validator
	invalidator    Invalidator
	now            func() time.Time
}

// NewConfigurationService creates a service. The invalidator may be nil when
// no cache is in use.
func NewConfigurationService(ir IntegrationRepository, cr ConfigurationRepository, v *integrations.Validator, inv Invalidator) *ConfigurationService {
	return &ConfigurationService{
		integrations:   ir,
		configurations: cr,
		validator:      v,
		invalidator:    inv,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a delivery rule to the organization's integration.
func (s *ConfigurationService) Create(ctx context.Context, orgID, integrationID string, c *integrations.Configuration) (*integrations.Configuration, error) {
	integration, err := s.ownedIntegration(ctx, orgID, integrationID)
	if err != nil {
		return nil, err
	}

	rule, err := s.normalize(integration.Type, c)
	if err != nil {
		return nil, err
	}
	now := s.now()
	rule.ID = uuid.New().String()
	rule.OrganizationIntegrationID = integration.ID
	rule.CreationDate = now
	rule.RevisionDate = now

	if err := s.configurations.CreateConfiguration(ctx, rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx, integration)
	return rule, nil
}

// Update replaces the rule's event type, destination, filters and template.
func (s *ConfigurationService) Update(ctx context.Context, orgID, integrationID, configurationID string, c *integrations.Configuration) (*integrations.Configuration, error) {
	integration, err := s.ownedIntegration(ctx, orgID, integrationID)
	if err != nil {
		return nil, err
	}
	existing, err := s.ownedConfiguration(ctx, integration, configurationID)
	if err != nil {
		return nil, err
	}

	rule, err := s.normalize(integration.Type, c)
	if err != nil {
		return nil, err
	}
	rule.ID = existing.ID
	rule.OrganizationIntegrationID = existing.OrganizationIntegrationID
	rule.CreationDate = existing.CreationDate
	rule.RevisionDate = s.now()

	if err := s.configurations.UpdateConfiguration(ctx, rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx, integration)
	return rule, nil
}

// Delete removes a delivery rule.
func (s *ConfigurationService) Delete(ctx context.Context, orgID, integrationID, configurationID string) error {
	integration, err := s.ownedIntegration(ctx, orgID, integrationID)
	if err != nil {
		return err
	}
	if _, err := s.ownedConfiguration(ctx, integration, configurationID); err != nil {
		return err
	}

	if err := s.configurations.DeleteConfiguration(ctx, configurationID); err != nil {
		return err
	}
	s.invalidate(ctx, integration)
	return nil
}

func (s *ConfigurationService) ownedIntegration(ctx context.Context, orgID, integrationID string) (*integrations.OrganizationIntegration, error) {
	integration, err := s.integrations.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(integration.OrganizationID, orgID) {
		return nil, ErrNotFound
	}
	return integration, nil
}

func (s *ConfigurationService) ownedConfiguration(ctx context.Context, integration *integrations.OrganizationIntegration, configurationID string) (*integrations.Configuration, error) {
	existing, err := s.configurations.GetConfiguration(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	if existing.OrganizationIntegrationID != integration.ID {
		return nil, ErrNotFound
	}
	return existing, nil
}

// normalize validates a rule and returns a copy with a trimmed template and
// compacted JSON blobs.
func (s *ConfigurationService) normalize(t integrations.Type, c *integrations.Configuration) (*integrations.Configuration, error) {
	if !s.validator.Validate(t, c) {
		return nil, ErrInvalidConfiguration
	}

	rule := &integrations.Configuration{
		EventType: c.EventType,
		Template:  strings.TrimSpace(c.Template),
	}
	var err error
	if rule.Configuration, err = compact(c.Configuration); err != nil {
		return nil, err
	}
	if rule.Filters, err = compact(c.Filters); err != nil {
		return nil, err
	}
	return rule, nil
}

func compact(s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(*s)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	v := buf.String()
	return &v, nil
}

func (s *ConfigurationService) invalidate(ctx context.Context, integration *integrations.OrganizationIntegration) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, integration.OrganizationID, integration.Type); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to invalidate cached configuration details",
			"organization_id", integration.OrganizationID,
			"integration_type", integration.Type.String(),
			"error", err)
	}
}
