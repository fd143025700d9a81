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

// Package store persists organization integrations and their delivery rules
// and serves the rules to the delivery workers.
package store

import (
	"context"
	"errors"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
)

var (
	// ErrNotFound is returned when a record does not exist or does not belong
	// to the requesting organization.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfiguration is returned when a delivery rule fails
	// validation.
	ErrInvalidConfiguration = errors.New("invalid integration configuration")
)

// DetailsReader lists the delivery rules that apply to an event. A nil
// eventType lists only the catch-all rules.
type DetailsReader interface {
	ListDetails(ctx context.Context, orgID string, t integrations.Type, eventType *int) ([]*integrations.ConfigurationDetails, error)
}

// IntegrationDetailsLister lists every delivery rule of one organization
// integration pair regardless of event type.
type IntegrationDetailsLister interface {
	ListIntegrationDetails(ctx context.Context, orgID string, t integrations.Type) ([]*integrations.ConfigurationDetails, error)
}

// IntegrationRepository persists organization integrations.
type IntegrationRepository interface {
	GetIntegration(ctx context.Context, id string) (*integrations.OrganizationIntegration, error)
	GetIntegrationByOrganizationAndType(ctx context.Context, orgID string, t integrations.Type) (*integrations.OrganizationIntegration, error)
	CreateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error
	UpdateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error
}

// ConfigurationRepository persists delivery rules.
type ConfigurationRepository interface {
	GetConfiguration(ctx context.Context, id string) (*integrations.Configuration, error)
	CreateConfiguration(ctx context.Context, c *integrations.Configuration) error
	UpdateConfiguration(ctx context.Context, c *integrations.Configuration) error
	DeleteConfiguration(ctx context.Context, id string) error
}

// Invalidator drops cached delivery rules of an organization integration
// pair.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID string, t integrations.Type) error
}

// matchesEventType reports whether a rule applies to the event type.
func matchesEventType(d *integrations.ConfigurationDetails, eventType *int) bool {
	if d.EventType == nil {
		return true
	}
	return eventType != nil && *d.EventType == *eventType
}
