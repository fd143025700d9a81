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

// Package integrations holds the organization integration model, the
// destination shapes per integration type, filter evaluation, template
// rendering and configuration validation.
package integrations

import (
	"strings"
	"time"
)

// OrganizationIntegration is an organization's link to one external
// destination. Configuration holds the integration-level settings, such as
// credentials obtained through OAuth, and is nil until the integration has
// been set up.
type OrganizationIntegration struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Type           Type      `json:"type"`
	Configuration  *string   `json:"configuration,omitempty"`
	CreationDate   time.Time `json:"creation_date"`
	RevisionDate   time.Time `json:"revision_date"`
}

// Configured reports whether the integration-level configuration has been
// set.
func (i *OrganizationIntegration) Configured() bool {
	return i != nil && i.Configuration != nil && strings.TrimSpace(*i.Configuration) != ""
}

// Configuration is one delivery rule of an integration. A nil EventType
// matches every event.
type Configuration struct {
	ID                        string    `json:"id"`
	OrganizationIntegrationID string    `json:"organization_integration_id"`
	EventType                 *int      `json:"event_type,omitempty"`
	Configuration             *string   `json:"configuration,omitempty"`
	Filters                   *string   `json:"filters,omitempty"`
	Template                  string    `json:"template"`
	CreationDate              time.Time `json:"creation_date"`
	RevisionDate              time.Time `json:"revision_date"`
}

// ConfigurationDetails is a delivery rule joined with the integration it
// belongs to. It is the read model used when delivering events.
type ConfigurationDetails struct {
	ID                        string  `json:"id"`
	OrganizationID            string  `json:"organization_id"`
	OrganizationIntegrationID string  `json:"organization_integration_id"`
	IntegrationType           Type    `json:"integration_type"`
	EventType                 *int    `json:"event_type,omitempty"`
	Configuration             *string `json:"configuration,omitempty"`
	IntegrationConfiguration  *string `json:"integration_configuration,omitempty"`
	Filters                   *string `json:"filters,omitempty"`
	Template                  string  `json:"template"`
}
