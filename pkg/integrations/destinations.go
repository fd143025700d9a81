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

package integrations

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// WebhookConfiguration is the rule-level destination of a webhook
// integration.
type WebhookConfiguration struct {
	URL    string `json:"url"`
	Scheme string `json:"scheme,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Validate checks the webhook destination.
func (c *WebhookConfiguration) Validate() error {
	return validateHTTPURL("url", c.URL)
}

// SlackConfiguration is the rule-level destination of a Slack integration.
type SlackConfiguration struct {
	ChannelID string `json:"channel_id"`
}

// Validate checks the Slack destination.
func (c *SlackConfiguration) Validate() error {
	if strings.TrimSpace(c.ChannelID) == "" {
		return errors.New("channel_id is required")
	}
	return nil
}

// SlackIntegration is the integration-level configuration stored after the
// Slack OAuth flow completes.
type SlackIntegration struct {
	Token string `json:"token"`
}

// Validate checks the Slack credentials.
func (c *SlackIntegration) Validate() error {
	if c.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

// HecIntegration is the integration-level configuration of a Splunk HTTP
// event collector.
type HecIntegration struct {
	URI    string `json:"uri"`
	Scheme string `json:"scheme,omitempty"`
	Token  string `json:"token"`
}

// Validate checks the HEC destination.
func (c *HecIntegration) Validate() error {
	var merr error
	if err := validateHTTPURL("uri", c.URI); err != nil {
		merr = errors.Join(merr, err)
	}
	if c.Token == "" {
		merr = errors.Join(merr, errors.New("token is required"))
	}
	return merr
}

// DatadogIntegration is the integration-level configuration of a Datadog
// events endpoint.
type DatadogIntegration struct {
	URI    string `json:"uri"`
	APIKey string `json:"api_key"`
}

// Validate checks the Datadog destination.
func (c *DatadogIntegration) Validate() error {
	var merr error
	if err := validateHTTPURL("uri", c.URI); err != nil {
		merr = errors.Join(merr, err)
	}
	if c.APIKey == "" {
		merr = errors.Join(merr, errors.New("api_key is required"))
	}
	return merr
}

// TeamsIntegration is the integration-level configuration stored after the
// Teams OAuth flow completes.
type TeamsIntegration struct {
	TenantID   string `json:"tenant_id"`
	ServiceURL string `json:"service_url,omitempty"`
	ChannelID  string `json:"channel_id,omitempty"`
}

// Validate checks the Teams tenant binding.
func (c *TeamsIntegration) Validate() error {
	if c.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid url: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

// Schemas of the rule-level destinations.
const (
	webhookSchema = `{
  "type": "object",
  "required": ["url"],
  "properties": {
    "url": {"type": "string", "minLength": 1},
    "scheme": {"type": ["string", "null"]},
    "token": {"type": ["string", "null"]}
  }
}`

	slackSchema = `{
  "type": "object",
  "required": ["channel_id"],
  "properties": {
    "channel_id": {"type": "string", "minLength": 1}
  }
}`

	hecSchema = `{
  "type": "object",
  "required": ["uri", "token"],
  "properties": {
    "uri": {"type": "string", "minLength": 1},
    "scheme": {"type": ["string", "null"]},
    "token": {"type": "string", "minLength": 1}
  }
}`

	datadogSchema = `{
  "type": "object",
  "required": ["uri", "api_key"],
  "properties": {
    "uri": {"type": "string", "minLength": 1},
    "api_key": {"type": "string", "minLength": 1}
  }
}`

	slackIntegrationSchema = `{
  "type": "object",
  "required": ["token"],
  "properties": {
    "token": {"type": "string", "minLength": 1}
  }
}`

	teamsIntegrationSchema = `{
  "type": "object",
  "required": ["tenant_id"],
  "properties": {
    "tenant_id": {"type": "string", "minLength": 1},
    "service_url": {"type": ["string", "null"]},
    "channel_id": {"type": ["string", "null"]}
  }
}`
)
