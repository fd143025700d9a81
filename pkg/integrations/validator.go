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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// shape is a destination configuration that can check itself after
// decoding.
type shape interface {
	Validate() error
}

type shapeSpec struct {
	schema *jsonschema.Schema
	decode func() shape
}

// Validator decides whether a configuration may be persisted for an
// integration type. It never returns errors: anything malformed is invalid.
type Validator struct {
	rules        map[Type]*shapeSpec
	integrations map[Type]*shapeSpec
}

// NewValidator compiles the destination schemas.
func NewValidator() (*Validator, error) {
	compile := func(name, schema string) (*jsonschema.Schema, error) {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		schemaURL := fmt.Sprintf("https://schemas.event-integrations.local/%s.schema.json", name)
		if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("failed to load %s schema: %w", name, err)
		}
		compiled, err := c.Compile(schemaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		return compiled, nil
	}

	defs := []struct {
		name        string
		schema      string
		integration bool
		typ         Type
		decode      func() shape
	}{
		{"webhook", webhookSchema, false, TypeWebhook, func() shape { return &WebhookConfiguration{} }},
		{"slack", slackSchema, false, TypeSlack, func() shape { return &SlackConfiguration{} }},
		{"webhook-integration", webhookSchema, true, TypeWebhook, func() shape { return &WebhookConfiguration{} }},
		{"slack-integration", slackIntegrationSchema, true, TypeSlack, func() shape { return &SlackIntegration{} }},
		{"hec-integration", hecSchema, true, TypeHec, func() shape { return &HecIntegration{} }},
		{"datadog-integration", datadogSchema, true, TypeDatadog, func() shape { return &DatadogIntegration{} }},
		{"teams-integration", teamsIntegrationSchema, true, TypeTeams, func() shape { return &TeamsIntegration{} }},
	}

	v := &Validator{
		rules:        make(map[Type]*shapeSpec),
		integrations: make(map[Type]*shapeSpec),
	}
	for _, d := range defs {
		compiled, err := compile(d.name, d.schema)
		if err != nil {
			return nil, err
		}
		spec := &shapeSpec{schema: compiled, decode: d.decode}
		if d.integration {
			v.integrations[d.typ] = spec
		} else {
			v.rules[d.typ] = spec
		}
	}
	return v, nil
}

// Validate reports whether a delivery rule is acceptable for the integration
// type. A rule is rejected when its template is blank, when its filters are
// present but not a well-formed filter group, or when its destination
// configuration is missing, malformed or present where the type forbids one.
// Billing sync, SCIM and unknown types are always rejected.
func (v *Validator) Validate(t Type, c *Configuration) bool {
	if c == nil || strings.TrimSpace(c.Template) == "" {
		return false
	}
	if c.Filters != nil {
		if _, err := ParseFilterGroup(*c.Filters); err != nil {
			return false
		}
	}

	switch t {
	case TypeWebhook, TypeSlack:
		if c.Configuration == nil {
			return false
		}
		_, err := v.decodeShape(v.rules[t], *c.Configuration)
		return err == nil
	case TypeHec, TypeDatadog, TypeTeams:
		return c.Configuration == nil
	default:
		return false
	}
}

// ValidateIntegration reports whether an integration-level configuration is
// acceptable when an integration is created or updated directly. Slack and
// Teams credentials are only ever written by the OAuth flow.
func (v *Validator) ValidateIntegration(t Type, cfg *string) bool {
	switch t {
	case TypeHec, TypeDatadog:
		if cfg == nil {
			return false
		}
		_, err := v.decodeShape(v.integrations[t], *cfg)
		return err == nil
	case TypeWebhook:
		if cfg == nil {
			return true
		}
		_, err := v.decodeShape(v.integrations[t], *cfg)
		return err == nil
	case TypeSlack, TypeTeams:
		return cfg == nil
	default:
		return false
	}
}

// ValidateCredentials checks the integration-level configuration produced by
// the OAuth flow for Slack and Teams.
func (v *Validator) ValidateCredentials(t Type, cfg string) error {
	if !t.OAuth() {
		return fmt.Errorf("%s is not an oauth integration", t)
	}
	_, err := v.decodeShape(v.integrations[t], cfg)
	return err
}

func (v *Validator) decodeShape(spec *shapeSpec, raw string) (shape, error) {
	if spec == nil {
		return nil, errors.New("no shape registered")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := spec.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("configuration does not match schema: %w", err)
	}

	s := spec.decode()
	if err := json.Unmarshal([]byte(raw), s); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}
