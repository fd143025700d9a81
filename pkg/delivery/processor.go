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

// Package delivery turns bus messages into rendered integration messages and
// hands them to the sender of the integration type.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/org-event-integrations/pkg/store"
	"github.com/abcxyz/pkg/logging"
)

// Message is one rendered delivery for one rule.
type Message struct {
	IntegrationType  integrations.Type `json:"integration_type"`
	MessageID        string            `json:"message_id"`
	OrganizationID   string            `json:"organization_id"`
	Configuration    json.RawMessage   `json:"configuration"`
	RenderedTemplate string            `json:"rendered_template"`
}

// Sender delivers a message to its external destination.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// ContextResolver resolves template tokens that are not event attributes,
// such as organization or user names.
type ContextResolver interface {
	TemplateContext(ctx context.Context, e *events.Envelope, tokens []string) (map[string]string, error)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(p *Processor)

// WithContextResolver enables tokens that need a lookup.
func WithContextResolver(r ContextResolver) ProcessorOption {
	return func(p *Processor) {
		p.resolver = r
	}
}

// Processor handles bus messages for one integration type. It holds no
// mutable state and is safe for concurrent use.
type Processor struct {
	typ      integrations.Type
	details  store.DetailsReader
	sender   Sender
	resolver ContextResolver
	newID    func() string
}

// NewProcessor creates a processor for the integration type.
func NewProcessor(t integrations.Type, details store.DetailsReader, sender Sender, opts ...ProcessorOption) *Processor {
	p := &Processor{
		typ:     t,
		details: details,
		sender:  sender,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleMessage processes one bus message holding one event or a batch.
// Events without an organization are skipped. Every rule whose filter
// matches produces one message to the sender. Rules with a filter that cannot
// be parsed or evaluated are logged and skipped. Errors from the details
// store and the sender are joined and returned.
func (p *Processor) HandleMessage(ctx context.Context, body []byte, messageID string) error {
	logger := logging.FromContext(ctx).With("message_id", messageID, "integration_type", p.typ.String())
	ctx = logging.WithLogger(ctx, logger)

	batch, err := events.DecodeBatch(body)
	if err != nil {
		return fmt.Errorf("failed to decode message %s: %w", messageID, err)
	}

	var merr error
	for _, e := range batch {
		if e.OrganizationID == "" {
			continue
		}

		eventType := int(e.Type)
		details, err := p.details.ListDetails(ctx, e.OrganizationID, p.typ, &eventType)
		if err != nil {
			merr = errors.Join(merr, fmt.Errorf("failed to list configurations for event %s: %w", e.ID, err))
			continue
		}

		for _, d := range details {
			if !p.matches(ctx, d, e) {
				continue
			}

			msg, err := p.build(ctx, d, e)
			if err != nil {
				merr = errors.Join(merr, fmt.Errorf("configuration %s: %w", d.ID, err))
				continue
			}
			if err := p.sender.Send(ctx, msg); err != nil {
				merr = errors.Join(merr, fmt.Errorf("failed to send event %s for configuration %s: %w", e.ID, d.ID, err))
			}
		}
	}
	return merr
}

func (p *Processor) matches(ctx context.Context, d *integrations.ConfigurationDetails, e *events.Envelope) bool {
	if d.Filters == nil {
		return true
	}

	logger := logging.FromContext(ctx)

	g, err := integrations.ParseFilterGroup(*d.Filters)
	if err != nil {
		logger.ErrorContext(ctx, "skipping configuration with invalid filters",
			"configuration_id", d.ID, "error", err)
		return false
	}
	ok, err := g.Evaluate(e)
	if err != nil {
		logger.ErrorContext(ctx, "skipping configuration whose filters failed to evaluate",
			"configuration_id", d.ID, "event_id", e.ID, "error", err)
		return false
	}
	return ok
}

func (p *Processor) build(ctx context.Context, d *integrations.ConfigurationDetails, e *events.Envelope) (*Message, error) {
	lookup := integrations.EnvelopeLookup(e)

	if p.resolver != nil {
		var extra []string
		for _, tok := range integrations.Tokens(d.Template) {
			if !events.IsAttribute(tok) {
				extra = append(extra, tok)
			}
		}
		if len(extra) > 0 {
			values, err := p.resolver.TemplateContext(ctx, e, extra)
			if err != nil {
				logging.FromContext(ctx).WarnContext(ctx, "failed to resolve template context",
					"configuration_id", d.ID, "error", err)
			}
			lookup = integrations.Chain(lookup, mapLookup(values))
		}
	}

	cfg, err := MergeConfiguration(d.IntegrationConfiguration, d.Configuration)
	if err != nil {
		return nil, err
	}

	return &Message{
		IntegrationType:  p.typ,
		MessageID:        p.newID(),
		OrganizationID:   e.OrganizationID,
		Configuration:    cfg,
		RenderedTemplate: integrations.Render(d.Template, lookup),
	}, nil
}

func mapLookup(m map[string]string) integrations.Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// MergeConfiguration overlays the rule-level configuration on the
// integration-level configuration. Keys set by the rule win. Both inputs
// must be JSON objects when present.
func MergeConfiguration(integrationCfg, ruleCfg *string) (json.RawMessage, error) {
	merged := make(map[string]json.RawMessage)
	for _, src := range []*string{integrationCfg, ruleCfg} {
		if src == nil {
			continue
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal([]byte(*src), &m); err != nil {
			return nil, fmt.Errorf("configuration is not a JSON object: %w", err)
		}
		for k, v := range m {
			merged[k] = v
		}
	}

	b, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %w", err)
	}
	return b, nil
}
