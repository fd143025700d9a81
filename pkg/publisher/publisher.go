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

// Package publisher puts event batches on the integration bus.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/org-event-integrations/pkg/pubsub"
	"github.com/abcxyz/pkg/logging"
)

// Message attributes set on every published batch.
const (
	AttributeOrganizationID = "organization_id"
	AttributeMessageID      = "message_id"
)

// ErrClosed is returned by Publish after Shutdown.
var ErrClosed = errors.New("publisher is closed")

// Publisher serializes event batches and sends them through a messenger. It
// is safe for concurrent use.
type Publisher struct {
	messenger pubsub.Messenger
	newID     func() string

	mu     sync.RWMutex
	closed bool
}

// New creates a publisher over the messenger. The publisher owns the
// messenger and closes it on Shutdown.
func New(m pubsub.Messenger) *Publisher {
	return &Publisher{
		messenger: m,
		newID:     func() string { return uuid.New().String() },
	}
}

// Publish sends the batch as one message. A batch of one is sent as a single
// JSON object, larger batches as a JSON array. The organization of the first
// event is used as both the ordering key and the organization_id attribute.
func (p *Publisher) Publish(ctx context.Context, batch []*events.Envelope) error {
	if len(batch) == 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	var (
		body []byte
		err  error
	)
	if len(batch) == 1 {
		body, err = json.Marshal(batch[0])
	} else {
		body, err = json.Marshal(batch)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal event batch: %w", err)
	}

	orgID := batch[0].OrganizationID
	messageID := p.newID()
	attrs := map[string]string{
		AttributeOrganizationID: orgID,
		AttributeMessageID:      messageID,
	}

	if err := p.messenger.Send(ctx, orgID, body, attrs); err != nil {
		return fmt.Errorf("failed to publish message %s: %w", messageID, err)
	}

	logging.FromContext(ctx).DebugContext(ctx, "published event batch",
		"message_id", messageID,
		"organization_id", orgID,
		"events", len(batch))
	return nil
}

// Write implements events.Sink.
func (p *Publisher) Write(ctx context.Context, e *events.Envelope) error {
	return p.Publish(ctx, []*events.Envelope{e})
}

// WriteMany implements events.Sink.
func (p *Publisher) WriteMany(ctx context.Context, batch []*events.Envelope) error {
	return p.Publish(ctx, batch)
}

// Shutdown closes the messenger once. In-flight publishes finish first;
// publishes that start afterwards return ErrClosed.
func (p *Publisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.messenger.Close(); err != nil {
		return fmt.Errorf("failed to close messenger: %w", err)
	}
	logging.FromContext(ctx).InfoContext(ctx, "publisher shut down")
	return nil
}
