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

package listener

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/abcxyz/org-event-integrations/pkg/publisher"
)

// PubSubDialer opens one Pub/Sub client per worker. Queues are subscriptions
// on the events topic.
type PubSubDialer struct {
	ProjectID string
	TopicID   string

	// AckDeadline of created subscriptions. Zero uses the Pub/Sub default.
	AckDeadline time.Duration

	// MaxOutstandingMessages bounds concurrent deliveries per worker.
	MaxOutstandingMessages int

	Options []option.ClientOption
}

// Dial creates a Pub/Sub client.
func (d *PubSubDialer) Dial(ctx context.Context) (Channel, error) {
	client, err := pubsub.NewClient(ctx, d.ProjectID, d.Options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &pubSubChannel{
		client:         client,
		topic:          client.Topic(d.TopicID),
		ackDeadline:    d.AckDeadline,
		maxOutstanding: d.MaxOutstandingMessages,
	}, nil
}

type pubSubChannel struct {
	client         *pubsub.Client
	topic          *pubsub.Topic
	ackDeadline    time.Duration
	maxOutstanding int
}

// EnsureQueue creates the subscription when it is missing. A concurrent
// creation by another process is tolerated.
func (c *pubSubChannel) EnsureQueue(ctx context.Context, queue string) error {
	sub := c.client.Subscription(queue)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check subscription %s: %w", queue, err)
	}
	if exists {
		return nil
	}

	if _, err := c.client.CreateSubscription(ctx, queue, pubsub.SubscriptionConfig{
		Topic:                 c.topic,
		AckDeadline:           c.ackDeadline,
		EnableMessageOrdering: true,
	}); err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to create subscription %s: %w", queue, err)
	}
	return nil
}

// Consume receives messages until ctx is done. Every message is acked before
// it is delivered.
func (c *pubSubChannel) Consume(ctx context.Context, queue string, fn DeliverFunc) error {
	sub := c.client.Subscription(queue)
	if c.maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.maxOutstanding
	}

	if err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		m.Ack()

		id := m.Attributes[publisher.AttributeMessageID]
		if id == "" {
			id = m.ID
		}
		fn(ctx, m.Data, id)
	}); err != nil {
		return fmt.Errorf("failed to receive from %s: %w", queue, err)
	}
	return nil
}

func (c *pubSubChannel) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
