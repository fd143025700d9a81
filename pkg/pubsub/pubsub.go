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

// Package pubsub contains the messengers that put serialized event batches on
// the integration bus.
package pubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Messenger sends one message to the bus. The key groups messages that must
// stay in order relative to each other.
type Messenger interface {
	Send(ctx context.Context, key string, msg []byte, attrs map[string]string) error
	Close() error
}

// PubSubMessenger implements the Messenger interface for Google Cloud pubsub.
// Messages sharing a key are published with the same ordering key.
type PubSubMessenger struct {
	projectID string
	topicID   string

	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubMessenger creates a new instance of the PubSubMessenger.
func NewPubSubMessenger(ctx context.Context, projectID, topicID string, timeout time.Duration, opts ...option.ClientOption) (Messenger, error) {
	// pubsub client forces you to provide a projectID
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new pubsub client: %w", err)
	}
	return newPubSubMessenger(client, projectID, topicID, timeout), nil
}

func newPubSubMessenger(client *pubsub.Client, projectID, topicID string, timeout time.Duration) *PubSubMessenger {
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	if timeout > 0 {
		topic.PublishSettings.Timeout = timeout
	}

	return &PubSubMessenger{
		projectID: projectID,
		topicID:   topicID,
		client:    client,
		topic:     topic,
	}
}

// Send publishes a message and waits for the server to acknowledge it.
func (p *PubSubMessenger) Send(ctx context.Context, key string, msg []byte, attrs map[string]string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        msg,
		Attributes:  attrs,
		OrderingKey: key,
	})

	if _, err := result.Get(ctx); err != nil {
		// A failed publish pauses the ordering key until it is resumed.
		if key != "" {
			p.topic.ResumePublish(key)
		}
		return fmt.Errorf("pubsub: failed to get result: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the pubsub client.
func (p *PubSubMessenger) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
