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
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/abcxyz/org-event-integrations/pkg/publisher"
)

const (
	kafkaMinBytes = 1
	kafkaMaxBytes = 10_000_000
)

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDialer consumes the events topic of a Kafka bus. Each queue is a
// consumer group, so every queue sees every message once.
type KafkaDialer struct {
	Brokers []string
	Topic   string
}

// Dial returns a channel. Connections are opened lazily per queue.
func (d *KafkaDialer) Dial(ctx context.Context) (Channel, error) {
	if len(d.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	return &kafkaChannel{
		topic: d.Topic,
		checkTopic: func(ctx context.Context) error {
			conn, err := kafka.DialContext(ctx, "tcp", d.Brokers[0])
			if err != nil {
				return fmt.Errorf("failed to dial broker: %w", err)
			}
			defer conn.Close()
			if _, err := conn.ReadPartitions(d.Topic); err != nil {
				return fmt.Errorf("failed to read partitions of %s: %w", d.Topic, err)
			}
			return nil
		},
		newReader: func(group string) kafkaReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:  d.Brokers,
				GroupID:  group,
				Topic:    d.Topic,
				MinBytes: kafkaMinBytes,
				MaxBytes: kafkaMaxBytes,
				MaxWait:  500 * time.Millisecond,
			})
		},
	}, nil
}

type kafkaChannel struct {
	topic      string
	checkTopic func(ctx context.Context) error
	newReader  func(group string) kafkaReader

	mu      sync.Mutex
	readers []kafkaReader
}

// EnsureQueue checks that the topic is reachable. Consumer groups are
// created by the broker when the first member joins.
func (c *kafkaChannel) EnsureQueue(ctx context.Context, queue string) error {
	if err := c.checkTopic(ctx); err != nil {
		return fmt.Errorf("kafka: queue %s is not available: %w", queue, err)
	}
	return nil
}

// Consume fetches messages of the consumer group one at a time. Every offset
// is committed before the message is delivered. The reader is closed when
// Consume returns.
func (c *kafkaChannel) Consume(ctx context.Context, queue string, fn DeliverFunc) (retErr error) {
	r := c.newReader(queue)
	c.mu.Lock()
	c.readers = append(c.readers, r)
	c.mu.Unlock()
	defer func() {
		if err := c.release(r); err != nil {
			retErr = errors.Join(retErr, err)
		}
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: failed to fetch from %s: %w", queue, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: failed to commit offset %d on %s: %w", m.Offset, queue, err)
		}

		fn(ctx, m.Value, kafkaMessageID(m))
	}
}

func kafkaMessageID(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == publisher.AttributeMessageID {
			return string(h.Value)
		}
	}
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

// release closes r unless Close already did.
func (c *kafkaChannel) release(r kafkaReader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.Index(c.readers, r)
	if i < 0 {
		return nil
	}
	c.readers = slices.Delete(c.readers, i, i+1)
	if err := r.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}

func (c *kafkaChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var merr error
	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			merr = errors.Join(merr, fmt.Errorf("failed to close kafka reader: %w", err))
		}
	}
	c.readers = nil
	return merr
}
