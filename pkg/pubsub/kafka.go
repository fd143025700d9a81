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

package pubsub

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessenger implements the Messenger interface for Kafka. The key is the
// message key, so the hash balancer keeps every message of one key on one
// partition.
type KafkaMessenger struct {
	topic  string
	writer kafkaWriter
}

// NewKafkaMessenger creates a messenger writing to topic on the given brokers.
func NewKafkaMessenger(brokers []string, topic string, timeout time.Duration) *KafkaMessenger {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 5 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	return &KafkaMessenger{topic: topic, writer: w}
}

// Send writes a message and waits for all in-sync replicas.
func (k *KafkaMessenger) Send(ctx context.Context, key string, msg []byte, attrs map[string]string) error {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]kafka.Header, 0, len(names))
	for _, name := range names {
		headers = append(headers, kafka.Header{Key: name, Value: []byte(attrs[name])})
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   msg,
		Headers: headers,
	}); err != nil {
		return fmt.Errorf("kafka: failed to write to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaMessenger) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
