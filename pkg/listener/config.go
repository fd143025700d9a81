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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/cli"
)

// Bus backends accepted by the BUS setting.
const (
	BusPubSub = "pubsub"
	BusKafka  = "kafka"
)

// Config defines the set over environment variables required
// for running the queue workers.
type Config struct {
	Bus           string
	ProjectID     string
	EventsTopicID string
	KafkaBrokers  string
	KafkaTopic    string
	Integrations  string

	WebhookQueue string
	SlackQueue   string
	HecQueue     string
	DatadogQueue string
	TeamsQueue   string
	WriteQueue   string

	AckDeadline            time.Duration
	MaxOutstandingMessages int
	ShutdownTimeout        time.Duration

	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	BigQueryProjectID string
	DatasetID         string
	EventsTableID     string

	HTTPTimeout       time.Duration
	TeamsClientID     string
	TeamsClientSecret string
}

// Brokers returns the Kafka broker addresses.
func (cfg *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(cfg.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// EnabledTypes parses the comma separated list of integration types to run
// workers for.
func (cfg *Config) EnabledTypes() ([]integrations.Type, error) {
	var (
		out  []integrations.Type
		seen = make(map[integrations.Type]struct{})
	)
	for _, name := range strings.Split(cfg.Integrations, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := integrations.ParseType(name)
		if err != nil {
			return nil, err
		}
		if cfg.QueueName(t) == "" {
			return nil, fmt.Errorf("integration type %s has no delivery queue", t)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// QueueName returns the queue of the integration type, or an empty string
// for types that are not delivered from the bus.
func (cfg *Config) QueueName(t integrations.Type) string {
	switch t {
	case integrations.TypeWebhook:
		return cfg.WebhookQueue
	case integrations.TypeSlack:
		return cfg.SlackQueue
	case integrations.TypeHec:
		return cfg.HecQueue
	case integrations.TypeDatadog:
		return cfg.DatadogQueue
	case integrations.TypeTeams:
		return cfg.TeamsQueue
	}
	return ""
}

// WriteEnabled reports whether the durable event store worker runs.
func (cfg *Config) WriteEnabled() bool {
	return cfg.WriteQueue != "" && cfg.DatasetID != "" && cfg.EventsTableID != ""
}

// Validate validates the listener config after load.
func (cfg *Config) Validate() error {
	var merr error

	switch cfg.Bus {
	case BusPubSub:
		if cfg.ProjectID == "" {
			merr = errors.Join(merr, fmt.Errorf("PROJECT_ID is required"))
		}
		if cfg.EventsTopicID == "" {
			merr = errors.Join(merr, fmt.Errorf("EVENTS_TOPIC_ID is required"))
		}
	case BusKafka:
		if len(cfg.Brokers()) == 0 {
			merr = errors.Join(merr, fmt.Errorf("KAFKA_BROKERS is required"))
		}
		if cfg.KafkaTopic == "" {
			merr = errors.Join(merr, fmt.Errorf("KAFKA_TOPIC is required"))
		}
	default:
		merr = errors.Join(merr, fmt.Errorf("BUS must be %q or %q", BusPubSub, BusKafka))
	}

	types, err := cfg.EnabledTypes()
	if err != nil {
		merr = errors.Join(merr, fmt.Errorf("INTEGRATIONS is invalid: %w", err))
	}

	if len(types) > 0 && cfg.DatabaseURL == "" {
		merr = errors.Join(merr, fmt.Errorf("DATABASE_URL is required"))
	}

	for _, t := range types {
		if t == integrations.TypeTeams && (cfg.TeamsClientID == "" || cfg.TeamsClientSecret == "") {
			merr = errors.Join(merr, fmt.Errorf("TEAMS_CLIENT_ID and TEAMS_CLIENT_SECRET are required for teams"))
		}
	}

	if len(types) == 0 && !cfg.WriteEnabled() {
		merr = errors.Join(merr, fmt.Errorf("at least one integration or the event store must be enabled"))
	}

	if cfg.MaxOutstandingMessages < 0 {
		merr = errors.Join(merr, fmt.Errorf("MAX_OUTSTANDING_MESSAGES must not be negative"))
	}

	if cfg.ShutdownTimeout <= 0 {
		merr = errors.Join(merr, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive"))
	}

	return merr
}

// ToFlags binds the config to the give [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("LISTENER OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "bus",
		Target:  &cfg.Bus,
		EnvVar:  "BUS",
		Default: BusPubSub,
		Usage:   `Integration bus backend: pubsub or kafka.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "project-id",
		Target: &cfg.ProjectID,
		EnvVar: "PROJECT_ID",
		Usage:  `Google Cloud project ID of the integration bus.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "events-topic-id",
		Target:  &cfg.EventsTopicID,
		EnvVar:  "EVENTS_TOPIC_ID",
		Default: "events",
		Usage:   `Google PubSub topic ID the queues subscribe to.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "kafka-brokers",
		Target: &cfg.KafkaBrokers,
		EnvVar: "KAFKA_BROKERS",
		Usage:  `Comma separated Kafka broker addresses.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "kafka-topic",
		Target:  &cfg.KafkaTopic,
		EnvVar:  "KAFKA_TOPIC",
		Default: "events",
		Usage:   `Kafka topic of the integration bus.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "integrations",
		Target:  &cfg.Integrations,
		EnvVar:  "INTEGRATIONS",
		Default: "webhook,slack,hec,datadog,teams",
		Usage:   `Comma separated integration types to run workers for.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "ack-deadline",
		Target:  &cfg.AckDeadline,
		EnvVar:  "ACK_DEADLINE",
		Default: 30 * time.Second,
		Usage:   `Ack deadline of subscriptions created by the workers.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "max-outstanding-messages",
		Target:  &cfg.MaxOutstandingMessages,
		EnvVar:  "MAX_OUTSTANDING_MESSAGES",
		Default: 100,
		Usage:   `Maximum number of messages a worker handles concurrently.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "shutdown-timeout",
		Target:  &cfg.ShutdownTimeout,
		EnvVar:  "SHUTDOWN_TIMEOUT",
		Default: DefaultShutdownTimeout,
		Usage:   `How long to wait for workers to stop.`,
	})

	q := set.NewSection("QUEUE OPTIONS")

	q.StringVar(&cli.StringVar{
		Name:    "webhook-queue",
		Target:  &cfg.WebhookQueue,
		EnvVar:  "WEBHOOK_QUEUE",
		Default: "events-webhook-queue",
		Usage:   `Queue of the webhook worker.`,
	})

	q.StringVar(&cli.StringVar{
		Name:    "slack-queue",
		Target:  &cfg.SlackQueue,
		EnvVar:  "SLACK_QUEUE",
		Default: "events-slack-queue",
		Usage:   `Queue of the Slack worker.`,
	})

	q.StringVar(&cli.StringVar{
		Name:    "hec-queue",
		Target:  &cfg.HecQueue,
		EnvVar:  "HEC_QUEUE",
		Default: "events-hec-queue",
		Usage:   `Queue of the Splunk HEC worker.`,
	})

	q.StringVar(&cli.StringVar{
		Name:    "datadog-queue",
		Target:  &cfg.DatadogQueue,
		EnvVar:  "DATADOG_QUEUE",
		Default: "events-datadog-queue",
		Usage:   `Queue of the Datadog worker.`,
	})

	q.StringVar(&cli.StringVar{
		Name:    "teams-queue",
		Target:  &cfg.TeamsQueue,
		EnvVar:  "TEAMS_QUEUE",
		Default: "events-teams-queue",
		Usage:   `Queue of the Teams worker.`,
	})

	q.StringVar(&cli.StringVar{
		Name:    "write-queue",
		Target:  &cfg.WriteQueue,
		EnvVar:  "WRITE_QUEUE",
		Default: "events-write-queue",
		Usage:   `Queue of the durable event store worker.`,
	})

	s := set.NewSection("STORE OPTIONS")

	s.StringVar(&cli.StringVar{
		Name:   "database-url",
		Target: &cfg.DatabaseURL,
		EnvVar: "DATABASE_URL",
		Usage:  `Postgres connection string of the integration configuration store.`,
	})

	s.StringVar(&cli.StringVar{
		Name:   "redis-url",
		Target: &cfg.RedisURL,
		EnvVar: "REDIS_URL",
		Usage:  `Optional Redis url used to cache configuration details.`,
	})

	s.DurationVar(&cli.DurationVar{
		Name:    "cache-ttl",
		Target:  &cfg.CacheTTL,
		EnvVar:  "CACHE_TTL",
		Default: 5 * time.Minute,
		Usage:   `How long configuration details stay cached.`,
	})

	s.StringVar(&cli.StringVar{
		Name:   "big-query-project-id",
		Target: &cfg.BigQueryProjectID,
		EnvVar: "BIG_QUERY_PROJECT_ID",
		Usage:  `The project ID where your BigQuery instance exists in.`,
	})

	s.StringVar(&cli.StringVar{
		Name:   "dataset-id",
		Target: &cfg.DatasetID,
		EnvVar: "DATASET_ID",
		Usage:  `The dataset ID of the durable event store.`,
	})

	s.StringVar(&cli.StringVar{
		Name:   "events-table-id",
		Target: &cfg.EventsTableID,
		EnvVar: "EVENTS_TABLE_ID",
		Usage:  `The events table ID within the dataset.`,
	})

	d := set.NewSection("DELIVERY OPTIONS")

	d.DurationVar(&cli.DurationVar{
		Name:    "http-timeout",
		Target:  &cfg.HTTPTimeout,
		EnvVar:  "HTTP_TIMEOUT",
		Default: 30 * time.Second,
		Usage:   `Timeout of a single delivery request.`,
	})

	d.StringVar(&cli.StringVar{
		Name:   "teams-client-id",
		Target: &cfg.TeamsClientID,
		EnvVar: "TEAMS_CLIENT_ID",
		Usage:  `Bot application id used to post to Teams.`,
	})

	d.StringVar(&cli.StringVar{
		Name:   "teams-client-secret",
		Target: &cfg.TeamsClientSecret,
		EnvVar: "TEAMS_CLIENT_SECRET",
		Usage:  `Bot application secret, or a Secret Manager version name.`,
	})

	return set
}
