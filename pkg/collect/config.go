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

package collect

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abcxyz/pkg/cli"
)

// Sink names accepted by the SINKS setting.
const (
	SinkBus      = "bus"
	SinkBigQuery = "bigquery"
	SinkArchive  = "archive"
)

// Bus backends accepted by the BUS setting.
const (
	BusPubSub = "pubsub"
	BusKafka  = "kafka"
)

// Config defines the set over environment variables required
// for running this application.
type Config struct {
	Port          string
	ProjectID     string
	SigningSecret string
	Sinks         string

	Bus           string
	EventsTopicID string
	PubSubTimeout time.Duration
	KafkaBrokers  string
	KafkaTopic    string

	BigQueryProjectID string
	DatasetID         string
	EventsTableID     string
	ArchiveBucket     string
}

// EnabledSinks returns the distinct configured sink names in order.
func (cfg *Config) EnabledSinks() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range strings.Split(cfg.Sinks, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
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

// Validate validates the service config after load.
func (cfg *Config) Validate() error {
	var merr error

	if cfg.ProjectID == "" {
		merr = errors.Join(merr, fmt.Errorf("PROJECT_ID is required"))
	}

	if cfg.SigningSecret == "" {
		merr = errors.Join(merr, fmt.Errorf("SIGNING_SECRET is required"))
	}

	sinks := cfg.EnabledSinks()
	if len(sinks) == 0 {
		merr = errors.Join(merr, fmt.Errorf("SINKS must name at least one sink"))
	}

	for _, s := range sinks {
		switch s {
		case SinkBus:
			merr = errors.Join(merr, cfg.validateBus())
		case SinkBigQuery:
			if cfg.DatasetID == "" || cfg.EventsTableID == "" {
				merr = errors.Join(merr, fmt.Errorf("DATASET_ID and EVENTS_TABLE_ID are required for the bigquery sink"))
			}
		case SinkArchive:
			if cfg.ArchiveBucket == "" {
				merr = errors.Join(merr, fmt.Errorf("ARCHIVE_BUCKET is required for the archive sink"))
			}
		default:
			merr = errors.Join(merr, fmt.Errorf("SINKS contains unknown sink %q", s))
		}
	}

	return merr
}

func (cfg *Config) validateBus() error {
	switch cfg.Bus {
	case BusPubSub:
		var merr error
		if cfg.EventsTopicID == "" {
			merr = errors.Join(merr, fmt.Errorf("EVENTS_TOPIC_ID is required"))
		}
		if cfg.PubSubTimeout <= 0 {
			merr = errors.Join(merr, fmt.Errorf("PUBSUB_TIMEOUT must be positive"))
		}
		return merr
	case BusKafka:
		var merr error
		if len(cfg.Brokers()) == 0 {
			merr = errors.Join(merr, fmt.Errorf("KAFKA_BROKERS is required"))
		}
		if cfg.KafkaTopic == "" {
			merr = errors.Join(merr, fmt.Errorf("KAFKA_TOPIC is required"))
		}
		return merr
	}
	return fmt.Errorf("BUS must be %q or %q", BusPubSub, BusKafka)
}

// ToFlags binds the config to the give [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("COLLECT OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "port",
		Target:  &cfg.Port,
		EnvVar:  "PORT",
		Default: "8080",
		Usage:   `The port the collect server listens to.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "project-id",
		Target: &cfg.ProjectID,
		EnvVar: "PROJECT_ID",
		Usage:  `Google Cloud project ID where this service runs.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "signing-secret",
		Target: &cfg.SigningSecret,
		EnvVar: "SIGNING_SECRET",
		Usage:  `Shared secret of the request signature, or a Secret Manager version name.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "sinks",
		Target:  &cfg.Sinks,
		EnvVar:  "SINKS",
		Default: SinkBus,
		Usage:   `Comma separated sinks events are written to: bus, bigquery, archive.`,
	})

	b := set.NewSection("BUS OPTIONS")

	b.StringVar(&cli.StringVar{
		Name:    "bus",
		Target:  &cfg.Bus,
		EnvVar:  "BUS",
		Default: BusPubSub,
		Usage:   `Integration bus backend: pubsub or kafka.`,
	})

	b.StringVar(&cli.StringVar{
		Name:    "events-topic-id",
		Target:  &cfg.EventsTopicID,
		EnvVar:  "EVENTS_TOPIC_ID",
		Default: "events",
		Usage:   `Google PubSub topic ID.`,
	})

	b.DurationVar(&cli.DurationVar{
		Name:    "pubsub-timeout",
		Target:  &cfg.PubSubTimeout,
		EnvVar:  "PUBSUB_TIMEOUT",
		Default: 10 * time.Second,
		Usage:   `The timeout for PubSub requests.`,
	})

	b.StringVar(&cli.StringVar{
		Name:   "kafka-brokers",
		Target: &cfg.KafkaBrokers,
		EnvVar: "KAFKA_BROKERS",
		Usage:  `Comma separated Kafka broker addresses.`,
	})

	b.StringVar(&cli.StringVar{
		Name:    "kafka-topic",
		Target:  &cfg.KafkaTopic,
		EnvVar:  "KAFKA_TOPIC",
		Default: "events",
		Usage:   `Kafka topic of the integration bus.`,
	})

	s := set.NewSection("STORE OPTIONS")

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

	s.StringVar(&cli.StringVar{
		Name:   "archive-bucket",
		Target: &cfg.ArchiveBucket,
		EnvVar: "ARCHIVE_BUCKET",
		Usage:  `Cloud Storage bucket events are archived to.`,
	})

	return set
}
