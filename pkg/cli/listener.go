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

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/option"

	"github.com/abcxyz/org-event-integrations/pkg/delivery"
	"github.com/abcxyz/org-event-integrations/pkg/eventstore"
	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/org-event-integrations/pkg/listener"
	"github.com/abcxyz/org-event-integrations/pkg/store"
	"github.com/abcxyz/org-event-integrations/pkg/version"
	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
)

var _ cli.Command = (*ListenerRunCommand)(nil)

// detailsStore is what the delivery workers need from the configuration
// store.
type detailsStore interface {
	store.DetailsReader
	delivery.ContextResolver
}

type ListenerRunCommand struct {
	cli.BaseCommand

	cfg *listener.Config

	closers []func() error

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option

	testClientOptions []option.ClientOption

	// testStore replaces the Postgres store in tests.
	testStore detailsStore
}

func (c *ListenerRunCommand) Desc() string {
	return `Run the integration bus workers`
}

func (c *ListenerRunCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]
  Run one worker per enabled integration type, plus the durable event store
  worker when configured. Workers stop when the process is interrupted.
`
}

func (c *ListenerRunCommand) Flags() *cli.FlagSet {
	c.cfg = &listener.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	return c.cfg.ToFlags(set)
}

func (c *ListenerRunCommand) Run(ctx context.Context, args []string) error {
	supervisor, err := c.RunUnstarted(ctx, args)
	if err != nil {
		return err
	}

	runErr := supervisor.Run(ctx)
	return errors.Join(runErr, c.close())
}

func (c *ListenerRunCommand) RunUnstarted(ctx context.Context, args []string) (*listener.Supervisor, error) {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %q", args)
	}

	logger := logging.FromContext(ctx)
	logger.DebugContext(ctx, "listener starting",
		"name", version.Name,
		"commit", version.Commit,
		"version", version.Version)

	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	types, err := c.cfg.EnabledTypes()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.DebugContext(ctx, "loaded configuration",
		"bus", c.cfg.Bus,
		"integrations", c.cfg.Integrations,
		"write_enabled", c.cfg.WriteEnabled())

	opts := append([]option.ClientOption{userAgent()}, c.testClientOptions...)

	workers, err := c.workers(ctx, types, opts)
	if err != nil {
		return nil, errors.Join(err, c.close())
	}

	return listener.NewSupervisor(c.cfg.ShutdownTimeout, workers...), nil
}

func (c *ListenerRunCommand) workers(ctx context.Context, types []integrations.Type, opts []option.ClientOption) ([]*listener.Worker, error) {
	dialer := c.dialer(opts)

	var workers []*listener.Worker

	if len(types) > 0 {
		details, resolver, err := c.store(ctx)
		if err != nil {
			return nil, err
		}

		client := &http.Client{Timeout: c.cfg.HTTPTimeout}
		for _, t := range types {
			sender, err := c.sender(ctx, t, client, opts)
			if err != nil {
				return nil, err
			}

			processor := delivery.NewProcessor(t, details, sender, delivery.WithContextResolver(resolver))
			w, err := listener.NewWorker(listener.WorkerConfig{
				QueueName:   c.cfg.QueueName(t),
				DisplayName: t.String(),
			}, dialer, processor)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s worker: %w", t, err)
			}
			workers = append(workers, w)
		}
	}

	if c.cfg.WriteEnabled() {
		projectID := c.cfg.BigQueryProjectID
		if projectID == "" {
			projectID = c.cfg.ProjectID
		}
		writer, err := eventstore.NewBigQueryWriter(ctx, projectID, c.cfg.DatasetID, c.cfg.EventsTableID, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create event store writer: %w", err)
		}
		c.closers = append(c.closers, writer.Close)

		w, err := listener.NewWorker(listener.WorkerConfig{
			QueueName:   c.cfg.WriteQueue,
			DisplayName: "event store",
		}, dialer, writer)
		if err != nil {
			return nil, fmt.Errorf("failed to create event store worker: %w", err)
		}
		workers = append(workers, w)
	}

	return workers, nil
}

func (c *ListenerRunCommand) dialer(opts []option.ClientOption) listener.Dialer {
	if c.cfg.Bus == listener.BusKafka {
		return &listener.KafkaDialer{
			Brokers: c.cfg.Brokers(),
			Topic:   c.cfg.KafkaTopic,
		}
	}
	return &listener.PubSubDialer{
		ProjectID:              c.cfg.ProjectID,
		TopicID:                c.cfg.EventsTopicID,
		AckDeadline:            c.cfg.AckDeadline,
		MaxOutstandingMessages: c.cfg.MaxOutstandingMessages,
		Options:                opts,
	}
}

// store opens the configuration store, fronted by the Redis cache when one
// is configured.
func (c *ListenerRunCommand) store(ctx context.Context) (store.DetailsReader, delivery.ContextResolver, error) {
	if c.testStore != nil {
		return c.testStore, c.testStore, nil
	}

	pg, err := store.OpenPostgres(ctx, c.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // Already wrapped
	}
	c.closers = append(c.closers, pg.Close)

	if c.cfg.RedisURL == "" {
		return pg, pg, nil
	}

	client, err := store.NewRedisClient(c.cfg.RedisURL)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // Already wrapped
	}
	c.closers = append(c.closers, client.Close)
	return store.NewCached(pg, client, c.cfg.CacheTTL), pg, nil
}

func (c *ListenerRunCommand) sender(ctx context.Context, t integrations.Type, client *http.Client, opts []option.ClientOption) (delivery.Sender, error) {
	switch t {
	case integrations.TypeSlack:
		return delivery.NewSlackSender(client), nil
	case integrations.TypeTeams:
		if err := resolveSecrets(ctx, opts, &c.cfg.TeamsClientSecret); err != nil {
			return nil, err
		}
		s, err := delivery.NewTeamsSender(ctx, &delivery.TeamsSenderConfig{
			ClientID:     c.cfg.TeamsClientID,
			ClientSecret: c.cfg.TeamsClientSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create teams sender: %w", err)
		}
		return s, nil
	default:
		s, err := delivery.NewHTTPSender(t, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s sender: %w", t, err)
		}
		return s, nil
	}
}

func (c *ListenerRunCommand) close() error {
	var merr error
	for _, fn := range c.closers {
		merr = errors.Join(merr, fn())
	}
	c.closers = nil
	return merr
}
