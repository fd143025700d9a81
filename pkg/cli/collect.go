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

	"github.com/abcxyz/org-event-integrations/pkg/collect"
	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/org-event-integrations/pkg/eventstore"
	"github.com/abcxyz/org-event-integrations/pkg/publisher"
	"github.com/abcxyz/org-event-integrations/pkg/pubsub"
	"github.com/abcxyz/org-event-integrations/pkg/version"
	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
	"github.com/abcxyz/pkg/serving"
)

var _ cli.Command = (*CollectServerCommand)(nil)

type CollectServerCommand struct {
	cli.BaseCommand

	cfg *collect.Config

	// closers release the sinks once the server has stopped.
	closers []func(ctx context.Context) error

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option

	testClientOptions []option.ClientOption
}

func (c *CollectServerCommand) Desc() string {
	return `Start the event collection server`
}

func (c *CollectServerCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]
  Start the event collection server. Signed event batches are written to
  the configured sinks.
`
}

func (c *CollectServerCommand) Flags() *cli.FlagSet {
	c.cfg = &collect.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	return c.cfg.ToFlags(set)
}

func (c *CollectServerCommand) Run(ctx context.Context, args []string) error {
	server, mux, err := c.RunUnstarted(ctx, args)
	if err != nil {
		return err
	}

	serveErr := server.StartHTTPHandler(ctx, mux)
	// The serving context is done at this point.
	closeErr := c.close(context.WithoutCancel(ctx))
	return errors.Join(serveErr, closeErr)
}

func (c *CollectServerCommand) RunUnstarted(ctx context.Context, args []string) (*serving.Server, http.Handler, error) {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %q", args)
	}

	logger := logging.FromContext(ctx)
	logger.DebugContext(ctx, "server starting",
		"name", version.Name,
		"commit", version.Commit,
		"version", version.Version)

	h, err := renderer.New(ctx, nil,
		renderer.WithOnError(func(err error) {
			logger.ErrorContext(ctx, "failed to render", "error", err)
		}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	if err := c.cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.DebugContext(ctx, "loaded configuration",
		"sinks", c.cfg.EnabledSinks(),
		"bus", c.cfg.Bus)

	opts := append([]option.ClientOption{userAgent()}, c.testClientOptions...)

	if err := resolveSecrets(ctx, opts, &c.cfg.SigningSecret); err != nil {
		return nil, nil, err
	}

	sinks, err := c.sinks(ctx, opts)
	if err != nil {
		return nil, nil, errors.Join(err, c.close(ctx))
	}

	collectServer, err := collect.NewServer(h, events.NewHandler(sinks...), c.cfg)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to create server: %w", err), c.close(ctx))
	}

	mux := collectServer.Routes(ctx)

	server, err := serving.New(c.cfg.Port)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to create serving infrastructure: %w", err), c.close(ctx))
	}

	return server, mux, nil
}

// sinks creates the enabled sinks in configuration order.
func (c *CollectServerCommand) sinks(ctx context.Context, opts []option.ClientOption) ([]events.Sink, error) {
	var out []events.Sink
	for _, name := range c.cfg.EnabledSinks() {
		switch name {
		case collect.SinkBus:
			var messenger pubsub.Messenger
			switch c.cfg.Bus {
			case collect.BusKafka:
				messenger = pubsub.NewKafkaMessenger(c.cfg.Brokers(), c.cfg.KafkaTopic, c.cfg.PubSubTimeout)
			default:
				m, err := pubsub.NewPubSubMessenger(ctx, c.cfg.ProjectID, c.cfg.EventsTopicID, c.cfg.PubSubTimeout, opts...)
				if err != nil {
					return nil, fmt.Errorf("failed to create event bus messenger: %w", err)
				}
				messenger = m
			}
			p := publisher.New(messenger)
			c.closers = append(c.closers, p.Shutdown)
			out = append(out, p)

		case collect.SinkBigQuery:
			projectID := c.cfg.BigQueryProjectID
			if projectID == "" {
				projectID = c.cfg.ProjectID
			}
			w, err := eventstore.NewBigQueryWriter(ctx, projectID, c.cfg.DatasetID, c.cfg.EventsTableID, opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create event store writer: %w", err)
			}
			c.closers = append(c.closers, func(context.Context) error { return w.Close() })
			out = append(out, w)

		case collect.SinkArchive:
			w, err := eventstore.NewArchiveWriter(ctx, c.cfg.ArchiveBucket, opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create event archive writer: %w", err)
			}
			c.closers = append(c.closers, func(context.Context) error { return w.Close() })
			out = append(out, w)
		}
	}
	return out, nil
}

func (c *CollectServerCommand) close(ctx context.Context) error {
	var merr error
	for _, fn := range c.closers {
		merr = errors.Join(merr, fn(ctx))
	}
	c.closers = nil
	return merr
}
