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

	"github.com/sethvargo/go-envconfig"
	"google.golang.org/api/option"

	"github.com/abcxyz/org-event-integrations/pkg/admin"
	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/org-event-integrations/pkg/oauth"
	"github.com/abcxyz/org-event-integrations/pkg/oauthstate"
	"github.com/abcxyz/org-event-integrations/pkg/secrets"
	"github.com/abcxyz/org-event-integrations/pkg/store"
	"github.com/abcxyz/org-event-integrations/pkg/version"
	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
	"github.com/abcxyz/pkg/serving"
)

var _ cli.Command = (*AdminServerCommand)(nil)

// adminStore is what the admin server needs from the configuration store.
type adminStore interface {
	store.IntegrationRepository
	store.ConfigurationRepository
}

type AdminServerCommand struct {
	cli.BaseCommand

	cfg *admin.Config

	closers []func() error

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option

	testClientOptions []option.ClientOption

	// testOAuthLookuper replaces the process environment for the OAuth
	// settings in tests.
	testOAuthLookuper envconfig.Lookuper

	// testStore replaces the Postgres store in tests.
	testStore adminStore
}

func (c *AdminServerCommand) Desc() string {
	return `Start the integration admin server`
}

func (c *AdminServerCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]
  Start the server that sets up Slack and Teams integrations through OAuth
  and manages delivery rules. OAuth providers are configured through the
  OAUTH_*, SLACK_* and TEAMS_* environment variables.
`
}

func (c *AdminServerCommand) Flags() *cli.FlagSet {
	c.cfg = &admin.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	return c.cfg.ToFlags(set)
}

func (c *AdminServerCommand) Run(ctx context.Context, args []string) error {
	server, mux, err := c.RunUnstarted(ctx, args)
	if err != nil {
		return err
	}

	serveErr := server.StartHTTPHandler(ctx, mux)
	return errors.Join(serveErr, c.close())
}

func (c *AdminServerCommand) RunUnstarted(ctx context.Context, args []string) (*serving.Server, http.Handler, error) {
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

	lookuper := c.testOAuthLookuper
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	oauthCfg, err := oauth.LoadConfig(ctx, lookuper)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := append([]option.ClientOption{userAgent()}, c.testClientOptions...)
	if err := resolveSecrets(ctx, opts,
		&oauthCfg.StateKey,
		&oauthCfg.SlackClientSecret,
		&oauthCfg.TeamsClientSecret,
	); err != nil {
		return nil, nil, err
	}

	key, err := secrets.ParseSymmetricKey(oauthCfg.StateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid OAUTH_STATE_KEY: %w", err)
	}
	codec, err := oauthstate.NewCodec(key, oauthstate.WithTTL(oauthCfg.StateTTL))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid OAUTH_STATE_KEY: %w", err)
	}

	validator, err := integrations.NewValidator()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create validator: %w", err)
	}

	repo, inv, err := c.store(ctx)
	if err != nil {
		return nil, nil, errors.Join(err, c.close())
	}

	exchangers := oauthCfg.Exchangers()
	setup, err := oauth.NewService(repo, codec, exchangers, oauth.WithValidator(validator))
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to create oauth service: %w", err), c.close())
	}
	logger.DebugContext(ctx, "loaded configuration", "oauth_types", setup.Types())

	rules := store.NewConfigurationService(repo, repo, validator, inv)

	adminServer, err := admin.NewServer(h, setup, rules, oauthCfg.CallbackURL, c.cfg.ProjectID)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to create server: %w", err), c.close())
	}

	mux := adminServer.Routes(ctx)

	server, err := serving.New(c.cfg.Port)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to create serving infrastructure: %w", err), c.close())
	}

	return server, mux, nil
}

// store opens the configuration store. The returned invalidator is nil when
// no cache is configured.
func (c *AdminServerCommand) store(ctx context.Context) (adminStore, store.Invalidator, error) {
	if c.testStore != nil {
		return c.testStore, nil, nil
	}

	pg, err := store.OpenPostgres(ctx, c.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // Already wrapped
	}
	c.closers = append(c.closers, pg.Close)

	if c.cfg.RedisURL == "" {
		return pg, nil, nil
	}

	client, err := store.NewRedisClient(c.cfg.RedisURL)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // Already wrapped
	}
	c.closers = append(c.closers, client.Close)
	return pg, store.NewCached(pg, client, store.DefaultCacheTTL), nil
}

func (c *AdminServerCommand) close() error {
	var merr error
	for _, fn := range c.closers {
		merr = errors.Join(merr, fn())
	}
	c.closers = nil
	return merr
}
