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

package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/abcxyz/pkg/cfgloader"
	"github.com/sethvargo/go-envconfig"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
)

// Config defines the set of environment variables required for the OAuth
// setup flow.
type Config struct {
	PublicURL         string        `env:"OAUTH_PUBLIC_URL,required"`
	StateKey          string        `env:"OAUTH_STATE_KEY,required"`
	StateTTL          time.Duration `env:"OAUTH_STATE_TTL,default=20m"`
	SlackClientID     string        `env:"SLACK_CLIENT_ID"`
	SlackClientSecret string        `env:"SLACK_CLIENT_SECRET"`
	SlackScopes       string        `env:"SLACK_SCOPES"`
	SlackAuthorizeURL string        `env:"SLACK_AUTHORIZE_URL,default=https://slack.com/oauth/v2/authorize"`
	TeamsClientID     string        `env:"TEAMS_CLIENT_ID"`
	TeamsClientSecret string        `env:"TEAMS_CLIENT_SECRET"`
	TeamsTenant       string        `env:"TEAMS_TENANT,default=common"`
	TeamsScopes       string        `env:"TEAMS_SCOPES"`
}

// Validate validates the OAuth config after load.
func (cfg *Config) Validate() error {
	var merr error

	if cfg.PublicURL == "" {
		merr = errors.Join(merr, fmt.Errorf("OAUTH_PUBLIC_URL is required"))
	} else if u, err := url.Parse(cfg.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		merr = errors.Join(merr, fmt.Errorf("OAUTH_PUBLIC_URL must be an absolute url"))
	}

	if cfg.StateKey == "" {
		merr = errors.Join(merr, fmt.Errorf("OAUTH_STATE_KEY is required"))
	}

	if cfg.StateTTL <= 0 {
		merr = errors.Join(merr, fmt.Errorf("OAUTH_STATE_TTL must be positive"))
	}

	if (cfg.SlackClientID == "") != (cfg.SlackClientSecret == "") {
		merr = errors.Join(merr, fmt.Errorf("SLACK_CLIENT_ID and SLACK_CLIENT_SECRET must be set together"))
	}

	if (cfg.TeamsClientID == "") != (cfg.TeamsClientSecret == "") {
		merr = errors.Join(merr, fmt.Errorf("TEAMS_CLIENT_ID and TEAMS_CLIENT_SECRET must be set together"))
	}

	return merr
}

// CallbackURL is the redirect_uri of type t. Both legs of the flow derive it
// here so the provider sees the same value twice.
func (cfg *Config) CallbackURL(t integrations.Type) string {
	return strings.TrimRight(cfg.PublicURL, "/") + "/integrations/" + t.String() + "/create"
}

// Exchangers returns the exchangers of the providers that have credentials.
func (cfg *Config) Exchangers() map[integrations.Type]Exchanger {
	out := make(map[integrations.Type]Exchanger)
	if cfg.SlackClientID != "" {
		out[integrations.TypeSlack] = &SlackExchanger{
			ClientID:     cfg.SlackClientID,
			ClientSecret: cfg.SlackClientSecret,
			Scopes:       cfg.SlackScopes,
			AuthorizeURL: cfg.SlackAuthorizeURL,
		}
	}
	if cfg.TeamsClientID != "" {
		out[integrations.TypeTeams] = &TeamsExchanger{
			ClientID:     cfg.TeamsClientID,
			ClientSecret: cfg.TeamsClientSecret,
			Tenant:       cfg.TeamsTenant,
			Scopes:       cfg.TeamsScopes,
		}
	}
	return out
}

// NewConfig creates a new Config from environment variables.
func NewConfig(ctx context.Context) (*Config, error) {
	return LoadConfig(ctx, envconfig.OsLookuper())
}

// LoadConfig creates a new Config from the given lookuper.
func LoadConfig(ctx context.Context, lu envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := cfgloader.Load(ctx, &cfg, cfgloader.WithLookuper(lu)); err != nil {
		return nil, fmt.Errorf("failed to parse oauth config: %w", err)
	}
	return &cfg, nil
}
