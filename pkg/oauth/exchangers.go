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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/slack-go/slack"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
)

const (
	// DefaultSlackAuthorizeURL is the Slack v2 authorize endpoint.
	DefaultSlackAuthorizeURL = "https://slack.com/oauth/v2/authorize"

	// DefaultSlackScopes are the bot scopes requested from Slack.
	DefaultSlackScopes = "chat:write,commands,team:read"

	// DefaultTeamsTenant lets users of any Entra ID tenant consent.
	DefaultTeamsTenant = "common"

	// DefaultTeamsScopes are the scopes requested from Microsoft.
	DefaultTeamsScopes = "openid offline_access Team.ReadBasic.All"
)

// SlackExchanger runs the Slack side of the flow.
type SlackExchanger struct {
	ClientID     string
	ClientSecret string
	Scopes       string
	AuthorizeURL string

	// HTTPClient is used for the oauth.v2.access call. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// AuthCodeURL implements Exchanger.
func (e *SlackExchanger) AuthCodeURL(state, callbackURL string) string {
	authURL := e.AuthorizeURL
	if authURL == "" {
		authURL = DefaultSlackAuthorizeURL
	}
	scopes := e.Scopes
	if scopes == "" {
		scopes = DefaultSlackScopes
	}

	// Slack expects a comma separated scope list, so the scopes are passed
	// as one value.
	cfg := &oauth2.Config{
		ClientID:    e.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
		RedirectURL: callbackURL,
		Scopes:      []string{scopes},
	}
	return cfg.AuthCodeURL(state)
}

// Exchange implements Exchanger.
func (e *SlackExchanger) Exchange(ctx context.Context, code, callbackURL string) (string, error) {
	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := slack.GetOAuthV2ResponseContext(ctx, client, e.ClientID, e.ClientSecret, code, callbackURL)
	if err != nil {
		return "", fmt.Errorf("slack oauth.v2.access failed: %w", err)
	}
	if resp.AccessToken == "" {
		return "", nil
	}

	b, err := json.Marshal(&integrations.SlackIntegration{Token: resp.AccessToken})
	if err != nil {
		return "", fmt.Errorf("failed to marshal slack integration: %w", err)
	}
	return string(b), nil
}

// TeamsExchanger runs the Microsoft Teams side of the flow. The tenant of the
// consenting user is taken from the tid claim of the returned id_token.
type TeamsExchanger struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	Scopes       string

	// Endpoint overrides the Entra ID endpoint derived from Tenant.
	Endpoint *oauth2.Endpoint

	// HTTPClient is used for the token exchange. Defaults to the oauth2
	// package default.
	HTTPClient *http.Client
}

func (e *TeamsExchanger) config(callbackURL string) *oauth2.Config {
	tenant := e.Tenant
	if tenant == "" {
		tenant = DefaultTeamsTenant
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if e.Endpoint != nil {
		endpoint = *e.Endpoint
	}
	scopes := e.Scopes
	if scopes == "" {
		scopes = DefaultTeamsScopes
	}

	return &oauth2.Config{
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  callbackURL,
		Scopes:       strings.Fields(scopes),
	}
}

// AuthCodeURL implements Exchanger.
func (e *TeamsExchanger) AuthCodeURL(state, callbackURL string) string {
	return e.config(callbackURL).AuthCodeURL(state)
}

// Exchange implements Exchanger.
func (e *TeamsExchanger) Exchange(ctx context.Context, code, callbackURL string) (string, error) {
	if e.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.HTTPClient)
	}

	token, err := e.config(callbackURL).Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("teams token exchange failed: %w", err)
	}
	if token.AccessToken == "" {
		return "", nil
	}

	rawID, _ := token.Extra("id_token").(string)
	if rawID == "" {
		return "", fmt.Errorf("%w: token response has no id_token", ErrBadRequest)
	}
	tenantID, err := tenantFromIDToken(rawID)
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(&integrations.TeamsIntegration{TenantID: tenantID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal teams integration: %w", err)
	}
	return string(b), nil
}

// tenantFromIDToken reads the tid claim. The token comes straight from the
// token endpoint over TLS, so its signature is not checked here.
func tenantFromIDToken(raw string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("%w: failed to parse id_token: %w", ErrBadRequest, err)
	}
	tid, _ := claims["tid"].(string)
	if tid == "" {
		return "", fmt.Errorf("%w: id_token has no tid claim", ErrBadRequest)
	}
	return tid, nil
}
