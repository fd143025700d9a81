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

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/logging"
)

// Defaults of the Bot Framework connector.
const (
	DefaultTeamsTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	DefaultTeamsScope    = "https://api.botframework.com/.default"
)

// TeamsSenderConfig holds the bot credentials used to post to Teams.
type TeamsSenderConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// TeamsSender posts rendered templates to the channel bound to a Teams
// integration through the Bot Framework connector.
type TeamsSender struct {
	client *http.Client
}

// NewTeamsSender creates a sender that authenticates as the bot with the
// client credentials grant. The token is cached and refreshed by the
// returned client.
func NewTeamsSender(ctx context.Context, cfg *TeamsSenderConfig) (*TeamsSender, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("teams client id and secret are required")
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{DefaultTeamsScope},
	}
	if cc.TokenURL == "" {
		cc.TokenURL = DefaultTeamsTokenURL
	}
	return &TeamsSender{client: cc.Client(ctx)}, nil
}

type teamsActivity struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send posts the message as an activity in the bound channel.
func (s *TeamsSender) Send(ctx context.Context, msg *Message) error {
	var dest integrations.TeamsIntegration
	if err := json.Unmarshal(msg.Configuration, &dest); err != nil {
		return fmt.Errorf("failed to decode teams destination: %w", err)
	}
	if dest.ServiceURL == "" || dest.ChannelID == "" {
		return fmt.Errorf("teams integration for organization %s is not bound to a channel", msg.OrganizationID)
	}

	body, err := json.Marshal(&teamsActivity{Type: "message", Text: msg.RenderedTemplate})
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	target := strings.TrimSuffix(dest.ServiceURL, "/") +
		"/v3/conversations/" + url.PathEscape(dest.ChannelID) + "/activities"
	headers := http.Header{"Content-Type": []string{"application/json"}}
	if err := postWithRetry(ctx, s.client, target, headers, body); err != nil {
		return fmt.Errorf("failed to deliver teams message %s: %w", msg.MessageID, err)
	}

	logging.FromContext(ctx).DebugContext(ctx, "delivered teams message",
		"message_id", msg.MessageID,
		"organization_id", msg.OrganizationID,
		"tenant_id", dest.TenantID)
	return nil
}
