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

	"github.com/sethvargo/go-retry"
	"github.com/slack-go/slack"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/logging"
)

// slackDestination is the merged integration and rule configuration of a
// Slack delivery.
type slackDestination struct {
	integrations.SlackIntegration
	integrations.SlackConfiguration
}

// SlackSender posts rendered templates to a Slack channel with the bot token
// stored on the integration.
type SlackSender struct {
	client *http.Client
	apiURL string
}

// SlackOption configures a SlackSender.
type SlackOption func(s *SlackSender)

// WithSlackAPIURL overrides the Slack Web API base url. It must end in a
// slash.
func WithSlackAPIURL(u string) SlackOption {
	return func(s *SlackSender) {
		s.apiURL = u
	}
}

// NewSlackSender creates a Slack sender.
func NewSlackSender(client *http.Client, opts ...SlackOption) *SlackSender {
	if client == nil {
		client = http.DefaultClient
	}
	s := &SlackSender{client: client, apiURL: slack.APIURL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts the message text to the configured channel. Rate limit
// responses are retried.
func (s *SlackSender) Send(ctx context.Context, msg *Message) error {
	var dest slackDestination
	if err := json.Unmarshal(msg.Configuration, &dest); err != nil {
		return fmt.Errorf("failed to decode slack destination: %w", err)
	}
	if err := errors.Join(dest.SlackIntegration.Validate(), dest.SlackConfiguration.Validate()); err != nil {
		return fmt.Errorf("invalid slack destination: %w", err)
	}

	api := slack.New(dest.Token,
		slack.OptionHTTPClient(s.client),
		slack.OptionAPIURL(s.apiURL))

	backoff := retryFunc(retryMinWaitDuration)
	backoff = retry.WithMaxRetries(retryMaxAttempts, backoff)
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, _, err := api.PostMessageContext(ctx, dest.ChannelID, slack.MsgOptionText(msg.RenderedTemplate, false))
		var rle *slack.RateLimitedError
		if errors.As(err, &rle) {
			return retry.RetryableError(err)
		}
		return err
	}); err != nil {
		return fmt.Errorf("failed to post slack message %s: %w", msg.MessageID, err)
	}

	logging.FromContext(ctx).DebugContext(ctx, "delivered slack message",
		"message_id", msg.MessageID,
		"organization_id", msg.OrganizationID,
		"channel_id", dest.ChannelID)
	return nil
}
