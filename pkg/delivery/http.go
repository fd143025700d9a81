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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/logging"
)

var (
	retryMinWaitDuration        = 1 * time.Second
	retryMaxAttempts     uint64 = 3
	retryFunc                   = retry.NewFibonacci
)

const (
	defaultWebhookScheme = "Bearer"
	defaultHecScheme     = "Splunk"
	datadogAPIKeyHeader  = "DD-API-KEY"

	// maxResponseBytes bounds how much of a destination response is drained.
	maxResponseBytes = 64 << 10
)

// HTTPSender posts rendered templates to webhook, HEC and Datadog
// destinations.
type HTTPSender struct {
	typ    integrations.Type
	client *http.Client
}

// NewHTTPSender creates a sender for one of the HTTP integration types.
func NewHTTPSender(t integrations.Type, client *http.Client) (*HTTPSender, error) {
	switch t {
	case integrations.TypeWebhook, integrations.TypeHec, integrations.TypeDatadog:
	default:
		return nil, fmt.Errorf("integration type %s is not delivered over http", t)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSender{typ: t, client: client}, nil
}

// Send posts the message, retrying rate limits and server errors.
func (s *HTTPSender) Send(ctx context.Context, msg *Message) error {
	target, headers, err := s.destination(msg.Configuration)
	if err != nil {
		return err
	}
	headers.Set("Content-Type", contentType(msg.RenderedTemplate))

	if err := postWithRetry(ctx, s.client, target, headers, []byte(msg.RenderedTemplate)); err != nil {
		return fmt.Errorf("failed to deliver %s message %s: %w", s.typ, msg.MessageID, err)
	}

	logging.FromContext(ctx).DebugContext(ctx, "delivered message",
		"integration_type", s.typ.String(),
		"message_id", msg.MessageID,
		"organization_id", msg.OrganizationID)
	return nil
}

func (s *HTTPSender) destination(raw json.RawMessage) (string, http.Header, error) {
	h := make(http.Header)

	switch s.typ {
	case integrations.TypeWebhook:
		var c integrations.WebhookConfiguration
		if err := decodeDestination(raw, &c); err != nil {
			return "", nil, err
		}
		if c.Token != "" {
			h.Set("Authorization", withDefault(c.Scheme, defaultWebhookScheme)+" "+c.Token)
		}
		return c.URL, h, nil
	case integrations.TypeHec:
		var c integrations.HecIntegration
		if err := decodeDestination(raw, &c); err != nil {
			return "", nil, err
		}
		h.Set("Authorization", withDefault(c.Scheme, defaultHecScheme)+" "+c.Token)
		return c.URI, h, nil
	case integrations.TypeDatadog:
		var c integrations.DatadogIntegration
		if err := decodeDestination(raw, &c); err != nil {
			return "", nil, err
		}
		h.Set(datadogAPIKeyHeader, c.APIKey)
		return c.URI, h, nil
	}
	return "", nil, fmt.Errorf("unsupported integration type %s", s.typ)
}

type validatable interface {
	Validate() error
}

func decodeDestination(raw json.RawMessage, v validatable) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode destination: %w", err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	return nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func contentType(body string) string {
	if json.Valid([]byte(body)) {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

func convertRetryable(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return retry.RetryableError(fmt.Errorf("status code %v is marked as retryable", statusCode))
	}
	return fmt.Errorf("response has non-retryable error with status %v", statusCode)
}

// postWithRetry posts body to target. Transport failures, 429 and 5xx
// responses are retried.
func postWithRetry(ctx context.Context, client *http.Client, target string, headers http.Header, body []byte) error {
	backoff := retryFunc(retryMinWaitDuration)
	backoff = retry.WithMaxRetries(retryMaxAttempts, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to post: %w", err))
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

		return convertRetryable(resp.StatusCode)
	})
}
