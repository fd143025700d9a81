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

package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/iterator"
)

// eventTable is the fully qualified event store table.
type eventTable struct {
	client *bigquery.Client
	name   string
}

// newEventTable creates a client for the event store table and closes it
// when the test finishes.
func newEventTable(ctx context.Context, tb testing.TB, cfg *config) *eventTable {
	tb.Helper()

	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := client.Close(); err != nil {
			tb.Errorf("failed to close the bigquery client: %v", err)
		}
	})

	return &eventTable{
		client: client,
		name:   fmt.Sprintf("`%s.%s.%s`", cfg.ProjectID, cfg.DatasetID, cfg.EventsTableID),
	}
}

// countRows returns how many rows carry the event id.
func (t *eventTable) countRows(ctx context.Context, eventID string) (int64, error) {
	q := t.client.Query("SELECT COUNT(1) FROM " + t.name + " WHERE id = @event_id")
	q.Parameters = []bigquery.QueryParameter{{Name: "event_id", Value: eventID}}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to run query: %w", err)
	}

	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return 0, errors.New("query returned no rows")
		}
		return 0, fmt.Errorf("failed to read query results: %w", err)
	}

	n, ok := row[0].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", row[0])
	}
	return n, nil
}

// waitForRows polls the table until want rows carry the event id. Streaming
// inserts are not visible to queries immediately.
func (t *eventTable) waitForRows(ctx context.Context, tb testing.TB, eventID string, want int64, wait time.Duration, attempts uint64) {
	tb.Helper()

	b := retry.WithMaxRetries(attempts, retry.NewExponential(wait))
	if err := retry.Do(ctx, b, func(ctx context.Context) error {
		got, err := t.countRows(ctx, eventID)
		if err != nil {
			tb.Logf("query error: %v", err)
			return retry.RetryableError(err)
		}
		if got != want {
			tb.Logf("found %d rows for event %s, want %d; retrying", got, eventID, want)
			return retry.RetryableError(fmt.Errorf("found %d rows for event %s, want %d", got, eventID, want))
		}
		return nil
	}); err != nil {
		tb.Errorf("event %s did not reach the event store: %v", eventID, err)
	}
}
