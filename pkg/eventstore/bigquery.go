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

// Package eventstore contains the durable sinks that keep every captured
// event.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/pkg/logging"
)

// inserter is the part of the BigQuery table inserter used by the writer.
type inserter interface {
	Put(ctx context.Context, src any) error
}

// BigQueryWriter streams envelopes into a BigQuery table, one row per event.
// It is both an events.Sink and the handler of the event store queue.
type BigQueryWriter struct {
	client   *bigquery.Client
	inserter inserter
}

// NewBigQueryWriter creates a writer for projectID.datasetID.tableID.
func NewBigQueryWriter(ctx context.Context, projectID, datasetID, tableID string, opts ...option.ClientOption) (*BigQueryWriter, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new bigquery client: %w", err)
	}

	return &BigQueryWriter{
		client:   client,
		inserter: client.Dataset(datasetID).Table(tableID).Inserter(),
	}, nil
}

// Close releases any resources held by the BigQuery client.
func (w *BigQueryWriter) Close() error {
	if w.client == nil {
		return nil
	}
	if err := w.client.Close(); err != nil {
		return fmt.Errorf("failed to close bigquery client: %w", err)
	}
	return nil
}

// Write stores one envelope.
func (w *BigQueryWriter) Write(ctx context.Context, e *events.Envelope) error {
	return w.WriteMany(ctx, []*events.Envelope{e})
}

// WriteMany stores a batch of envelopes.
func (w *BigQueryWriter) WriteMany(ctx context.Context, batch []*events.Envelope) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]*Row, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, &Row{Envelope: e})
	}

	if err := w.inserter.Put(ctx, rows); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) {
			for _, rowErr := range multi {
				logging.FromContext(ctx).ErrorContext(ctx, "failed to insert event",
					"event_id", rows[rowErr.RowIndex].Envelope.ID,
					"error", rowErr.Error())
			}
		}
		return fmt.Errorf("failed to insert %d events: %w", len(rows), err)
	}
	return nil
}

// HandleMessage stores the events of one bus message.
func (w *BigQueryWriter) HandleMessage(ctx context.Context, body []byte, messageID string) error {
	batch, err := events.DecodeBatch(body)
	if err != nil {
		return fmt.Errorf("failed to decode message %s: %w", messageID, err)
	}
	return w.WriteMany(ctx, batch)
}

// Row is the BigQuery shape of an envelope.
type Row struct {
	Envelope *events.Envelope
}

// Save implements the ValueSaver interface. The event id is the insert id so
// a redelivered event is deduplicated by the streaming API.
func (r *Row) Save() (map[string]bigquery.Value, string, error) {
	e := r.Envelope
	row := map[string]bigquery.Value{
		"id":              e.ID,
		"type":            int(e.Type),
		"type_name":       e.Type.String(),
		"date":            e.Date,
		"organization_id": nullable(e.OrganizationID),
		"user_id":         nullable(e.UserID),
		"acting_user_id":  nullable(e.ActingUserID),
		"ip_address":      nullable(e.IPAddress),
	}

	// The remaining attributes are stored as one JSON column so new envelope
	// fields do not need a schema change.
	attrs := make(map[string]string)
	for _, name := range []string{
		"ServiceAccountId", "ProviderId", "InstallationId", "CipherId",
		"CollectionId", "GroupId", "PolicyId", "OrganizationUserId",
		"SecretId", "ProjectId", "GrantedServiceAccountId", "DeviceType",
		"DomainName",
	} {
		if v, ok := e.Attribute(name); ok && v != "" {
			attrs[name] = v
		}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal attributes of event %s: %w", e.ID, err)
	}
	row["attributes"] = string(b)

	return row, e.ID, nil
}

func nullable(s string) bigquery.Value {
	if s == "" {
		return nil
	}
	return s
}
