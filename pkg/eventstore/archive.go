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

package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/abcxyz/org-event-integrations/pkg/events"
)

// noOrganization is the object prefix of events without an organization.
const noOrganization = "_none"

// objectWriterFunc opens a writer for a new object in the archive bucket.
type objectWriterFunc func(ctx context.Context, name string) io.WriteCloser

// ArchiveWriter keeps every batch as one JSON object in Cloud Storage under
// events/{organization}/{yyyy}/{mm}/{dd}/{uuid}.json.
type ArchiveWriter struct {
	client    *storage.Client
	newObject objectWriterFunc
	now       func() time.Time
	newID     func() string
}

// NewArchiveWriter creates a writer for the bucket.
func NewArchiveWriter(ctx context.Context, bucket string, opts ...option.ClientOption) (*ArchiveWriter, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	handle := client.Bucket(bucket)
	w := newArchiveWriter(func(ctx context.Context, name string) io.WriteCloser {
		ow := handle.Object(name).NewWriter(ctx)
		ow.ContentType = "application/json"
		return ow
	})
	w.client = client
	return w, nil
}

func newArchiveWriter(fn objectWriterFunc) *ArchiveWriter {
	return &ArchiveWriter{
		newObject: fn,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

// Close releases the storage client.
func (w *ArchiveWriter) Close() error {
	if w.client == nil {
		return nil
	}
	if err := w.client.Close(); err != nil {
		return fmt.Errorf("failed to close storage client: %w", err)
	}
	return nil
}

// Write archives one envelope.
func (w *ArchiveWriter) Write(ctx context.Context, e *events.Envelope) error {
	return w.WriteMany(ctx, []*events.Envelope{e})
}

// WriteMany archives a batch. Each organization in the batch gets its own
// object.
func (w *ArchiveWriter) WriteMany(ctx context.Context, batch []*events.Envelope) error {
	var merr error
	for _, part := range events.PartitionByOrganization(batch) {
		if err := w.writeObject(ctx, part); err != nil {
			merr = errors.Join(merr, err)
		}
	}
	return merr
}

// ObjectName returns the archive object name of a batch of the organization
// written at t.
func ObjectName(orgID string, t time.Time, id string) string {
	org := strings.ToLower(orgID)
	if org == "" {
		org = noOrganization
	}
	t = t.UTC()
	return path.Join("events", org,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		id+".json")
}

func (w *ArchiveWriter) writeObject(ctx context.Context, batch []*events.Envelope) error {
	name := ObjectName(batch[0].OrganizationID, w.now(), w.newID())

	b, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	ow := w.newObject(ctx, name)
	if _, err := ow.Write(b); err != nil {
		_ = ow.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	// The object is committed on close.
	if err := ow.Close(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}
