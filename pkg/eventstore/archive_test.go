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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/pkg/testutil"
)

type memoryObject struct {
	bucket   *memoryBucket
	name     string
	buf      bytes.Buffer
	closeErr error
}

func (o *memoryObject) Write(p []byte) (int, error) {
	return o.buf.Write(p)
}

func (o *memoryObject) Close() error {
	if o.closeErr != nil {
		return o.closeErr
	}
	o.bucket.mu.Lock()
	defer o.bucket.mu.Unlock()
	o.bucket.objects[o.name] = o.buf.String()
	return nil
}

type memoryBucket struct {
	mu       sync.Mutex
	objects  map[string]string
	closeErr error
}

func (b *memoryBucket) open(ctx context.Context, name string) io.WriteCloser {
	return &memoryObject{bucket: b, name: name, closeErr: b.closeErr}
}

func newTestArchive(b *memoryBucket) *ArchiveWriter {
	w := newArchiveWriter(b.open)
	w.now = func() time.Time { return time.Date(2025, 3, 4, 23, 59, 0, 0, time.UTC) }
	n := 0
	w.newID = func() string {
		n++
		return fmt.Sprintf("obj-%d", n)
	}
	return w
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("PST", -8*3600))
	if got, want := ObjectName("ORG-1", ts, "x"), "events/org-1/2025/01/02/x.json"; got != want {
		t.Errorf("ObjectName() = %q, want %q", got, want)
	}
	if got, want := ObjectName("", ts, "x"), "events/_none/2025/01/02/x.json"; got != want {
		t.Errorf("ObjectName() = %q, want %q", got, want)
	}
}

func TestArchiveWriter_WriteMany(t *testing.T) {
	t.Parallel()

	b := &memoryBucket{objects: make(map[string]string)}
	w := newTestArchive(b)

	batch := []*events.Envelope{
		testEnvelope("e-1", "org-1"),
		testEnvelope("e-2", "org-2"),
		testEnvelope("e-3", "org-1"),
	}
	if err := w.WriteMany(t.Context(), batch); err != nil {
		t.Fatal(err)
	}

	got := make(map[string][]string)
	for name, body := range b.objects {
		var es []*events.Envelope
		if err := json.Unmarshal([]byte(body), &es); err != nil {
			t.Fatalf("object %s is not a JSON array: %v", name, err)
		}
		for _, e := range es {
			got[name] = append(got[name], e.ID)
		}
	}
	want := map[string][]string{
		"events/org-1/2025/03/04/obj-1.json": {"e-1", "e-3"},
		"events/org-2/2025/03/04/obj-2.json": {"e-2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("objects (-want, +got):\n%s", diff)
	}
}

func TestArchiveWriter_CommitFailure(t *testing.T) {
	t.Parallel()

	b := &memoryBucket{objects: make(map[string]string), closeErr: errors.New("precondition failed")}
	w := newTestArchive(b)

	err := w.Write(t.Context(), testEnvelope("e-1", "org-1"))
	if diff := testutil.DiffErrString(err, "failed to commit events/org-1/2025/03/04/obj-1.json"); diff != "" {
		t.Error(diff)
	}
	if len(b.objects) != 0 {
		t.Errorf("objects = %v, want none", b.objects)
	}
}
