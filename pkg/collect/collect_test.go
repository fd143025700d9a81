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

package collect

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
)

const (
	//nolint:gosec // This is a false positive for a variable name.
	serverSigningSecret = "test-signing-secret"
	serverProjectID     = "test-project-id"
)

var testNow = time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]*events.Envelope
	err     error
}

func (h *recordingHandler) HandleMany(ctx context.Context, batch []*events.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, batch)
	return h.err
}

// batchIDs flattens the recorded batches to event ids per organization call.
func (h *recordingHandler) batchIDs() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out [][]string
	for _, b := range h.batches {
		var ids []string
		for _, e := range b {
			ids = append(ids, e.ID)
		}
		out = append(out, ids)
	}
	return out
}

func newTestServer(ctx context.Context, t *testing.T, handler BatchHandler) *Server {
	t.Helper()

	h, err := renderer.New(ctx, nil,
		renderer.WithDebug(true),
		renderer.WithOnError(func(err error) {
			t.Error(err)
		}))
	if err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(h, handler, &Config{
		ProjectID:     serverProjectID,
		SigningSecret: serverSigningSecret,
	})
	if err != nil {
		t.Fatalf("failed to create new server: %v", err)
	}
	srv.now = func() time.Time { return testNow }
	n := 0
	srv.newID = func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
	return srv
}

func TestHandleEvents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		payload       string
		secret        string
		handlerErr    error
		expStatusCode int
		expRespBody   string
		expBatches    [][]string
	}{
		{
			name:          "success_single",
			payload:       `{"id":"e-1","type":1100,"organization_id":"org-1"}`,
			secret:        serverSigningSecret,
			expStatusCode: http.StatusAccepted,
			expRespBody:   `{"status":"accepted"}`,
			expBatches:    [][]string{{"e-1"}},
		},
		{
			name: "success_partitioned",
			payload: `[
				{"id":"e-1","type":1100,"organization_id":"org-1"},
				{"id":"e-2","type":1000,"organization_id":"org-2"},
				{"id":"e-3","type":1101,"organization_id":"org-1"}
			]`,
			secret:        serverSigningSecret,
			expStatusCode: http.StatusAccepted,
			expRespBody:   `{"status":"accepted"}`,
			expBatches:    [][]string{{"e-1", "e-3"}, {"e-2"}},
		},
		{
			name:          "empty_payload",
			secret:        serverSigningSecret,
			expStatusCode: http.StatusBadRequest,
			expRespBody:   `{"errors":["no payload received"]}`,
		},
		{
			name:          "invalid_signature",
			payload:       `{"id":"e-1","type":1100}`,
			secret:        "not-valid",
			expStatusCode: http.StatusUnauthorized,
			expRespBody:   `{"errors":["failed to validate event signature"]}`,
		},
		{
			name:          "malformed_payload",
			payload:       `"just a string"`,
			secret:        serverSigningSecret,
			expStatusCode: http.StatusBadRequest,
			expRespBody:   `{"errors":["payload is not an event or a list of events"]}`,
		},
		{
			name:          "backend_failure",
			payload:       `{"id":"e-1","type":1100,"organization_id":"org-1"}`,
			secret:        serverSigningSecret,
			handlerErr:    errors.New("topic not found"),
			expStatusCode: http.StatusInternalServerError,
			expRespBody:   `{"errors":["failed to write to backend"]}`,
			expBatches:    [][]string{{"e-1"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := logging.WithLogger(t.Context(), logging.TestLogger(t))
			handler := &recordingHandler{err: tc.handlerErr}
			srv := newTestServer(ctx, t, handler)

			payload := []byte(tc.payload)
			req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/events", bytes.NewReader(payload))
			req.Header.Add(SHA256SignatureHeader, fmt.Sprintf("sha256=%s", createSignature([]byte(tc.secret), payload)))
			resp := httptest.NewRecorder()

			srv.handleEvents().ServeHTTP(resp, req)

			if got, want := resp.Code, tc.expStatusCode; got != want {
				t.Errorf("expected %d to be %d", got, want)
			}
			if got, want := strings.TrimSpace(resp.Body.String()), tc.expRespBody; got != want {
				t.Errorf("expected %q to be %q", got, want)
			}
			if diff := cmp.Diff(tc.expBatches, handler.batchIDs()); diff != "" {
				t.Errorf("handled batches (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestHandleEvents_FillsMissingFields(t *testing.T) {
	t.Parallel()

	ctx := logging.WithLogger(t.Context(), logging.TestLogger(t))
	handler := &recordingHandler{}
	srv := newTestServer(ctx, t, handler)

	payload := []byte(`[{"type":1100,"organization_id":"org-1"},{"id":"keep","type":1100,"organization_id":"org-1","date":"2024-01-02T03:04:05Z"}]`)
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/events", bytes.NewReader(payload))
	req.Header.Add(SHA256SignatureHeader, "sha256="+createSignature([]byte(serverSigningSecret), payload))
	resp := httptest.NewRecorder()

	srv.handleEvents().ServeHTTP(resp, req)

	if got, want := resp.Code, http.StatusAccepted; got != want {
		t.Fatalf("expected %d to be %d", got, want)
	}
	if got, want := len(handler.batches), 1; got != want {
		t.Fatalf("got %d batches, want %d", got, want)
	}

	type idDate struct {
		ID   string
		Date time.Time
	}
	var got []idDate
	for _, e := range handler.batches[0] {
		got = append(got, idDate{ID: e.ID, Date: e.Date})
	}
	want := []idDate{
		{ID: "gen-1", Date: testNow},
		{ID: "keep", Date: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("envelopes (-want, +got):\n%s", diff)
	}
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	ctx := logging.WithLogger(t.Context(), logging.TestLogger(t))
	srv := newTestServer(ctx, t, &recordingHandler{})
	routes := srv.Routes(ctx)

	cases := []struct {
		name          string
		method        string
		path          string
		expStatusCode int
	}{
		{
			name:          "healthz",
			method:        http.MethodGet,
			path:          "/healthz",
			expStatusCode: http.StatusOK,
		},
		{
			name:          "version",
			method:        http.MethodGet,
			path:          "/version",
			expStatusCode: http.StatusOK,
		},
		{
			name:          "events_wrong_method",
			method:        http.MethodGet,
			path:          "/events",
			expStatusCode: http.StatusMethodNotAllowed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequestWithContext(ctx, tc.method, tc.path, nil)
			resp := httptest.NewRecorder()
			routes.ServeHTTP(resp, req)

			if got, want := resp.Code, tc.expStatusCode; got != want {
				t.Errorf("expected %d to be %d", got, want)
			}
		})
	}
}

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(nil, &recordingHandler{}, &Config{}); err == nil {
		t.Error("expected error for nil renderer")
	}

	h, err := renderer.New(t.Context(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewServer(h, nil, &Config{}); err == nil {
		t.Error("expected error for nil handler")
	}
}

// createSignature creates a HMAC 256 signature for the test request payload.
func createSignature(key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
