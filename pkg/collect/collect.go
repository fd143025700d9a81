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
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/abcxyz/org-event-integrations/pkg/events"
	"github.com/abcxyz/pkg/logging"
)

const (
	// SHA256SignatureHeader is the header used to pass the HMAC-SHA256
	// hexdigest of the body.
	SHA256SignatureHeader = "X-Event-Signature-256"

	// mb is used for conversion to megabytes.
	mb = 1000000
)

var (
	statusAccepted = map[string]string{"status": "accepted"}

	errReadingPayload   = errors.New("failed to read event payload")
	errNoPayload        = errors.New("no payload received")
	errInvalidSignature = errors.New("failed to validate event signature")
	errMalformedPayload = errors.New("payload is not an event or a list of events")
	errWritingToBackend = errors.New("failed to write to backend")
)

// handleEvents accepts one envelope or a list of envelopes and hands them to
// the sinks, one organization at a time.
func (s *Server) handleEvents() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		payload, err := io.ReadAll(io.LimitReader(r.Body, 25*mb))
		if err != nil {
			logger.ErrorContext(ctx, "failed read event request body",
				"code", http.StatusInternalServerError,
				"body", errReadingPayload,
				"error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, errReadingPayload)
			return
		}

		if len(payload) == 0 {
			logger.ErrorContext(ctx, "no payload received",
				"code", http.StatusBadRequest,
				"body", errNoPayload)
			s.h.RenderJSON(w, http.StatusBadRequest, errNoPayload)
			return
		}

		if !s.isValidSignature(r.Header.Get(SHA256SignatureHeader), payload) {
			logger.ErrorContext(ctx, "failed to validate event payload",
				"code", http.StatusUnauthorized,
				"body", errInvalidSignature)
			s.h.RenderJSON(w, http.StatusUnauthorized, errInvalidSignature)
			return
		}

		batch, err := events.DecodeBatch(payload)
		if err != nil {
			logger.ErrorContext(ctx, "failed to decode event payload",
				"code", http.StatusBadRequest,
				"body", errMalformedPayload,
				"error", err)
			s.h.RenderJSON(w, http.StatusBadRequest, errMalformedPayload)
			return
		}

		now := s.now()
		for _, e := range batch {
			if e.ID == "" {
				e.ID = s.newID()
			}
			if e.Date.IsZero() {
				e.Date = now
			}
		}

		for _, part := range events.PartitionByOrganization(batch) {
			if err := s.handler.HandleMany(ctx, part); err != nil {
				logger.ErrorContext(ctx, "failed to hand events to sinks",
					"code", http.StatusInternalServerError,
					"body", errWritingToBackend,
					"organization_id", part[0].OrganizationID,
					"error", err)
				s.h.RenderJSON(w, http.StatusInternalServerError, errWritingToBackend)
				return
			}
		}

		logger.DebugContext(ctx, "accepted events", "count", len(batch))
		s.h.RenderJSON(w, http.StatusAccepted, statusAccepted)
	})
}

// isValidSignature validates the http request signature against the signature of the payload.
func (s *Server) isValidSignature(signature string, payload []byte) bool {
	mac := hmac.New(sha256.New, s.signingSecret)
	mac.Write(payload)
	got := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(signature), []byte(got)) == 1
}
