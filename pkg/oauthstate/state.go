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

// Package oauthstate issues and verifies the state parameter that binds an
// OAuth redirect to the integration and organization that started it.
package oauthstate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
)

const (
	// DefaultTTL is how long an issued state stays valid.
	DefaultTTL = 20 * time.Minute

	// MinKeyLength is the minimum HMAC key size in bytes.
	MinKeyLength = 16

	// maxClockSkew is how far in the future an issuance time may be.
	maxClockSkew = time.Minute

	// orgDigestLength is the number of base64url characters of the
	// organization digest that are kept.
	orgDigestLength = 22
)

var b64 = base64.RawURLEncoding

// Option configures a Codec.
type Option func(c *Codec)

// WithTTL overrides the validity window of issued states.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		c.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec issues and parses states with a single secret key.
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewCodec creates a codec. The key must be at least MinKeyLength bytes.
func NewCodec(key []byte, opts ...Option) (*Codec, error) {
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("oauth state key must be at least %d bytes, got %d", MinKeyLength, len(key))
	}

	c := &Codec{
		key: append([]byte(nil), key...),
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl <= 0 {
		return nil, fmt.Errorf("oauth state ttl must be positive, got %s", c.ttl)
	}
	return c, nil
}

// State is a parsed or freshly issued OAuth state.
type State struct {
	IntegrationID string
	IssuedAt      time.Time

	orgDigest string
	codec     *Codec
}

// FromIntegration issues a state for the integration at the current time.
func (c *Codec) FromIntegration(i *integrations.OrganizationIntegration) *State {
	issued := c.now().UTC().Truncate(time.Second)
	return &State{
		IntegrationID: i.ID,
		IssuedAt:      issued,
		orgDigest:     c.orgDigest(i.OrganizationID, issued.Unix()),
		codec:         c,
	}
}

// FromString parses and verifies a serialized state. It returns nil when the
// state is malformed, was not issued with this codec's key, has expired or
// was issued too far in the future.
func (c *Codec) FromString(s string) *State {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return nil
	}
	id, digest, issuedRaw, macRaw := parts[0], parts[1], parts[2], parts[3]

	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	issuedUnix, err := strconv.ParseInt(issuedRaw, 10, 64)
	if err != nil {
		return nil
	}
	if _, err := b64.DecodeString(digest); err != nil || len(digest) != orgDigestLength {
		return nil
	}
	mac, err := b64.DecodeString(macRaw)
	if err != nil {
		return nil
	}
	if !hmac.Equal(mac, c.mac(id, digest, issuedRaw)) {
		return nil
	}

	issued := time.Unix(issuedUnix, 0).UTC()
	now := c.now()
	if now.Sub(issued) > c.ttl {
		return nil
	}
	if issued.Sub(now) > maxClockSkew {
		return nil
	}

	return &State{
		IntegrationID: id,
		IssuedAt:      issued,
		orgDigest:     digest,
		codec:         c,
	}
}

// ValidateOrg reports whether the state was issued for the organization.
func (s *State) ValidateOrg(orgID string) bool {
	if s == nil || s.codec == nil {
		return false
	}
	want := s.codec.orgDigest(orgID, s.IssuedAt.Unix())
	return hmac.Equal([]byte(want), []byte(s.orgDigest))
}

// String serializes the state for use as the OAuth state parameter.
func (s *State) String() string {
	issued := strconv.FormatInt(s.IssuedAt.Unix(), 10)
	mac := s.codec.mac(s.IntegrationID, s.orgDigest, issued)
	return strings.Join([]string{s.IntegrationID, s.orgDigest, issued, b64.EncodeToString(mac)}, ".")
}

func (c *Codec) orgDigest(orgID string, issued int64) string {
	h := hmac.New(sha256.New, c.key)
	fmt.Fprintf(h, "org|%s|%d", strings.ToLower(orgID), issued)
	return b64.EncodeToString(h.Sum(nil))[:orgDigestLength]
}

func (c *Codec) mac(id, digest, issued string) []byte {
	h := hmac.New(sha256.New, c.key)
	fmt.Fprintf(h, "state|%s.%s.%s", id, digest, issued)
	return h.Sum(nil)
}
