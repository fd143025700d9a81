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

// Package secrets resolves configuration values that may point at Secret
// Manager and parses symmetric keys.
package secrets

import (
	"context"
	"fmt"
	"hash/crc32"
	"regexp"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"google.golang.org/api/option"
)

var versionNamePattern = regexp.MustCompile(`^projects/[^/]+/secrets/[^/]+/versions/[^/]+$`)

// IsVersionName reports whether the value has the form
// 'projects/*/secrets/*/versions/*'.
func IsVersionName(value string) bool {
	return versionNamePattern.MatchString(value)
}

type accessFunc func(ctx context.Context, name string) (*secretmanagerpb.SecretPayload, error)

// Resolver turns configuration values into secrets. Values naming a Secret
// Manager version are read from Secret Manager, anything else is used as-is.
type Resolver struct {
	access accessFunc
	close  func() error
}

// NewResolver creates a resolver backed by a Secret Manager client.
func NewResolver(ctx context.Context, opts ...option.ClientOption) (*Resolver, error) {
	sm, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &Resolver{
		access: func(ctx context.Context, name string) (*secretmanagerpb.SecretPayload, error) {
			result, err := sm.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
				Name: name,
			})
			if err != nil {
				return nil, err //nolint:wrapcheck // Wrapped by the caller.
			}
			return result.GetPayload(), nil
		},
		close: sm.Close,
	}, nil
}

// Close releases the Secret Manager client.
func (r *Resolver) Close() error {
	if r.close == nil {
		return nil
	}
	if err := r.close(); err != nil {
		return fmt.Errorf("failed to close secret manager client: %w", err)
	}
	return nil
}

// Resolve returns the secret the value refers to. A Secret Manager payload is
// validated against its checksum so a corrupted read is never used.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsVersionName(value) {
		return value, nil
	}

	payload, err := r.access(ctx, value)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version %q: %w", value, err)
	}
	if payload == nil {
		return "", fmt.Errorf("secret version %q has no payload", value)
	}

	crc32c := crc32.MakeTable(crc32.Castagnoli)
	checksum := int64(crc32.Checksum(payload.GetData(), crc32c))
	if payload.DataCrc32C == nil || checksum != payload.GetDataCrc32C() {
		return "", fmt.Errorf("failed to access secret version %q - data corrupted", value)
	}
	return string(payload.GetData()), nil
}

// ParseSymmetricKey returns the key bytes of either raw key material or a
// JSON Web Key of type "oct".
func ParseSymmetricKey(content string) ([]byte, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("key is empty")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}

	key, err := jwk.ParseKey([]byte(trimmed))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWK: %w", err)
	}
	if got := key.KeyType(); got != jwa.OctetSeq {
		return nil, fmt.Errorf("JWK must be of type %q, got %q", jwa.OctetSeq, got)
	}

	var raw []byte
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("failed to read JWK key material: %w", err)
	}
	return raw, nil
}
