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

// Package events defines the event envelope and the fan-out handler that
// hands captured events to the configured sinks.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Envelope is the normalized record of a single domain event. An Envelope is
// produced once and read by every sink; it must not be modified after it has
// been handed to a Handler.
type Envelope struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Date time.Time `json:"date"`

	UserID           string `json:"user_id,omitempty"`
	OrganizationID   string `json:"organization_id,omitempty"`
	ServiceAccountID string `json:"service_account_id,omitempty"`
	ActingUserID     string `json:"acting_user_id,omitempty"`
	ProviderID       string `json:"provider_id,omitempty"`
	InstallationID   string `json:"installation_id,omitempty"`

	CipherID                string `json:"cipher_id,omitempty"`
	CollectionID            string `json:"collection_id,omitempty"`
	GroupID                 string `json:"group_id,omitempty"`
	PolicyID                string `json:"policy_id,omitempty"`
	OrganizationUserID      string `json:"organization_user_id,omitempty"`
	SecretID                string `json:"secret_id,omitempty"`
	ProjectID               string `json:"project_id,omitempty"`
	GrantedServiceAccountID string `json:"granted_service_account_id,omitempty"`

	DeviceType *int   `json:"device_type,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	DomainName string `json:"domain_name,omitempty"`
}

// attributes maps the attribute names used by filter rules and template
// tokens to their accessors.
var attributes = map[string]func(e *Envelope) string{
	"Id":                      func(e *Envelope) string { return e.ID },
	"Type":                    func(e *Envelope) string { return e.Type.String() },
	"Date":                    func(e *Envelope) string { return formatDate(e.Date) },
	"UserId":                  func(e *Envelope) string { return e.UserID },
	"OrganizationId":          func(e *Envelope) string { return e.OrganizationID },
	"ServiceAccountId":        func(e *Envelope) string { return e.ServiceAccountID },
	"ActingUserId":            func(e *Envelope) string { return e.ActingUserID },
	"ProviderId":              func(e *Envelope) string { return e.ProviderID },
	"InstallationId":          func(e *Envelope) string { return e.InstallationID },
	"CipherId":                func(e *Envelope) string { return e.CipherID },
	"CollectionId":            func(e *Envelope) string { return e.CollectionID },
	"GroupId":                 func(e *Envelope) string { return e.GroupID },
	"PolicyId":                func(e *Envelope) string { return e.PolicyID },
	"OrganizationUserId":      func(e *Envelope) string { return e.OrganizationUserID },
	"SecretId":                func(e *Envelope) string { return e.SecretID },
	"ProjectId":               func(e *Envelope) string { return e.ProjectID },
	"GrantedServiceAccountId": func(e *Envelope) string { return e.GrantedServiceAccountID },
	"IpAddress":               func(e *Envelope) string { return e.IPAddress },
	"DomainName":              func(e *Envelope) string { return e.DomainName },
	"DeviceType": func(e *Envelope) string {
		if e.DeviceType == nil {
			return ""
		}
		return strconv.Itoa(*e.DeviceType)
	},
}

// Attribute returns the named attribute of the event as a string. The second
// return value is false when name is not a known attribute. Known attributes
// that are unset return the empty string and true.
func (e *Envelope) Attribute(name string) (string, bool) {
	fn, ok := attributes[name]
	if !ok {
		return "", false
	}
	return fn(e), true
}

// IsAttribute reports whether name is a known envelope attribute.
func IsAttribute(name string) bool {
	_, ok := attributes[name]
	return ok
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// DecodeBatch decodes a bus or request body that holds either a single JSON
// envelope or a JSON array of envelopes.
func DecodeBatch(b []byte) ([]*Envelope, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, errors.New("empty event payload")
	}

	if trimmed[0] == '[' {
		var batch []*Envelope
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode event batch: %w", err)
		}
		for i, e := range batch {
			if e == nil {
				return nil, fmt.Errorf("event batch contains null at index %d", i)
			}
		}
		return batch, nil
	}

	var e Envelope
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return []*Envelope{&e}, nil
}

// PartitionByOrganization splits a batch into per-organization batches. The
// relative order of events inside each partition matches the input, and the
// partitions are returned in order of first appearance.
func PartitionByOrganization(batch []*Envelope) [][]*Envelope {
	index := make(map[string]int)
	var out [][]*Envelope
	for _, e := range batch {
		i, ok := index[e.OrganizationID]
		if !ok {
			i = len(out)
			index[e.OrganizationID] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], e)
	}
	return out
}
