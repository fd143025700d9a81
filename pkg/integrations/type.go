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

package integrations

import (
	"fmt"
	"strings"
)

// Type identifies the kind of external destination an integration delivers
// to. The zero value is not a valid type.
type Type int

const (
	TypeUnknown Type = iota
	TypeCloudBillingSync
	TypeScim
	TypeSlack
	TypeWebhook
	TypeHec
	TypeDatadog
	TypeTeams
)

var typeNames = map[Type]string{
	TypeCloudBillingSync: "cloud_billing_sync",
	TypeScim:             "scim",
	TypeSlack:            "slack",
	TypeWebhook:          "webhook",
	TypeHec:              "hec",
	TypeDatadog:          "datadog",
	TypeTeams:            "teams",
}

// DeliveryTypes are the types that receive events through the bus.
var DeliveryTypes = []Type{TypeSlack, TypeWebhook, TypeHec, TypeDatadog, TypeTeams}

// String returns the wire name of the type.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// ParseType parses a type name case-insensitively.
func ParseType(s string) (Type, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == want {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown integration type %q", s)
}

// OAuth reports whether integrations of this type are established through the
// OAuth setup flow.
func (t Type) OAuth() bool {
	return t == TypeSlack || t == TypeTeams
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	n, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("cannot marshal integration type %d", int(t))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
