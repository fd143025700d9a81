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
	"testing"
)

func ptr[T any](v T) *T {
	return &v
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		typ    Type
		config *Configuration
		want   bool
	}{
		{
			name:   "webhook_valid",
			typ:    TypeWebhook,
			config: &Configuration{Configuration: ptr(`{"url":"https://example"}`), Template: "{}"},
			want:   true,
		},
		{
			name:   "webhook_with_token",
			typ:    TypeWebhook,
			config: &Configuration{Configuration: ptr(`{"url":"https://example.com/hook","scheme":"Bearer","token":"t"}`), Template: "#Type#"},
			want:   true,
		},
		{
			name:   "webhook_missing_config",
			typ:    TypeWebhook,
			config: &Configuration{Template: "{}"},
			want:   false,
		},
		{
			name:   "webhook_not_json",
			typ:    TypeWebhook,
			config: &Configuration{Configuration: ptr(`not json`), Template: "{}"},
			want:   false,
		},
		{
			name:   "webhook_missing_url",
			typ:    TypeWebhook,
			config: &Configuration{Configuration: ptr(`{"token":"t"}`), Template: "{}"},
			want:   false,
		},
		{
			name:   "webhook_bad_scheme",
			typ:    TypeWebhook,
			config: &Configuration{Configuration: ptr(`{"url":"ftp://example.com"}`), Template: "{}"},
			want:   false,
		},
		{
			name:   "webhook_wrong_field_type",
			typ:    TypeWebhook,
			config: &Configuration{Configuration: ptr(`{"url":42}`), Template: "{}"},
			want:   false,
		},
		{
			name:   "slack_valid",
			typ:    TypeSlack,
			config: &Configuration{Configuration: ptr(`{"channel_id":"C123"}`), Template: "hello"},
			want:   true,
		},
		{
			name:   "slack_empty_channel",
			typ:    TypeSlack,
			config: &Configuration{Configuration: ptr(`{"channel_id":""}`), Template: "hello"},
			want:   false,
		},
		{
			name:   "hec_null_config",
			typ:    TypeHec,
			config: &Configuration{Template: "t"},
			want:   true,
		},
		{
			name:   "hec_config_forbidden",
			typ:    TypeHec,
			config: &Configuration{Configuration: ptr(`{}`), Template: "t"},
			want:   false,
		},
		{
			name:   "datadog_null_config",
			typ:    TypeDatadog,
			config: &Configuration{Template: "t"},
			want:   true,
		},
		{
			name:   "teams_config_forbidden",
			typ:    TypeTeams,
			config: &Configuration{Configuration: ptr(`{"tenant_id":"x"}`), Template: "t"},
			want:   false,
		},
		{
			name:   "blank_template",
			typ:    TypeHec,
			config: &Configuration{Template: "  \n"},
			want:   false,
		},
		{
			name:   "valid_filters",
			typ:    TypeHec,
			config: &Configuration{Template: "t", Filters: ptr(`{"and_operator":true,"rules":[{"property":"UserId","operation":"Equals","value":"x"}]}`)},
			want:   true,
		},
		{
			name:   "invalid_filters",
			typ:    TypeHec,
			config: &Configuration{Template: "t", Filters: ptr(`Invalid Configuration!`)},
			want:   false,
		},
		{
			name:   "filters_unknown_property",
			typ:    TypeHec,
			config: &Configuration{Template: "t", Filters: ptr(`{"rules":[{"property":"Bogus","operation":"Equals","value":"x"}]}`)},
			want:   false,
		},
		{
			name:   "cloud_billing_sync_rejected",
			typ:    TypeCloudBillingSync,
			config: &Configuration{Template: "t"},
			want:   false,
		},
		{
			name:   "scim_rejected",
			typ:    TypeScim,
			config: &Configuration{Template: "t"},
			want:   false,
		},
		{
			name:   "unknown_type_rejected",
			typ:    Type(99),
			config: &Configuration{Template: "t"},
			want:   false,
		},
		{
			name:   "nil_config",
			typ:    TypeWebhook,
			config: nil,
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := v.Validate(tc.typ, tc.config); got != tc.want {
				t.Errorf("Validate() = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestValidator_ValidateIntegration(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		typ  Type
		cfg  *string
		want bool
	}{
		{name: "hec_valid", typ: TypeHec, cfg: ptr(`{"uri":"https://splunk.example.com:8088/services/collector","token":"abc"}`), want: true},
		{name: "hec_missing", typ: TypeHec, want: false},
		{name: "hec_missing_token", typ: TypeHec, cfg: ptr(`{"uri":"https://splunk.example.com"}`), want: false},
		{name: "datadog_valid", typ: TypeDatadog, cfg: ptr(`{"uri":"https://api.datadoghq.com/api/v1/events","api_key":"k"}`), want: true},
		{name: "datadog_bad_uri", typ: TypeDatadog, cfg: ptr(`{"uri":"datadog","api_key":"k"}`), want: false},
		{name: "webhook_none", typ: TypeWebhook, want: true},
		{name: "webhook_default_url", typ: TypeWebhook, cfg: ptr(`{"url":"https://example.com"}`), want: true},
		{name: "slack_must_start_null", typ: TypeSlack, cfg: ptr(`{"token":"xoxb"}`), want: false},
		{name: "slack_null", typ: TypeSlack, want: true},
		{name: "teams_null", typ: TypeTeams, want: true},
		{name: "scim", typ: TypeScim, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := v.ValidateIntegration(tc.typ, tc.cfg); got != tc.want {
				t.Errorf("ValidateIntegration() = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestValidator_ValidateCredentials(t *testing.T) {
	t.Parallel()

	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}

	if err := v.ValidateCredentials(TypeSlack, `{"token":"xoxb-1"}`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.ValidateCredentials(TypeTeams, `{"tenant_id":""}`); err == nil {
		t.Error("expected error for empty tenant")
	}
	if err := v.ValidateCredentials(TypeHec, `{}`); err == nil {
		t.Error("expected error for non-oauth type")
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{TypeCloudBillingSync, TypeScim, TypeSlack, TypeWebhook, TypeHec, TypeDatadog, TypeTeams} {
		got, err := ParseType(typ.String())
		if err != nil {
			t.Errorf("ParseType(%q): %v", typ, err)
		}
		if got != typ {
			t.Errorf("ParseType(%q) = %v", typ, got)
		}
	}

	if got, err := ParseType(" Slack "); err != nil || got != TypeSlack {
		t.Errorf("ParseType(Slack) = %v, %v", got, err)
	}
	if _, err := ParseType("pagerduty"); err == nil {
		t.Error("expected error for unknown type")
	}
}
