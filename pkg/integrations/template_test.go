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
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRender(t *testing.T) {
	t.Parallel()

	e := testEvent()
	e.Date = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	extra := func(name string) (string, bool) {
		if name == "OrganizationName" {
			return "Acme", true
		}
		return "", false
	}

	cases := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "base_tokens",
			template: "Date: #Date#, Type: #Type#, UserId: #UserId#",
			want:     "Date: 2025-01-02T03:04:05Z, Type: Cipher_Updated, UserId: " + testUserID,
		},
		{
			name:     "unset_value_renders_empty",
			template: "Group: #GroupId#.",
			want:     "Group: .",
		},
		{
			name:     "unknown_token_verbatim",
			template: "#Nope# and #UserId#",
			want:     "#Nope# and " + testUserID,
		},
		{
			name:     "extra_lookup",
			template: "Org: #OrganizationName#",
			want:     "Org: Acme",
		},
		{
			name:     "no_tokens",
			template: `{"text":"hello # world"}`,
			want:     `{"text":"hello # world"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Render(tc.template, Chain(EnvelopeLookup(e), extra))
			if got != tc.want {
				t.Errorf("Render() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	got := Tokens("#UserName#, #UserEmail#, #UserName# #Date#")
	want := []string{"UserName", "UserEmail", "Date"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tokens (-want, +got):\n%s", diff)
	}
}
