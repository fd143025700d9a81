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

package events

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/pkg/testutil"
)

func TestEnvelope_Attribute(t *testing.T) {
	t.Parallel()

	device := 9
	e := &Envelope{
		ID:             "3b1e4c1a-0000-4000-8000-000000000001",
		Type:           CipherCreated,
		Date:           time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600)),
		OrganizationID: "org-1",
		DeviceType:     &device,
	}

	cases := []struct {
		name   string
		attr   string
		want   string
		wantOK bool
	}{
		{name: "id", attr: "Id", want: e.ID, wantOK: true},
		{name: "type_name", attr: "Type", want: "Cipher_Created", wantOK: true},
		{name: "date_utc", attr: "Date", want: "2025-03-04T04:06:07Z", wantOK: true},
		{name: "org", attr: "OrganizationId", want: "org-1", wantOK: true},
		{name: "unset_known", attr: "UserId", want: "", wantOK: true},
		{name: "device_type", attr: "DeviceType", want: "9", wantOK: true},
		{name: "unknown", attr: "Nope", want: "", wantOK: false},
		{name: "case_sensitive", attr: "userid", want: "", wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := e.Attribute(tc.attr)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("Attribute(%q) = (%q, %t), want (%q, %t)", tc.attr, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestEventType_String(t *testing.T) {
	t.Parallel()

	if got, want := UserLoggedIn.String(), "User_LoggedIn"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := EventType(4242).String(), "4242"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeBatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		wantIDs []string
		wantErr string
	}{
		{
			name:    "single",
			body:    `{"id":"a","type":1000,"organization_id":"o"}`,
			wantIDs: []string{"a"},
		},
		{
			name:    "array",
			body:    ` [{"id":"a"},{"id":"b"}] `,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "empty_array",
			body:    `[]`,
			wantIDs: []string{},
		},
		{
			name:    "empty",
			body:    "   ",
			wantErr: "empty event payload",
		},
		{
			name:    "null_element",
			body:    `[{"id":"a"},null]`,
			wantErr: "null at index 1",
		},
		{
			name:    "malformed",
			body:    `{"id":`,
			wantErr: "failed to decode event",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeBatch([]byte(tc.body))
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if err != nil {
				return
			}
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if diff := cmp.Diff(tc.wantIDs, ids); diff != "" {
				t.Errorf("ids (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestPartitionByOrganization(t *testing.T) {
	t.Parallel()

	batch := []*Envelope{
		{ID: "1", OrganizationID: "a"},
		{ID: "2", OrganizationID: "b"},
		{ID: "3", OrganizationID: "a"},
		{ID: "4"},
		{ID: "5", OrganizationID: "b"},
	}

	got := PartitionByOrganization(batch)
	ids := make([][]string, 0, len(got))
	for _, p := range got {
		var row []string
		for _, e := range p {
			row = append(row, e.ID)
		}
		ids = append(ids, row)
	}

	want := [][]string{{"1", "3"}, {"2", "5"}, {"4"}}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("partitions (-want, +got):\n%s", diff)
	}
}
