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

package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/testutil"
)

func TestConfigValidateCommand(t *testing.T) {
	t.Parallel()

	ctx := logging.WithLogger(context.Background(), logging.TestLogger(t))

	dir := t.TempDir()
	rulePath := filepath.Join(dir, "rule.json")
	if err := os.WriteFile(rulePath, []byte(`{"configuration":{"url":"https://example.com/hook"},"template":"#Type#"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		args   []string
		stdin  string
		expOut string
		expErr string
	}{
		{
			name:   "too_many_args",
			args:   []string{"-type", "webhook", "foo"},
			expErr: `unexpected arguments: ["foo"]`,
		},
		{
			name:   "missing_type",
			expErr: `-type is required`,
		},
		{
			name:   "unknown_type",
			args:   []string{"-type", "fax"},
			expErr: `unknown integration type "fax"`,
		},
		{
			name:   "rule_from_file",
			args:   []string{"-type", "webhook", "-file", rulePath},
			expOut: "webhook delivery rule is valid",
		},
		{
			name:   "missing_file",
			args:   []string{"-type", "webhook", "-file", filepath.Join(dir, "missing.json")},
			expErr: `failed to open document`,
		},
		{
			name:   "rule_from_stdin",
			args:   []string{"-type", "slack"},
			stdin:  `{"event_type":1000,"configuration":{"channel_id":"C123"},"template":"#ActingUserName# logged in"}`,
			expOut: "slack delivery rule is valid",
		},
		{
			name:   "rule_without_template",
			args:   []string{"-type", "slack"},
			stdin:  `{"configuration":{"channel_id":"C123"},"template":" "}`,
			expErr: `slack delivery rule is not valid`,
		},
		{
			name:   "rule_with_bad_filters",
			args:   []string{"-type", "webhook", "-file", "-"},
			stdin:  `{"configuration":{"url":"https://example.com"},"filters":{"and_operator":"yes"},"template":"x"}`,
			expErr: `webhook delivery rule is not valid`,
		},
		{
			name:   "hec_rule_with_configuration",
			args:   []string{"-type", "hec"},
			stdin:  `{"configuration":{"uri":"https://example.com"},"template":"x"}`,
			expErr: `hec delivery rule is not valid`,
		},
		{
			name:   "malformed_rule",
			args:   []string{"-type", "webhook"},
			stdin:  `{"template":`,
			expErr: `failed to decode delivery rule`,
		},
		{
			name:   "integration_hec",
			args:   []string{"-type", "hec", "-integration"},
			stdin:  `{"uri":"https://splunk.example.com:8088/services/collector","token":"t-1"}`,
			expOut: "hec integration configuration is valid",
		},
		{
			name:   "integration_webhook_empty",
			args:   []string{"-type", "webhook", "-integration"},
			expOut: "webhook integration configuration is valid",
		},
		{
			name:   "integration_slack_rejects_manual_credentials",
			args:   []string{"-type", "slack", "-integration"},
			stdin:  `{"token":"xoxb-1"}`,
			expErr: `slack integration configuration is not valid`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var cmd ConfigValidateCommand
			stdin, stdout, _ := cmd.Pipe()
			stdin.WriteString(tc.stdin)

			err := cmd.Run(ctx, tc.args)
			if diff := testutil.DiffErrString(err, tc.expErr); diff != "" {
				t.Fatal(diff)
			}
			if got, want := strings.TrimSpace(stdout.String()), tc.expOut; got != want {
				t.Errorf("expected output %q to be %q", got, want)
			}
		})
	}
}
