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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sethvargo/go-envconfig"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/org-event-integrations/pkg/store"
	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/testutil"
)

type memoryAdminStore struct {
	mu             sync.Mutex
	integrations   map[string]*integrations.OrganizationIntegration
	configurations map[string]*integrations.Configuration
}

func newMemoryAdminStore() *memoryAdminStore {
	return &memoryAdminStore{
		integrations:   make(map[string]*integrations.OrganizationIntegration),
		configurations: make(map[string]*integrations.Configuration),
	}
}

func (s *memoryAdminStore) GetIntegration(ctx context.Context, id string) (*integrations.OrganizationIntegration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.integrations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *memoryAdminStore) GetIntegrationByOrganizationAndType(ctx context.Context, orgID string, t integrations.Type) (*integrations.OrganizationIntegration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.integrations {
		if i.OrganizationID == orgID && i.Type == t {
			cp := *i
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memoryAdminStore) CreateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	s.integrations[i.ID] = &cp
	return nil
}

func (s *memoryAdminStore) UpdateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error {
	return s.CreateIntegration(ctx, i)
}

func (s *memoryAdminStore) GetConfiguration(ctx context.Context, id string) (*integrations.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configurations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memoryAdminStore) CreateConfiguration(ctx context.Context, c *integrations.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.configurations[c.ID] = &cp
	return nil
}

func (s *memoryAdminStore) UpdateConfiguration(ctx context.Context, c *integrations.Configuration) error {
	return s.CreateConfiguration(ctx, c)
}

func (s *memoryAdminStore) DeleteConfiguration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configurations, id)
	return nil
}

func TestAdminServerCommand(t *testing.T) {
	t.Parallel()

	ctx := logging.WithLogger(context.Background(), logging.TestLogger(t))

	validOAuth := map[string]string{
		"OAUTH_PUBLIC_URL":    "https://admin.example.com",
		"OAUTH_STATE_KEY":     "0123456789abcdef0123456789abcdef",
		"SLACK_CLIENT_ID":     "slack-client-id",
		"SLACK_CLIENT_SECRET": "slack-client-secret",
	}

	cases := []struct {
		name   string
		args   []string
		env    map[string]string
		oauth  map[string]string
		expErr string
	}{
		{
			name:   "too_many_args",
			args:   []string{"foo"},
			expErr: `unexpected arguments: ["foo"]`,
		},
		{
			name:   "invalid_config_project_id",
			env:    map[string]string{},
			expErr: `PROJECT_ID is required`,
		},
		{
			name: "invalid_config_database_url",
			env: map[string]string{
				"PROJECT_ID": "project-id",
			},
			expErr: `DATABASE_URL is required`,
		},
		{
			name: "invalid_oauth_public_url",
			env: map[string]string{
				"PROJECT_ID":   "project-id",
				"DATABASE_URL": "postgres://localhost/integrations",
			},
			oauth: map[string]string{
				"OAUTH_STATE_KEY": "0123456789abcdef0123456789abcdef",
			},
			expErr: `OAUTH_PUBLIC_URL`,
		},
		{
			name: "invalid_oauth_state_key",
			env: map[string]string{
				"PROJECT_ID":   "project-id",
				"DATABASE_URL": "postgres://localhost/integrations",
			},
			oauth: map[string]string{
				"OAUTH_PUBLIC_URL": "https://admin.example.com",
				"OAUTH_STATE_KEY":  "too-short",
			},
			expErr: `invalid OAUTH_STATE_KEY: oauth state key must be at least 16 bytes`,
		},
		{
			name: "happy_path",
			env: map[string]string{
				"PROJECT_ID":   "project-id",
				"DATABASE_URL": "postgres://localhost/integrations",
			},
			oauth: validOAuth,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, done := context.WithCancel(ctx)
			defer done()

			var cmd AdminServerCommand
			cmd.testFlagSetOpts = []cli.Option{cli.WithLookupEnv(envconfig.MultiLookuper(
				envconfig.MapLookuper(tc.env),
				envconfig.MapLookuper(map[string]string{
					// Make the test choose a random port.
					"PORT": "0",
				}),
			).Lookup)}
			cmd.testOAuthLookuper = envconfig.MapLookuper(tc.oauth)
			cmd.testStore = newMemoryAdminStore()

			_, _, _ = cmd.Pipe()

			srv, mux, err := cmd.RunUnstarted(ctx, tc.args)
			if diff := testutil.DiffErrString(err, tc.expErr); diff != "" {
				t.Fatal(diff)
			}
			if err != nil {
				return
			}

			assertHealthy(ctx, t, srv, mux)

			req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/organizations/org-1/integrations/slack/redirect", nil)
			resp := httptest.NewRecorder()
			mux.ServeHTTP(resp, req)

			if got, want := resp.Code, http.StatusFound; got != want {
				t.Errorf("expected %d to be %d: %s", got, want, resp.Body.String())
			}
			location := resp.Header().Get("Location")
			if !strings.HasPrefix(location, "https://slack.com/oauth/v2/authorize?") {
				t.Errorf("unexpected redirect location %q", location)
			}
			if !strings.Contains(location, "redirect_uri=https%3A%2F%2Fadmin.example.com%2Fintegrations%2Fslack%2Fcreate") {
				t.Errorf("redirect location %q does not carry the callback url", location)
			}
		})
	}
}
