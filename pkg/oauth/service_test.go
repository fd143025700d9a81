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

package oauth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/org-event-integrations/pkg/oauthstate"
	"github.com/abcxyz/org-event-integrations/pkg/store"
	"github.com/abcxyz/pkg/logging"
)

const (
	testOrg      = "8c2e6b4a-0000-4000-8000-000000000001"
	otherOrg     = "8c2e6b4a-0000-4000-8000-000000000002"
	testCallback = "https://admin.example.com/integrations/slack/create"
)

var testNow = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

type memoryRepo struct {
	mu      sync.Mutex
	byID    map[string]*integrations.OrganizationIntegration
	created int
	getErr  error
}

func newMemoryRepo(is ...*integrations.OrganizationIntegration) *memoryRepo {
	r := &memoryRepo{byID: make(map[string]*integrations.OrganizationIntegration)}
	for _, i := range is {
		r.byID[i.ID] = i
	}
	return r
}

func (r *memoryRepo) GetIntegration(ctx context.Context, id string) (*integrations.OrganizationIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	i, ok := r.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (r *memoryRepo) GetIntegrationByOrganizationAndType(ctx context.Context, orgID string, t integrations.Type) (*integrations.OrganizationIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.byID {
		if i.OrganizationID == orgID && i.Type == t {
			cp := *i
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *memoryRepo) CreateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *i
	r.byID[i.ID] = &cp
	r.created++
	return nil
}

func (r *memoryRepo) UpdateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[i.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *i
	r.byID[i.ID] = &cp
	return nil
}

type fakeExchanger struct {
	cfg      string
	err      error
	codes    []string
	redirect string
}

func (e *fakeExchanger) AuthCodeURL(state, callbackURL string) string {
	if e.redirect == "-" {
		return ""
	}
	return "https://provider.example.com/authorize?" + url.Values{
		"state":        {state},
		"redirect_uri": {callbackURL},
	}.Encode()
}

func (e *fakeExchanger) Exchange(ctx context.Context, code, callbackURL string) (string, error) {
	e.codes = append(e.codes, code)
	return e.cfg, e.err
}

func newTestCodec(t *testing.T, now time.Time) *oauthstate.Codec {
	t.Helper()

	c, err := oauthstate.NewCodec([]byte("0123456789abcdef0123456789abcdef"),
		oauthstate.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestService(t *testing.T, repo *memoryRepo, ex Exchanger) *Service {
	t.Helper()

	s, err := NewService(repo, newTestCodec(t, testNow), map[integrations.Type]Exchanger{
		integrations.TypeSlack: ex,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return testNow }
	s.newID = func() string { return "11111111-1111-4111-8111-111111111111" }
	return s
}

func slackIntegration(id, org string, cfg *string) *integrations.OrganizationIntegration {
	return &integrations.OrganizationIntegration{
		ID:             id,
		OrganizationID: org,
		Type:           integrations.TypeSlack,
		Configuration:  cfg,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestService_RedirectURL(t *testing.T) {
	t.Parallel()

	const existingID = "22222222-2222-4222-8222-222222222222"

	cases := []struct {
		name        string
		repo        *memoryRepo
		typ         integrations.Type
		redirect    string
		wantErr     error
		wantStateID string
		wantCreated int
	}{
		{
			name:        "creates_integration",
			repo:        newMemoryRepo(),
			typ:         integrations.TypeSlack,
			wantStateID: "11111111-1111-4111-8111-111111111111",
			wantCreated: 1,
		},
		{
			name:        "reuses_unconfigured",
			repo:        newMemoryRepo(slackIntegration(existingID, testOrg, nil)),
			typ:         integrations.TypeSlack,
			wantStateID: existingID,
		},
		{
			name:    "already_configured",
			repo:    newMemoryRepo(slackIntegration(existingID, testOrg, ptr(`{"token":"xoxb"}`))),
			typ:     integrations.TypeSlack,
			wantErr: ErrConflict,
		},
		{
			name:    "not_an_oauth_type",
			repo:    newMemoryRepo(),
			typ:     integrations.TypeWebhook,
			wantErr: ErrBadRequest,
		},
		{
			name:        "provider_has_no_url",
			repo:        newMemoryRepo(),
			typ:         integrations.TypeSlack,
			redirect:    "-",
			wantErr:     ErrNotFound,
			wantCreated: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := logging.WithLogger(t.Context(), logging.TestLogger(t))
			s := newTestService(t, tc.repo, &fakeExchanger{redirect: tc.redirect})

			got, err := s.RedirectURL(ctx, testOrg, tc.typ, testCallback)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("RedirectURL() error = %v, want %v", err, tc.wantErr)
			}
			if got, want := tc.repo.created, tc.wantCreated; got != want {
				t.Errorf("created %d integrations, want %d", got, want)
			}
			if tc.wantErr != nil {
				return
			}

			u, err := url.Parse(got)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := u.Query().Get("redirect_uri"), testCallback; got != want {
				t.Errorf("redirect_uri = %q, want %q", got, want)
			}
			state := newTestCodec(t, testNow).FromString(u.Query().Get("state"))
			if state == nil {
				t.Fatal("state did not verify")
			}
			if got, want := state.IntegrationID, tc.wantStateID; got != want {
				t.Errorf("state integration = %q, want %q", got, want)
			}
			if !state.ValidateOrg(testOrg) {
				t.Error("state is not bound to the organization")
			}
		})
	}
}

func TestService_Complete(t *testing.T) {
	t.Parallel()

	const id = "33333333-3333-4333-8333-333333333333"
	codec := newTestCodec(t, testNow)
	validState := codec.FromIntegration(slackIntegration(id, testOrg, nil)).String()
	otherOrgState := codec.FromIntegration(slackIntegration(id, otherOrg, nil)).String()
	expiredState := newTestCodec(t, testNow.Add(-time.Hour)).FromIntegration(slackIntegration(id, testOrg, nil)).String()

	cases := []struct {
		name      string
		stored    *integrations.OrganizationIntegration
		getErr    error
		typ       integrations.Type
		code      string
		state     string
		exCfg     string
		exErr     error
		wantErr   error
		wantCodes []string
		wantCfg   *string
	}{
		{
			name:      "success",
			stored:    slackIntegration(id, testOrg, nil),
			typ:       integrations.TypeSlack,
			code:      "code-1",
			state:     validState,
			exCfg:     `{"token":"xoxb-1"}`,
			wantCodes: []string{"code-1"},
			wantCfg:   ptr(`{"token":"xoxb-1"}`),
		},
		{
			name:    "empty_state",
			stored:  slackIntegration(id, testOrg, nil),
			typ:     integrations.TypeSlack,
			code:    "code-1",
			wantErr: ErrNotFound,
		},
		{
			name:    "expired_state",
			stored:  slackIntegration(id, testOrg, nil),
			typ:     integrations.TypeSlack,
			code:    "code-1",
			state:   expiredState,
			wantErr: ErrNotFound,
		},
		{
			name:    "missing_integration",
			typ:     integrations.TypeSlack,
			code:    "code-1",
			state:   validState,
			wantErr: ErrNotFound,
		},
		{
			name:    "repository_failure",
			stored:  slackIntegration(id, testOrg, nil),
			getErr:  errors.New("connection reset"),
			typ:     integrations.TypeSlack,
			code:    "code-1",
			state:   validState,
			wantErr: ErrNotFound,
		},
		{
			name:    "wrong_organization",
			stored:  slackIntegration(id, testOrg, nil),
			typ:     integrations.TypeSlack,
			code:    "code-1",
			state:   otherOrgState,
			wantErr: ErrNotFound,
		},
		{
			name:    "already_configured",
			stored:  slackIntegration(id, testOrg, ptr(`{"token":"old"}`)),
			typ:     integrations.TypeSlack,
			code:    "code-1",
			state:   validState,
			wantErr: ErrNotFound,
			wantCfg: ptr(`{"token":"old"}`),
		},
		{
			name:    "type_mismatch",
			stored:  slackIntegration(id, testOrg, nil),
			typ:     integrations.TypeTeams,
			code:    "code-1",
			state:   validState,
			wantErr: ErrNotFound,
		},
		{
			name:    "empty_code",
			stored:  slackIntegration(id, testOrg, nil),
			typ:     integrations.TypeSlack,
			state:   validState,
			wantErr: ErrBadRequest,
		},
		{
			name:      "no_credentials",
			stored:    slackIntegration(id, testOrg, nil),
			typ:       integrations.TypeSlack,
			code:      "code-1",
			state:     validState,
			wantErr:   ErrBadRequest,
			wantCodes: []string{"code-1"},
		},
		{
			name:      "provider_error",
			stored:    slackIntegration(id, testOrg, nil),
			typ:       integrations.TypeSlack,
			code:      "code-1",
			state:     validState,
			exErr:     ErrBadRequest,
			wantErr:   ErrBadRequest,
			wantCodes: []string{"code-1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := logging.WithLogger(t.Context(), logging.TestLogger(t))
			repo := newMemoryRepo()
			if tc.stored != nil {
				repo = newMemoryRepo(tc.stored)
			}
			repo.getErr = tc.getErr
			ex := &fakeExchanger{cfg: tc.exCfg, err: tc.exErr}
			s := newTestService(t, repo, ex)
			s.exchangers[integrations.TypeTeams] = &fakeExchanger{}

			got, err := s.Complete(ctx, tc.typ, tc.code, tc.state, testCallback)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Complete() error = %v, want %v", err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.wantCodes, ex.codes); diff != "" {
				t.Errorf("exchanged codes (-want, +got):\n%s", diff)
			}

			if tc.stored != nil {
				repo.getErr = nil
				stored, err := repo.GetIntegration(ctx, id)
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(tc.wantCfg, stored.Configuration); diff != "" {
					t.Errorf("stored configuration (-want, +got):\n%s", diff)
				}
			}
			if tc.wantErr == nil {
				if got.RevisionDate != testNow {
					t.Errorf("revision date = %v, want %v", got.RevisionDate, testNow)
				}
			}
		})
	}
}

func TestService_Complete_ValidatesCredentials(t *testing.T) {
	t.Parallel()

	const id = "44444444-4444-4444-8444-444444444444"
	ctx := logging.WithLogger(t.Context(), logging.TestLogger(t))

	v, err := integrations.NewValidator()
	if err != nil {
		t.Fatal(err)
	}
	repo := newMemoryRepo(slackIntegration(id, testOrg, nil))
	s, err := NewService(repo, newTestCodec(t, testNow), map[integrations.Type]Exchanger{
		integrations.TypeSlack: &fakeExchanger{cfg: `{"token":""}`},
	}, WithValidator(v))
	if err != nil {
		t.Fatal(err)
	}

	state := newTestCodec(t, testNow).FromIntegration(slackIntegration(id, testOrg, nil)).String()
	if _, err := s.Complete(ctx, integrations.TypeSlack, "code-1", state, testCallback); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("Complete() error = %v, want %v", err, ErrBadRequest)
	}
	stored, err := repo.GetIntegration(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Configured() {
		t.Errorf("invalid credentials were stored: %s", *stored.Configuration)
	}
}

func TestService_Types(t *testing.T) {
	t.Parallel()

	s, err := NewService(newMemoryRepo(), newTestCodec(t, testNow), map[integrations.Type]Exchanger{
		integrations.TypeTeams: &fakeExchanger{},
		integrations.TypeSlack: &fakeExchanger{},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []integrations.Type{integrations.TypeSlack, integrations.TypeTeams}
	if diff := cmp.Diff(want, s.Types()); diff != "" {
		t.Errorf("Types (-want, +got):\n%s", diff)
	}
}
