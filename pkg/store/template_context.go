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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/abcxyz/org-event-integrations/pkg/events"
)

const (
	organizationNameQuery = `SELECT name FROM organization WHERE id = $1`

	groupNameQuery = `SELECT name FROM "group" WHERE id = $1 AND organization_id = $2`

	memberQuery = `SELECT u.name, COALESCE(u.email, ou.email), ou.type
		FROM organization_user ou
		LEFT JOIN "user" u ON u.id = ou.user_id
		WHERE ou.organization_id = $1 AND ou.user_id = $2`
)

var memberTypeNames = map[int64]string{
	0: "Owner",
	1: "Admin",
	2: "User",
	4: "Custom",
}

// TemplateContext resolves the template tokens that need a database lookup:
// OrganizationName, GroupName and the name, email and membership type of the
// user and the acting user. Only the lookups needed by tokens are run.
// Tokens whose subject is missing or unknown are returned empty.
func (p *Postgres) TemplateContext(ctx context.Context, e *events.Envelope, tokens []string) (map[string]string, error) {
	want := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		want[t] = true
	}
	out := make(map[string]string)

	if want["OrganizationName"] {
		name, err := p.lookupName(ctx, organizationNameQuery, e.OrganizationID)
		if err != nil {
			return nil, err
		}
		out["OrganizationName"] = name
	}

	if want["GroupName"] {
		var name string
		if e.GroupID != "" {
			var err error
			if name, err = p.lookupName(ctx, groupNameQuery, e.GroupID, e.OrganizationID); err != nil {
				return nil, err
			}
		}
		out["GroupName"] = name
	}

	for _, member := range []struct {
		prefix string
		userID string
	}{
		{prefix: "User", userID: e.UserID},
		{prefix: "ActingUser", userID: e.ActingUserID},
	} {
		if !want[member.prefix+"Name"] && !want[member.prefix+"Email"] && !want[member.prefix+"Type"] {
			continue
		}
		name, email, typ, err := p.lookupMember(ctx, e.OrganizationID, member.userID)
		if err != nil {
			return nil, err
		}
		out[member.prefix+"Name"] = name
		out[member.prefix+"Email"] = email
		out[member.prefix+"Type"] = typ
	}

	return out, nil
}

func (p *Postgres) lookupName(ctx context.Context, query string, args ...any) (string, error) {
	if args[0] == "" {
		return "", nil
	}
	var name sql.NullString
	err := p.db.QueryRowContext(ctx, query, args...).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up template value: %w", err)
	}
	return name.String, nil
}

func (p *Postgres) lookupMember(ctx context.Context, orgID, userID string) (string, string, string, error) {
	if orgID == "" || userID == "" {
		return "", "", "", nil
	}

	var (
		name  sql.NullString
		email sql.NullString
		typ   sql.NullInt64
	)
	err := p.db.QueryRowContext(ctx, memberQuery, orgID, userID).Scan(&name, &email, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", "", nil
	}
	if err != nil {
		return "", "", "", fmt.Errorf("failed to look up organization member: %w", err)
	}

	typeName := ""
	if typ.Valid {
		var ok bool
		if typeName, ok = memberTypeNames[typ.Int64]; !ok {
			typeName = strconv.FormatInt(typ.Int64, 10)
		}
	}
	return name.String, email.String, typeName, nil
}
