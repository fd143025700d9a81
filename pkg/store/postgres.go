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

	_ "github.com/lib/pq"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
)

const (
	detailsColumns = `c.id, i.organization_id, c.organization_integration_id, i.type, c.event_type,
		c.configuration, i.configuration, c.filters, c.template`

	detailsFrom = `FROM organization_integration_configuration c
		JOIN organization_integration i ON i.id = c.organization_integration_id`

	listDetailsQuery = `SELECT ` + detailsColumns + ` ` + detailsFrom + `
		WHERE i.organization_id = $1 AND i.type = $2 AND (c.event_type = $3 OR c.event_type IS NULL)
		ORDER BY c.creation_date, c.id`

	listIntegrationDetailsQuery = `SELECT ` + detailsColumns + ` ` + detailsFrom + `
		WHERE i.organization_id = $1 AND i.type = $2
		ORDER BY c.creation_date, c.id`

	integrationColumns = `id, organization_id, type, configuration, creation_date, revision_date`

	getIntegrationQuery = `SELECT ` + integrationColumns + ` FROM organization_integration WHERE id = $1`

	getIntegrationByOrgTypeQuery = `SELECT ` + integrationColumns + ` FROM organization_integration
		WHERE organization_id = $1 AND type = $2
		ORDER BY creation_date
		LIMIT 1`

	createIntegrationQuery = `INSERT INTO organization_integration
		(id, organization_id, type, configuration, creation_date, revision_date)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateIntegrationQuery = `UPDATE organization_integration
		SET configuration = $2, revision_date = $3
		WHERE id = $1`

	configurationColumns = `id, organization_integration_id, event_type, configuration, filters, template, creation_date, revision_date`

	getConfigurationQuery = `SELECT ` + configurationColumns + ` FROM organization_integration_configuration WHERE id = $1`

	createConfigurationQuery = `INSERT INTO organization_integration_configuration
		(id, organization_integration_id, event_type, configuration, filters, template, creation_date, revision_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	updateConfigurationQuery = `UPDATE organization_integration_configuration
		SET event_type = $2, configuration = $3, filters = $4, template = $5, revision_date = $6
		WHERE id = $1`

	deleteConfigurationQuery = `DELETE FROM organization_integration_configuration WHERE id = $1`
)

// Postgres implements the repositories and the details reader on a
// PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a store on an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres opens and pings a PostgreSQL database.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostgres(db), nil
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close postgres: %w", err)
	}
	return nil
}

// ListDetails implements DetailsReader.
func (p *Postgres) ListDetails(ctx context.Context, orgID string, t integrations.Type, eventType *int) ([]*integrations.ConfigurationDetails, error) {
	var et any
	if eventType != nil {
		et = int64(*eventType)
	}
	return p.queryDetails(ctx, listDetailsQuery, orgID, int64(t), et)
}

// ListIntegrationDetails implements IntegrationDetailsLister.
func (p *Postgres) ListIntegrationDetails(ctx context.Context, orgID string, t integrations.Type) ([]*integrations.ConfigurationDetails, error) {
	return p.queryDetails(ctx, listIntegrationDetailsQuery, orgID, int64(t))
}

func (p *Postgres) queryDetails(ctx context.Context, query string, args ...any) ([]*integrations.ConfigurationDetails, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configuration details: %w", err)
	}
	defer rows.Close()

	var out []*integrations.ConfigurationDetails
	for rows.Next() {
		var (
			d         integrations.ConfigurationDetails
			typ       int64
			eventType sql.NullInt64
			cfg       sql.NullString
			intCfg    sql.NullString
			filters   sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.OrganizationIntegrationID, &typ, &eventType,
			&cfg, &intCfg, &filters, &d.Template); err != nil {
			return nil, fmt.Errorf("failed to scan configuration details: %w", err)
		}
		d.IntegrationType = integrations.Type(typ)
		d.EventType = nullInt(eventType)
		d.Configuration = nullString(cfg)
		d.IntegrationConfiguration = nullString(intCfg)
		d.Filters = nullString(filters)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read configuration details: %w", err)
	}
	return out, nil
}

// GetIntegration implements IntegrationRepository.
func (p *Postgres) GetIntegration(ctx context.Context, id string) (*integrations.OrganizationIntegration, error) {
	return p.scanIntegration(p.db.QueryRowContext(ctx, getIntegrationQuery, id))
}

// GetIntegrationByOrganizationAndType implements IntegrationRepository.
func (p *Postgres) GetIntegrationByOrganizationAndType(ctx context.Context, orgID string, t integrations.Type) (*integrations.OrganizationIntegration, error) {
	return p.scanIntegration(p.db.QueryRowContext(ctx, getIntegrationByOrgTypeQuery, orgID, int64(t)))
}

func (p *Postgres) scanIntegration(row *sql.Row) (*integrations.OrganizationIntegration, error) {
	var (
		i   integrations.OrganizationIntegration
		typ int64
		cfg sql.NullString
	)
	err := row.Scan(&i.ID, &i.OrganizationID, &typ, &cfg, &i.CreationDate, &i.RevisionDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	i.Type = integrations.Type(typ)
	i.Configuration = nullString(cfg)
	return &i, nil
}

// CreateIntegration implements IntegrationRepository.
func (p *Postgres) CreateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error {
	if _, err := p.db.ExecContext(ctx, createIntegrationQuery,
		i.ID, i.OrganizationID, int64(i.Type), stringArg(i.Configuration), i.CreationDate, i.RevisionDate); err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}
	return nil
}

// UpdateIntegration implements IntegrationRepository. Only the configuration
// and revision date change.
func (p *Postgres) UpdateIntegration(ctx context.Context, i *integrations.OrganizationIntegration) error {
	res, err := p.db.ExecContext(ctx, updateIntegrationQuery, i.ID, stringArg(i.Configuration), i.RevisionDate)
	if err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}
	return requireRow(res)
}

// GetConfiguration implements ConfigurationRepository.
func (p *Postgres) GetConfiguration(ctx context.Context, id string) (*integrations.Configuration, error) {
	var (
		c         integrations.Configuration
		eventType sql.NullInt64
		cfg       sql.NullString
		filters   sql.NullString
	)
	err := p.db.QueryRowContext(ctx, getConfigurationQuery, id).Scan(&c.ID, &c.OrganizationIntegrationID,
		&eventType, &cfg, &filters, &c.Template, &c.CreationDate, &c.RevisionDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	c.EventType = nullInt(eventType)
	c.Configuration = nullString(cfg)
	c.Filters = nullString(filters)
	return &c, nil
}

// CreateConfiguration implements ConfigurationRepository.
func (p *Postgres) CreateConfiguration(ctx context.Context, c *integrations.Configuration) error {
	if _, err := p.db.ExecContext(ctx, createConfigurationQuery,
		c.ID, c.OrganizationIntegrationID, intArg(c.EventType), stringArg(c.Configuration), stringArg(c.Filters),
		c.Template, c.CreationDate, c.RevisionDate); err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}
	return nil
}

// UpdateConfiguration implements ConfigurationRepository.
func (p *Postgres) UpdateConfiguration(ctx context.Context, c *integrations.Configuration) error {
	res, err := p.db.ExecContext(ctx, updateConfigurationQuery,
		c.ID, intArg(c.EventType), stringArg(c.Configuration), stringArg(c.Filters), c.Template, c.RevisionDate)
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}
	return requireRow(res)
}

// DeleteConfiguration implements ConfigurationRepository.
func (p *Postgres) DeleteConfiguration(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, deleteConfigurationQuery, id)
	if err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func intArg(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}
