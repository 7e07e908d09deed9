// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	conditionColumns = `id, campaign_id, branch_id, entity_type, entity_id,
		field, expression, is_active, priority, deleted_at`
	variableColumns = `id, campaign_id, branch_id, name, value, deleted_at`
)

// PostgresStore implements Store over a Postgres connection pool.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a pool against the given DSN and verifies
// connectivity before returning.
//
// # Inputs
//
//   - ctx: bounds the initial connectivity ping.
//   - dsn: a postgres:// connection string.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection, used by tests.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindCondition fetches one live condition by id.
func (s *PostgresStore) FindCondition(ctx context.Context, id string) (*Condition, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM field_conditions WHERE id = $1 AND deleted_at IS NULL`,
		conditionColumns)

	var cond Condition
	if err := s.db.GetContext(ctx, &cond, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("condition %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query condition %s: %w", id, err)
	}
	return &cond, nil
}

// FindVariable fetches one live variable by id.
func (s *PostgresStore) FindVariable(ctx context.Context, id string) (*Variable, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM variables WHERE id = $1 AND deleted_at IS NULL`,
		variableColumns)

	var v Variable
	if err := s.db.GetContext(ctx, &v, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("variable %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query variable %s: %w", id, err)
	}
	return &v, nil
}

// ListConditions enumerates the live conditions of a campaign branch,
// ordered by priority then id so rebuilds are deterministic.
func (s *PostgresStore) ListConditions(ctx context.Context, campaignID, branchID string) ([]*Condition, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM field_conditions
		 WHERE campaign_id = $1 AND branch_id = $2 AND deleted_at IS NULL
		 ORDER BY priority DESC, id ASC`,
		conditionColumns)

	conditions := make([]*Condition, 0)
	if err := s.db.SelectContext(ctx, &conditions, query, campaignID, branchID); err != nil {
		return nil, fmt.Errorf("failed to list conditions for %s/%s: %w", campaignID, branchID, err)
	}
	return conditions, nil
}

// ListVariables enumerates the live variables of a campaign branch.
func (s *PostgresStore) ListVariables(ctx context.Context, campaignID, branchID string) ([]*Variable, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM variables
		 WHERE campaign_id = $1 AND branch_id = $2 AND deleted_at IS NULL
		 ORDER BY name ASC`,
		variableColumns)

	variables := make([]*Variable, 0)
	if err := s.db.SelectContext(ctx, &variables, query, campaignID, branchID); err != nil {
		return nil, fmt.Errorf("failed to list variables for %s/%s: %w", campaignID, branchID, err)
	}
	return variables, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
