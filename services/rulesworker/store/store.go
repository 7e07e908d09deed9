// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the read-only query surface over the relational
// database that holds condition and variable definitions.
//
// The worker never writes through this package. Soft-deleted rows
// (deleted_at set) are filtered out at the query level so callers only ever
// see live entities.
package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested entity does not exist or is
// soft-deleted.
var ErrNotFound = errors.New("entity not found")

// JSONValue is an arbitrary JSON document stored in a jsonb column.
type JSONValue struct {
	V any
}

// Scan implements sql.Scanner for jsonb columns.
func (j *JSONValue) Scan(src any) error {
	if src == nil {
		j.V = nil
		return nil
	}
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, &j.V)
	case string:
		return json.Unmarshal([]byte(data), &j.V)
	default:
		return fmt.Errorf("cannot scan %T into JSONValue", src)
	}
}

// Value implements driver.Valuer.
func (j JSONValue) Value() (driver.Value, error) {
	return json.Marshal(j.V)
}

// Condition is a named boolean or arithmetic rule bound to an entity field.
//
// Usable only when DeletedAt is nil and IsActive is true; the engine
// enforces the active check, the store enforces the soft-delete filter.
type Condition struct {
	ID         string     `db:"id"`
	CampaignID string     `db:"campaign_id"`
	BranchID   string     `db:"branch_id"`
	EntityType string     `db:"entity_type"`
	EntityID   string     `db:"entity_id"`
	Field      string     `db:"field"`
	Expression JSONValue  `db:"expression"`
	IsActive   bool       `db:"is_active"`
	Priority   int        `db:"priority"`
	DeletedAt  *time.Time `db:"deleted_at"`
}

// Variable is a named datum whose value feeds conditions through the
// interpreter's var operator.
type Variable struct {
	ID         string     `db:"id"`
	CampaignID string     `db:"campaign_id"`
	BranchID   string     `db:"branch_id"`
	Name       string     `db:"name"`
	Value      JSONValue  `db:"value"`
	DeletedAt  *time.Time `db:"deleted_at"`
}

// Store is the narrow read surface the engine and coordinator consume.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by request handlers and
// the bus consumer.
type Store interface {
	// FindCondition fetches one live condition by id. Returns ErrNotFound
	// when absent or soft-deleted.
	FindCondition(ctx context.Context, id string) (*Condition, error)

	// FindVariable fetches one live variable by id. Returns ErrNotFound
	// when absent or soft-deleted.
	FindVariable(ctx context.Context, id string) (*Variable, error)

	// ListConditions enumerates the live conditions of a campaign branch,
	// used for full graph rebuilds.
	ListConditions(ctx context.Context, campaignID, branchID string) ([]*Condition, error)

	// ListVariables enumerates the live variables of a campaign branch.
	ListVariables(ctx context.Context, campaignID, branchID string) ([]*Variable, error)

	// Close releases the underlying connection pool.
	Close() error
}
