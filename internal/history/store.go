// Copyright 2025 Partner Opportunity Intelligence Project
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

// Package history persists a record of every analysis invocation so
// operators can review recent requests, fallback rates and generated SQL.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store handles the SQLite invocation history database
type Store struct {
	db *sql.DB
}

// NewStore creates a new history store
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, used by health checks
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// initSchema creates the invocations table if it doesn't exist
func (s *Store) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS invocations (
			request_id TEXT PRIMARY KEY,
			customer_name TEXT,
			region TEXT,
			opportunity_name TEXT,
			generated_sql TEXT,
			row_count INTEGER,
			fallback_mode INTEGER,
			fallback_reason TEXT,
			duration_ms INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	_, err := s.db.Exec(query)
	return err
}

// Invocation represents one recorded pipeline run
type Invocation struct {
	RequestID       string    `json:"request_id"`
	CustomerName    string    `json:"customer_name"`
	Region          string    `json:"region"`
	OpportunityName string    `json:"opportunity_name"`
	GeneratedSQL    string    `json:"generated_sql"`
	RowCount        int       `json:"row_count"`
	FallbackMode    bool      `json:"fallback_mode"`
	FallbackReason  string    `json:"fallback_reason,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// RecordInvocation adds an invocation record to the database
func (s *Store) RecordInvocation(ctx context.Context, inv Invocation) error {
	query := `
		INSERT OR REPLACE INTO invocations
			(request_id, customer_name, region, opportunity_name, generated_sql,
			 row_count, fallback_mode, fallback_reason, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		inv.RequestID, inv.CustomerName, inv.Region, inv.OpportunityName,
		inv.GeneratedSQL, inv.RowCount, inv.FallbackMode, inv.FallbackReason,
		inv.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}

	return nil
}

// RecentInvocations returns the most recent invocations, newest first
func (s *Store) RecentInvocations(ctx context.Context, limit int) ([]Invocation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT request_id, customer_name, region, opportunity_name, generated_sql,
		       row_count, fallback_mode, fallback_reason, duration_ms, created_at
		FROM invocations
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invocations []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(&inv.RequestID, &inv.CustomerName, &inv.Region,
			&inv.OpportunityName, &inv.GeneratedSQL, &inv.RowCount,
			&inv.FallbackMode, &inv.FallbackReason, &inv.DurationMS,
			&inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}

	return invocations, rows.Err()
}

// FallbackRate returns the fraction of recorded invocations that fell back
// to mock analysis, over the trailing window of n invocations.
func (s *Store) FallbackRate(ctx context.Context, n int) (float64, error) {
	if n <= 0 {
		n = 100
	}

	query := `
		SELECT COUNT(*), COALESCE(SUM(fallback_mode), 0)
		FROM (SELECT fallback_mode FROM invocations ORDER BY created_at DESC LIMIT ?)
	`

	var total, fallbacks int
	if err := s.db.QueryRowContext(ctx, query, n).Scan(&total, &fallbacks); err != nil {
		return 0, fmt.Errorf("failed to compute fallback rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	return float64(fallbacks) / float64(total), nil
}
