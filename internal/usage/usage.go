// Package usage keeps the append-only per-tenant per-day counters of
// retrieval operations. Quota and analytics consumers read them from
// the relational store; this package only increments.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store records search usage in PostgreSQL. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record increments today's search counter for the tenant. Days are
// bucketed in UTC so the counter does not depend on server locale.
func (s *Store) Record(ctx context.Context, tenantID string) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (tenant_id, day, searches)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, day)
		DO UPDATE SET searches = usage_records.searches + 1`, tenantID, day)
	if err != nil {
		return fmt.Errorf("record usage for tenant %s: %w", tenantID, err)
	}
	return nil
}

// DayCount returns the tenant's search count for one UTC day.
func (s *Store) DayCount(ctx context.Context, tenantID string, day time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT searches FROM usage_records WHERE tenant_id = $1 AND day = $2`,
		tenantID, day.UTC().Truncate(24*time.Hour)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("usage count for tenant %s: %w", tenantID, err)
	}
	return count, nil
}
