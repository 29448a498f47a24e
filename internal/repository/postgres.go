package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresUsageStore persists usage records durably. Schema:
//
//	CREATE TABLE usage_records (
//	    id            BIGSERIAL PRIMARY KEY,
//	    request_id    TEXT NOT NULL,
//	    model         TEXT NOT NULL,
//	    provider      TEXT NOT NULL,
//	    input_tokens  INTEGER NOT NULL,
//	    output_tokens INTEGER NOT NULL,
//	    cost_usd      DOUBLE PRECISION NOT NULL,
//	    cache_source  TEXT NOT NULL DEFAULT 'none',
//	    latency_ms    BIGINT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX usage_records_created_at_idx ON usage_records (created_at);
type PostgresUsageStore struct {
	db *sql.DB
}

func NewPostgresUsageStore(databaseURL string) (*PostgresUsageStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &PostgresUsageStore{db: db}, nil
}

func NewPostgresUsageStoreWithDB(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

func (s *PostgresUsageStore) Record(ctx context.Context, record UsageRecord) error {
	query := `
		INSERT INTO usage_records (request_id, model, provider, input_tokens, output_tokens, cost_usd, cache_source, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.RequestID,
		record.Model,
		record.Provider,
		record.InputTokens,
		record.OutputTokens,
		record.CostUSD,
		record.CacheSource,
		record.LatencyMs,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

func (s *PostgresUsageStore) Since(ctx context.Context, since time.Time) ([]UsageRecord, error) {
	query := `
		SELECT request_id, model, provider, input_tokens, output_tokens, cost_usd, cache_source, latency_ms, created_at
		FROM usage_records
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var r UsageRecord
		err := rows.Scan(
			&r.RequestID,
			&r.Model,
			&r.Provider,
			&r.InputTokens,
			&r.OutputTokens,
			&r.CostUSD,
			&r.CacheSource,
			&r.LatencyMs,
			&r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *PostgresUsageStore) TotalCost(ctx context.Context, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM usage_records
		WHERE created_at >= $1
	`

	var total float64
	if err := s.db.QueryRowContext(ctx, query, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total cost: %w", err)
	}

	return total, nil
}

func (s *PostgresUsageStore) Close() error {
	return s.db.Close()
}
