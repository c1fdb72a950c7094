package fhe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage persists authorizations across restarts. Choosing it
// over the in-memory store means the ephemeral private keys land in the
// database; that confidentiality tradeoff belongs to the operator.
type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(db *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS decryption_signatures (
			cache_key  TEXT PRIMARY KEY,
			record     TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create decryption_signatures table: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx,
		"SELECT record FROM decryption_signatures WHERE cache_key = $1", key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read authorization record: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStorage) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO decryption_signatures (cache_key, record, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to store authorization record: %w", err)
	}
	return nil
}
