package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CursorStore implements domain.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *pgxpool.Pool
}

func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the last sequence recorded under name, zero if none.
func (s *CursorStore) Get(ctx context.Context, name string) (uint64, error) {
	var seq uint64
	err := s.pool.QueryRow(ctx, `SELECT seq FROM projection_cursors WHERE name = $1`, name).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get cursor %s: %w", name, err)
	}
	return seq, nil
}

// Set advances the cursor. It never moves a cursor backwards.
func (s *CursorStore) Set(ctx context.Context, name string, seq uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projection_cursors (name, seq, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			seq        = GREATEST(projection_cursors.seq, EXCLUDED.seq),
			updated_at = NOW()`,
		name, seq,
	)
	if err != nil {
		return fmt.Errorf("postgres: set cursor %s: %w", name, err)
	}
	return nil
}
