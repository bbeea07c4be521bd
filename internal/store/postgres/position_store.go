package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, bet_id, side, owner, amount, price, amount_to_earn, claimed`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, owner string
	if err := row.Scan(
		&p.ID, &p.BetID, &side, &owner,
		&p.Amount, &p.Price, &p.AmountToEarn, &p.Claimed,
	); err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.PositionSide(side)
	p.Owner = common.HexToAddress(owner)
	return p, nil
}

// Upsert inserts a position or replaces its mutable fields.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, bet_id, side, owner, amount, price, amount_to_earn, claimed, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			amount         = EXCLUDED.amount,
			price          = EXCLUDED.price,
			amount_to_earn = EXCLUDED.amount_to_earn,
			claimed        = EXCLUDED.claimed,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.BetID, string(p.Side), addrText(p.Owner),
		p.Amount, p.Price, p.AmountToEarn, p.Claimed,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %d: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id uint64) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

// ListByOwner returns an owner's positions, newest first.
func (s *PositionStore) ListByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := appendPaging(
		`SELECT `+positionSelectCols+` FROM positions WHERE owner = $1`,
		[]any{addrText(owner)}, 2, "updated_at", "id DESC", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
