package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. Bets never change
// after creation, so Upsert ignores conflicts.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betSelectCols = `id, event_id, market_index, offer_id, outcome, total_amount,
	back_position_id, lay_position_id, created_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var outcome int16
	if err := row.Scan(
		&b.ID, &b.EventID, &b.MarketIndex, &b.OfferID, &outcome, &b.TotalAmount,
		&b.BackPositionID, &b.LayPositionID, &b.CreatedAt,
	); err != nil {
		return domain.Bet{}, err
	}
	b.Outcome = domain.Outcome(outcome)
	return b, nil
}

func (s *BetStore) Upsert(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, event_id, market_index, offer_id, outcome, total_amount,
			back_position_id, lay_position_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.EventID, b.MarketIndex, b.OfferID, int16(b.Outcome), b.TotalAmount,
		b.BackPositionID, b.LayPositionID, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %d: %w", b.ID, err)
	}
	return nil
}

func (s *BetStore) GetByID(ctx context.Context, id uint64) (domain.Bet, error) {
	b, err := scanBet(s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %d: %w", id, err)
	}
	return b, nil
}

func (s *BetStore) ListByEvent(ctx context.Context, eventID uint64, opts domain.ListOpts) ([]domain.Bet, error) {
	query, args := appendPaging(
		`SELECT `+betSelectCols+` FROM bets WHERE event_id = $1`,
		[]any{eventID}, 2, "created_at", "id", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}
