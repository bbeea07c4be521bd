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

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates a new OfferStore backed by the given connection pool.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

const offerSelectCols = `id, event_id, market_index, owner, amount, price,
	outcome, timestamp_expiration, created_at`

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	var owner string
	var outcome int16
	if err := row.Scan(
		&o.ID, &o.EventID, &o.MarketIndex, &owner, &o.Amount, &o.Price,
		&outcome, &o.TimestampExpiration, &o.CreatedAt,
	); err != nil {
		return domain.Offer{}, err
	}
	o.Owner = common.HexToAddress(owner)
	o.Outcome = domain.Outcome(outcome)
	return o, nil
}

// Upsert inserts a new offer or updates the amount and price of an existing one.
func (s *OfferStore) Upsert(ctx context.Context, o domain.Offer) error {
	const query = `
		INSERT INTO offers (
			id, event_id, market_index, owner, amount, price,
			outcome, timestamp_expiration, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			amount     = EXCLUDED.amount,
			price      = EXCLUDED.price,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.EventID, o.MarketIndex, addrText(o.Owner), o.Amount, o.Price,
		int16(o.Outcome), o.TimestampExpiration, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert offer %d: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single offer by its ID.
func (s *OfferStore) GetByID(ctx context.Context, id uint64) (domain.Offer, error) {
	o, err := scanOffer(s.pool.QueryRow(ctx,
		`SELECT `+offerSelectCols+` FROM offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("postgres: get offer %d: %w", id, err)
	}
	return o, nil
}

// List returns offers matching f, newest first.
func (s *OfferStore) List(ctx context.Context, f domain.OfferFilter) ([]domain.Offer, error) {
	query := `SELECT ` + offerSelectCols + ` FROM offers WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.EventID != 0 {
		query += fmt.Sprintf(" AND event_id = $%d", argIdx)
		args = append(args, f.EventID)
		argIdx++
	}
	if f.Owner != nil {
		query += fmt.Sprintf(" AND owner = $%d", argIdx)
		args = append(args, addrText(*f.Owner))
		argIdx++
	}
	if f.OpenOnly {
		query += " AND amount > 0"
	}
	query, args = appendPaging(query, args, argIdx, "created_at", "created_at DESC, id DESC", f.ListOpts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}
