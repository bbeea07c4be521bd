package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL. Each applied
// change updates the current balance and appends a history row.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

func (s *BalanceStore) Apply(ctx context.Context, c domain.BalanceChange, seq uint64, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	account := addrText(c.Account)
	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (account, balance, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (account) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`,
		account, c.Balance, at,
	); err != nil {
		return fmt.Errorf("postgres: set balance %s: %w", account, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO balance_changes (seq, account, delta, balance, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		seq, account, c.Delta, c.Balance, c.Reason, at,
	); err != nil {
		return fmt.Errorf("postgres: record balance change %s: %w", account, err)
	}

	return tx.Commit(ctx)
}

func (s *BalanceStore) Get(ctx context.Context, account common.Address) (domain.BalanceEntry, error) {
	e := domain.BalanceEntry{Account: account}
	err := s.pool.QueryRow(ctx,
		`SELECT balance, updated_at FROM balances WHERE account = $1`, addrText(account),
	).Scan(&e.Balance, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BalanceEntry{}, domain.ErrNotFound
		}
		return domain.BalanceEntry{}, fmt.Errorf("postgres: get balance %s: %w", account.Hex(), err)
	}
	return e, nil
}

// History returns an account's balance movements, newest first.
func (s *BalanceStore) History(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.BalanceChange, error) {
	query, args := appendPaging(
		`SELECT delta, balance, reason FROM balance_changes WHERE account = $1`,
		[]any{addrText(account)}, 2, "created_at", "id DESC", opts,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balance changes: %w", err)
	}
	defer rows.Close()

	var changes []domain.BalanceChange
	for rows.Next() {
		c := domain.BalanceChange{Account: account}
		if err := rows.Scan(&c.Delta, &c.Balance, &c.Reason); err != nil {
			return nil, fmt.Errorf("postgres: scan balance change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
