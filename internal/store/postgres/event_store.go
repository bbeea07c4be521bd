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

// EventStore implements domain.EventStore using PostgreSQL. Markets live in
// their own table and are written with their event.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, content_hash, timestamp_start, state, result_attempts, created_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	var hash string
	var state int16
	if err := row.Scan(&e.ID, &hash, &e.TimestampStart, &state, &e.ResultAttempts, &e.CreatedAt); err != nil {
		return domain.Event{}, err
	}
	e.ContentHash = common.HexToHash(hash)
	e.State = domain.EventState(state)
	return e, nil
}

// Upsert writes the event row and replaces its markets.
func (s *EventStore) Upsert(ctx context.Context, e domain.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO events (id, content_hash, timestamp_start, state, result_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			state           = EXCLUDED.state,
			result_attempts = EXCLUDED.result_attempts,
			updated_at      = NOW()`,
		e.ID, e.ContentHash.Hex(), e.TimestampStart, int16(e.State), e.ResultAttempts, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert event %d: %w", e.ID, err)
	}

	batch := &pgx.Batch{}
	const marketQuery = `
		INSERT INTO markets (event_id, market_index, market_type, data, outcome)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, market_index) DO UPDATE SET
			outcome = EXCLUDED.outcome`
	for _, m := range e.Markets {
		data := m.Data
		if data == nil {
			data = []byte{}
		}
		batch.Queue(marketQuery, e.ID, m.Index, int16(m.Type), data, int16(m.Outcome))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: upsert markets for event %d: %w", e.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns an event with its markets.
func (s *EventStore) GetByID(ctx context.Context, id uint64) (domain.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventSelectCols+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("postgres: get event %d: %w", id, err)
	}

	markets, err := s.markets(ctx, []uint64{id})
	if err != nil {
		return domain.Event{}, err
	}
	e.Markets = markets[id]
	return e, nil
}

// List returns events ordered by start time.
func (s *EventStore) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, int16(*f.State))
		argIdx++
	}
	query, args = appendPaging(query, args, argIdx, "timestamp_start", "timestamp_start, id", f.ListOpts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	var ids []uint64
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	if len(ids) == 0 {
		return events, nil
	}

	markets, err := s.markets(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Markets = markets[events[i].ID]
	}
	return events, nil
}

func (s *EventStore) markets(ctx context.Context, ids []uint64) (map[uint64][]domain.Market, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, market_index, market_type, data, outcome
		FROM markets WHERE event_id = ANY($1)
		ORDER BY event_id, market_index`, int64s(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64][]domain.Market, len(ids))
	for rows.Next() {
		var eventID uint64
		var m domain.Market
		var typ, outcome int16
		if err := rows.Scan(&eventID, &m.Index, &typ, &m.Data, &outcome); err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		m.Type = domain.MarketType(typ)
		m.Outcome = domain.Outcome(outcome)
		out[eventID] = append(out[eventID], m)
	}
	return out, rows.Err()
}
