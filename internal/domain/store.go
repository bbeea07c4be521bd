package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventFilter narrows an event listing.
type EventFilter struct {
	State *EventState
	ListOpts
}

// OfferFilter narrows an offer listing. Zero fields do not filter.
type OfferFilter struct {
	EventID  uint64
	Owner    *common.Address
	OpenOnly bool
	ListOpts
}

// EventStore persists the event projection, markets included.
type EventStore interface {
	Upsert(ctx context.Context, e Event) error
	GetByID(ctx context.Context, id uint64) (Event, error)
	List(ctx context.Context, f EventFilter) ([]Event, error)
}

// OfferStore persists the offer projection.
type OfferStore interface {
	Upsert(ctx context.Context, o Offer) error
	GetByID(ctx context.Context, id uint64) (Offer, error)
	List(ctx context.Context, f OfferFilter) ([]Offer, error)
}

// BetStore persists the bet projection.
type BetStore interface {
	Upsert(ctx context.Context, b Bet) error
	GetByID(ctx context.Context, id uint64) (Bet, error)
	ListByEvent(ctx context.Context, eventID uint64, opts ListOpts) ([]Bet, error)
}

// PositionStore persists the position projection.
type PositionStore interface {
	Upsert(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id uint64) (Position, error)
	ListByOwner(ctx context.Context, owner common.Address, opts ListOpts) ([]Position, error)
}

// BalanceEntry is one row of the balance projection.
type BalanceEntry struct {
	Account   common.Address
	Balance   uint64
	UpdatedAt time.Time
}

// BalanceStore persists ledger balances and their movement history.
type BalanceStore interface {
	Apply(ctx context.Context, change BalanceChange, seq uint64, at time.Time) error
	Get(ctx context.Context, account common.Address) (BalanceEntry, error)
	History(ctx context.Context, account common.Address, opts ListOpts) ([]BalanceChange, error)
}

// CursorStore records how far a consumer has projected the event stream.
type CursorStore interface {
	Get(ctx context.Context, name string) (uint64, error)
	Set(ctx context.Context, name string, seq uint64) error
}

// AuditEntry is a single audit log row. Seq is the journal sequence of the
// command, zero for rejected commands.
type AuditEntry struct {
	ID        int64
	Seq       uint64
	Actor     common.Address
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	Actor *common.Address
	ListOpts
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}
