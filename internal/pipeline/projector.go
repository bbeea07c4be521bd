// Package pipeline projects the committed exchange event stream into the
// Postgres read model.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// Stores are the projection targets.
type Stores struct {
	Events    domain.EventStore
	Offers    domain.OfferStore
	Bets      domain.BetStore
	Positions domain.PositionStore
	Balances  domain.BalanceStore
	Audit     domain.AuditStore
}

// Projector writes one LogEvent into the store its record belongs to. Record
// upserts are idempotent, so re-projecting an event is harmless.
type Projector struct {
	stores Stores
	logger *slog.Logger
}

func NewProjector(stores Stores, logger *slog.Logger) *Projector {
	return &Projector{stores: stores, logger: logger}
}

// Project applies e.
func (p *Projector) Project(ctx context.Context, e domain.LogEvent) error {
	switch {
	case e.Event != nil:
		if err := p.stores.Events.Upsert(ctx, *e.Event); err != nil {
			return fmt.Errorf("project %s event %d: %w", e.Kind, e.Event.ID, err)
		}
	case e.Offer != nil:
		if err := p.stores.Offers.Upsert(ctx, *e.Offer); err != nil {
			return fmt.Errorf("project %s offer %d: %w", e.Kind, e.Offer.ID, err)
		}
	case e.Bet != nil:
		if err := p.stores.Bets.Upsert(ctx, *e.Bet); err != nil {
			return fmt.Errorf("project %s bet %d: %w", e.Kind, e.Bet.ID, err)
		}
	case e.Position != nil:
		if err := p.stores.Positions.Upsert(ctx, *e.Position); err != nil {
			return fmt.Errorf("project %s position %d: %w", e.Kind, e.Position.ID, err)
		}
	case e.Balance != nil:
		if err := p.stores.Balances.Apply(ctx, *e.Balance, e.Seq, e.At); err != nil {
			return fmt.Errorf("project balance %s: %w", e.Balance.Account.Hex(), err)
		}
	case e.Admin != nil:
		if p.stores.Audit == nil {
			return nil
		}
		if err := p.stores.Audit.Log(ctx, domain.AuditEntry{
			Seq:       e.Seq,
			Actor:     e.Admin.Account,
			Event:     "admin_changed",
			Detail:    map[string]any{"is_admin": e.Admin.IsAdmin},
			CreatedAt: e.At,
		}); err != nil {
			return fmt.Errorf("project admin %s: %w", e.Admin.Account.Hex(), err)
		}
	default:
		p.logger.Warn("skipping event without a record", slog.String("kind", string(e.Kind)))
	}
	return nil
}
