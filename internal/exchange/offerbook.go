package exchange

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// Limits are the minimum offer and buy thresholds.
type Limits struct {
	MinAmount uint64
	MinPrice  uint64
}

// OfferBook holds user offers against event markets.
type OfferBook struct {
	offers *table[domain.Offer]
	events *table[domain.Event]
	ledger *Ledger
	limits Limits
}

// NewOfferBook returns an offer book funded through ledger.
func NewOfferBook(offers *table[domain.Offer], events *table[domain.Event], ledger *Ledger, limits Limits) *OfferBook {
	return &OfferBook{offers: offers, events: events, ledger: ledger, limits: limits}
}

// Offer returns a copy of the offer with the given id.
func (b *OfferBook) Offer(id uint64) (domain.Offer, bool) { return b.offers.get(id) }

// Count returns the number of offers ever opened.
func (b *OfferBook) Count() uint64 { return b.offers.count() }

func (b *OfferBook) open(tx *txn, caller common.Address, eventID uint64, marketIndex int,
	amount, price uint64, outcome domain.Outcome, expiration time.Time) error {
	ev, ok := b.events.get(eventID)
	if !ok {
		return domain.NotFound("event does not exist")
	}
	if ev.State != domain.EventStateOpen {
		return domain.StateError("event is not open")
	}
	if marketIndex < 0 || marketIndex >= len(ev.Markets) {
		return domain.StateError("market does not exist")
	}
	if !ev.Markets[marketIndex].Type.ValidPick(outcome) {
		return domain.InvalidInput("invalid outcome")
	}
	if price < b.limits.MinPrice {
		return domain.InvalidInput("price is below minimum")
	}
	if amount < b.limits.MinAmount {
		return domain.InvalidInput("amount is below minimum")
	}
	if !expiration.After(tx.now) {
		return domain.InvalidInput("expiration is not in the future")
	}

	switch b.ledger.funding {
	case FundingCustodian:
		if err := b.ledger.checkCustodian(tx, caller, amount,
			"amount exceeds sender balance", "amount exceeds sender allowance"); err != nil {
			return err
		}
	default:
		if err := b.ledger.debit(tx, caller, amount, "offer", "amount exceeds sender balance"); err != nil {
			return err
		}
		b.ledger.lock(tx, amount)
	}

	o := domain.Offer{
		ID:                  b.offers.nextID(),
		EventID:             eventID,
		MarketIndex:         marketIndex,
		Owner:               caller,
		Amount:              amount,
		Price:               price,
		Outcome:             outcome,
		TimestampExpiration: expiration,
		CreatedAt:           tx.now,
	}
	id := b.offers.insert(tx, o)
	tx.created(id)
	tx.emit(domain.LogEvent{Kind: domain.LogNewOffer, Offer: &o})
	return nil
}

// lookup returns the offer with id owned by caller that is still open.
func (b *OfferBook) lookup(caller common.Address, id uint64) (domain.Offer, error) {
	o, ok := b.offers.get(id)
	if !ok {
		return o, domain.NotFound("offer id does not exist yet")
	}
	if o.Owner != caller {
		return o, domain.PermissionDenied("offer owner is not sender")
	}
	if o.Closed() {
		return o, domain.StateError("offer is already closed")
	}
	return o, nil
}

func (b *OfferBook) update(tx *txn, caller common.Address, id, price uint64) error {
	o, err := b.lookup(caller, id)
	if err != nil {
		return err
	}
	if o.Expired(tx.now) {
		return domain.StateError("offer is expired")
	}
	if ev, _ := b.events.get(o.EventID); ev.State != domain.EventStateOpen {
		return domain.StateError("event is not open")
	}
	if price < b.limits.MinPrice {
		return domain.InvalidInput("price is below minimum")
	}
	b.set(tx, id, func(o *domain.Offer) { o.Price = price })
	return nil
}

// close zeroes the offer. In ledger funding the residual escrow returns to the
// owner's balance.
func (b *OfferBook) close(tx *txn, caller common.Address, id uint64) error {
	o, err := b.lookup(caller, id)
	if err != nil {
		return err
	}
	if b.ledger.funding != FundingCustodian && o.Amount > 0 {
		b.ledger.release(tx, o.Amount)
		if err := b.ledger.credit(tx, o.Owner, o.Amount, "refund"); err != nil {
			return err
		}
	}
	b.set(tx, id, func(o *domain.Offer) {
		o.Amount = 0
		o.Price = 0
	})
	return nil
}

// consume reduces the offer by amount. A residual below the minimum amount
// closes the offer and, in ledger funding, returns the residual to the owner.
func (b *OfferBook) consume(tx *txn, o domain.Offer, amount uint64) error {
	residual := o.Amount - amount
	if residual > 0 && residual < b.limits.MinAmount {
		if b.ledger.funding != FundingCustodian {
			b.ledger.release(tx, residual)
			if err := b.ledger.credit(tx, o.Owner, residual, "refund"); err != nil {
				return err
			}
		}
		residual = 0
	}
	b.set(tx, o.ID, func(off *domain.Offer) {
		off.Amount = residual
		if residual == 0 {
			off.Price = 0
		}
	})
	return nil
}

func (b *OfferBook) set(tx *txn, id uint64, fn func(*domain.Offer)) {
	var snap domain.Offer
	b.offers.update(tx, id, func(o *domain.Offer) {
		fn(o)
		snap = *o
	})
	tx.emit(domain.LogEvent{Kind: domain.LogUpdatedOffer, Offer: &snap})
}
