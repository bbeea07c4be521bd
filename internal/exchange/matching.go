package exchange

import (
	"math"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// MatchingEngine fills offers into bets. The buyer backs the offer's outcome
// and the offer owner lays it.
type MatchingEngine struct {
	book      *OfferBook
	events    *table[domain.Event]
	bets      *table[domain.Bet]
	positions *table[domain.Position]
	ledger    *Ledger
	limits    Limits
}

// NewMatchingEngine wires a matching engine over the shared tables.
func NewMatchingEngine(book *OfferBook, events *table[domain.Event], bets *table[domain.Bet],
	positions *table[domain.Position], ledger *Ledger, limits Limits) *MatchingEngine {
	return &MatchingEngine{book: book, events: events, bets: bets, positions: positions, ledger: ledger, limits: limits}
}

// Bet returns a copy of the bet with the given id.
func (m *MatchingEngine) Bet(id uint64) (domain.Bet, bool) { return m.bets.get(id) }

// Position returns a copy of the position with the given id.
func (m *MatchingEngine) Position(id uint64) (domain.Position, bool) { return m.positions.get(id) }

// checkOffer runs the offer-side preconditions of a buy.
func (m *MatchingEngine) checkOffer(tx *txn, offerID uint64) (domain.Offer, error) {
	o, ok := m.book.offers.get(offerID)
	if !ok {
		return o, domain.NotFound("offer id does not exist yet")
	}
	if o.Closed() {
		return o, domain.StateError("offer is already closed")
	}
	if o.Expired(tx.now) {
		return o, domain.StateError("offer is expired")
	}
	if ev, _ := m.events.get(o.EventID); ev.State != domain.EventStateOpen {
		return o, domain.StateError("event is not open")
	}
	return o, nil
}

// buy matches amount of an offer. minAmount is the smallest fill accepted;
// bulk buys pass zero because their minimum applies to the total.
func (m *MatchingEngine) buy(tx *txn, caller common.Address, offerID, amount, minAmount uint64) error {
	o, err := m.checkOffer(tx, offerID)
	if err != nil {
		return err
	}
	custodian := m.ledger.funding == FundingCustodian
	if custodian {
		if err := m.ledger.checkCustodian(tx, o.Owner, amount,
			"offer owner balance is below minimum", "offer owner allowance is below minimum"); err != nil {
			return err
		}
	}
	if amount < minAmount || amount == 0 {
		return domain.InvalidInput("amount is below minimum")
	}
	if custodian {
		// The owner's pull is queued first so a self-match needs twice the amount.
		tx.pending[o.Owner] += amount
		err := m.ledger.checkCustodian(tx, caller, amount,
			"amount exceeds sender balance", "amount exceeds sender allowance")
		tx.pending[o.Owner] -= amount
		if err != nil {
			return err
		}
	} else if m.ledger.BalanceOf(caller) < amount {
		return domain.InsufficientFunds("amount exceeds sender balance")
	}
	if amount > o.Amount {
		return domain.InvalidInput("amount exceeds offer amount")
	}
	if amount > math.MaxUint64/2 {
		return domain.InvalidInput("amount is too large")
	}

	if custodian {
		tx.queuePull(o.Owner, amount)
		tx.queuePull(caller, amount)
		m.ledger.lock(tx, 2*amount)
	} else {
		if err := m.ledger.debit(tx, caller, amount, "buy", "amount exceeds sender balance"); err != nil {
			return err
		}
		// The owner's stake was escrowed when the offer was opened.
		m.ledger.lock(tx, amount)
	}

	total := 2 * amount
	betID := m.bets.nextID()
	back := domain.Position{
		ID: m.positions.nextID(), BetID: betID, Side: domain.PositionSideBack,
		Owner: caller, Amount: amount, AmountToEarn: total,
	}
	m.positions.insert(tx, back)
	lay := domain.Position{
		ID: m.positions.nextID(), BetID: betID, Side: domain.PositionSideLay,
		Owner: o.Owner, Amount: amount, AmountToEarn: total,
	}
	m.positions.insert(tx, lay)
	bet := domain.Bet{
		ID:             betID,
		EventID:        o.EventID,
		MarketIndex:    o.MarketIndex,
		OfferID:        o.ID,
		Outcome:        o.Outcome,
		TotalAmount:    total,
		BackPositionID: back.ID,
		LayPositionID:  lay.ID,
		CreatedAt:      tx.now,
	}
	m.bets.insert(tx, bet)
	tx.created(betID)

	tx.emit(domain.LogEvent{Kind: domain.LogNewPosition, Position: &back})
	tx.emit(domain.LogEvent{Kind: domain.LogNewPosition, Position: &lay})
	tx.emit(domain.LogEvent{Kind: domain.LogNewBet, Bet: &bet})
	return m.book.consume(tx, o, amount)
}

// buyBulk fills offers in order, each for the lesser of the remaining total
// and the offer's amount, until total is exhausted. The buyer must cover the
// whole total up front and the minimum applies to the total, so the last fill
// may be smaller than it. Any failing fill aborts the whole call.
func (m *MatchingEngine) buyBulk(tx *txn, caller common.Address, offerIDs []uint64, total uint64) error {
	if len(offerIDs) == 0 {
		return domain.InvalidInput("no offers given")
	}
	if total < m.limits.MinAmount || total == 0 {
		return domain.InvalidInput("amount is below minimum")
	}
	if m.ledger.funding == FundingCustodian {
		if err := m.ledger.checkCustodian(tx, caller, total,
			"amount exceeds sender balance", "amount exceeds sender allowance"); err != nil {
			return err
		}
	} else if m.ledger.BalanceOf(caller) < total {
		return domain.InsufficientFunds("amount exceeds sender balance")
	}

	remaining := total
	for _, id := range offerIDs {
		if remaining == 0 {
			break
		}
		o, err := m.checkOffer(tx, id)
		if err != nil {
			return err
		}
		fill := min(remaining, o.Amount)
		if err := m.buy(tx, caller, id, fill, 0); err != nil {
			return err
		}
		remaining -= fill
	}
	return nil
}
