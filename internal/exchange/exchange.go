// Package exchange implements the betting exchange core: access control, the
// event registry, the custodial ledger, the offer book, matching and
// settlement. Every operation runs under one lock and either commits all of
// its effects or none.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// ErrHalted is returned for every write after a journal append failed.
var ErrHalted = errors.New("exchange: halted after journal failure")

// Params configures an exchange.
type Params struct {
	Owner             common.Address
	FeeAccount        common.Address // defaults to Owner
	MinAmount         uint64
	MinPrice          uint64
	FeeBps            uint64
	MaxResultAttempts int
	Funding           Funding
}

// Journal durably records committed commands.
type Journal interface {
	Append(ctx context.Context, cmd Command) (uint64, error)
}

// Exchange composes the core components over shared tables.
type Exchange struct {
	mu        sync.RWMutex
	clock     domain.Clock
	journal   Journal
	halted    error
	logger    *slog.Logger
	params    Params
	access    *AccessControl
	registry  *EventRegistry
	ledger    *Ledger
	book      *OfferBook
	matching  *MatchingEngine
	settle    *SettlementEngine
	events    *table[domain.Event]
	offers    *table[domain.Offer]
	bets      *table[domain.Bet]
	positions *table[domain.Position]
}

// New returns an empty exchange. journal may be nil.
func New(p Params, custodian domain.Custodian, clock domain.Clock, journal Journal, logger *slog.Logger) *Exchange {
	if p.FeeAccount == (common.Address{}) {
		p.FeeAccount = p.Owner
	}
	if p.MaxResultAttempts <= 0 {
		p.MaxResultAttempts = 3
	}
	if p.Funding == "" {
		p.Funding = FundingLedger
	}
	if clock == nil {
		clock = domain.SystemClock
	}
	limits := Limits{MinAmount: p.MinAmount, MinPrice: p.MinPrice}

	x := &Exchange{
		clock:     clock,
		journal:   journal,
		logger:    logger.With(slog.String("component", "exchange")),
		params:    p,
		events:    newTable(domain.Event.Clone),
		offers:    newTable[domain.Offer](nil),
		bets:      newTable[domain.Bet](nil),
		positions: newTable[domain.Position](nil),
	}
	x.access = NewAccessControl(p.Owner)
	x.registry = NewEventRegistry(x.access, x.events, p.MaxResultAttempts)
	x.ledger = NewLedger(custodian, p.Funding)
	x.book = NewOfferBook(x.offers, x.events, x.ledger, limits)
	x.matching = NewMatchingEngine(x.book, x.events, x.bets, x.positions, x.ledger, limits)
	x.settle = NewSettlementEngine(x.events, x.bets, x.positions, x.ledger, p.FeeBps, p.FeeAccount)
	return x
}

// Params returns the exchange configuration.
func (x *Exchange) Params() Params { return x.params }

type inFlightKey struct{}

// Execute runs cmd atomically. Internal effects are applied first, queued
// custodian transfers run next, and the command is journaled last. Any
// failure before the journal leaves no trace. A call made from inside a
// custodian transfer is rejected with ErrReentrant. Re-entry is recognised
// through ctx, so a custodian must derive every context it uses from the one
// it was handed; a call on an unrelated context waits for the lock like any
// other caller and never returns while the outer command holds it.
func (x *Exchange) Execute(ctx context.Context, cmd Command) (Receipt, error) {
	if ctx.Value(inFlightKey{}) != nil {
		return Receipt{}, &domain.Error{Kind: domain.ErrReentrant, Reason: "exchange call already in flight"}
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.halted != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrHalted, x.halted)
	}
	if cmd.At.IsZero() {
		cmd.At = x.clock.Now()
	}
	tx := newTxn(context.WithValue(ctx, inFlightKey{}, cmd.Op), cmd.At)

	if err := x.dispatch(tx, cmd); err != nil {
		tx.rollback()
		return Receipt{}, err
	}
	if err := x.ledger.settle(tx); err != nil {
		tx.rollback()
		return Receipt{}, err
	}

	var seq uint64
	if x.journal != nil && !x.ledger.replaying {
		s, err := x.journal.Append(ctx, cmd)
		if err != nil {
			x.halted = err
			x.logger.ErrorContext(ctx, "journal append failed, halting writes",
				slog.String("op", cmd.Op.String()),
				slog.String("error", err.Error()),
			)
			return Receipt{}, fmt.Errorf("exchange: journal %s: %w", cmd.Op, err)
		}
		seq = s
	}
	for i := range tx.events {
		tx.events[i].Seq = seq
	}
	return Receipt{Seq: seq, IDs: tx.ids, Events: tx.events, Escalated: tx.escalated}, nil
}

func (x *Exchange) dispatch(tx *txn, c Command) error {
	switch c.Op {
	case OpAddAdmin:
		return x.access.addAdmin(tx, c.Caller, c.Account)
	case OpRemoveAdmin:
		return x.access.removeAdmin(tx, c.Caller, c.Account)
	case OpAddEvent:
		var hash common.Hash
		if len(c.ContentHashes) > 0 {
			hash = c.ContentHashes[0]
		}
		var start time.Time
		if len(c.Starts) > 0 {
			start = c.Starts[0]
		}
		return x.registry.addEvent(tx, c.Caller, hash, start, c.MarketTypes, c.MarketData)
	case OpAddEventBulk:
		return x.registry.addEventBulk(tx, c.Caller, c.MarketTypes, c.ContentHashes, c.Starts)
	case OpAddMarkets:
		return x.registry.addMarkets(tx, c.Caller, c.ID, c.MarketTypes, c.MarketData)
	case OpCancelEvent:
		return x.registry.cancel(tx, c.Caller, c.IDs)
	case OpSetEventResult:
		return x.registry.setResult(tx, c.Caller, c.ID, c.MarketIndexes, c.Outcomes)
	case OpSetEventResultBulk:
		return x.registry.setResultBulk(tx, c.Caller, c.IDs, c.Outcomes)
	case OpDeposit:
		return x.ledger.deposit(tx, c.Caller, c.Amount)
	case OpWithdraw:
		return x.ledger.withdraw(tx, c.Caller, c.Amount)
	case OpOpenOffer:
		return x.book.open(tx, c.Caller, c.ID, c.MarketIndex, c.Amount, c.Price, c.Outcome, c.Expiration)
	case OpUpdateOffer:
		return x.book.update(tx, c.Caller, c.ID, c.Price)
	case OpCloseOffer:
		return x.book.close(tx, c.Caller, c.ID)
	case OpBuyOffer:
		return x.matching.buy(tx, c.Caller, c.ID, c.Amount, x.params.MinAmount)
	case OpBuyOfferBulk:
		return x.matching.buyBulk(tx, c.Caller, c.IDs, c.Amount)
	case OpClaimBetEarnings:
		return x.settle.claim(tx, c.ID)
	case OpUpdatePosition:
		return x.settle.updatePosition(tx, c.Caller, c.ID, c.Price)
	default:
		return domain.InvalidInput("unknown operation")
	}
}

// Replay re-executes journaled commands at their recorded times without
// touching the custodian. next returns false when the journal is exhausted.
func (x *Exchange) Replay(ctx context.Context, next func() (Command, bool, error)) (int, error) {
	x.mu.Lock()
	x.ledger.replaying = true
	x.mu.Unlock()
	defer func() {
		x.mu.Lock()
		x.ledger.replaying = false
		x.mu.Unlock()
	}()

	n := 0
	for {
		cmd, ok, err := next()
		if err != nil {
			return n, fmt.Errorf("exchange: replay read: %w", err)
		}
		if !ok {
			return n, nil
		}
		if _, err := x.Execute(ctx, cmd); err != nil {
			return n, fmt.Errorf("exchange: replay %s #%d: %w", cmd.Op, n+1, err)
		}
		n++
	}
}

// ---- typed operations ----

func (x *Exchange) exec(ctx context.Context, cmd Command) error {
	_, err := x.Execute(ctx, cmd)
	return err
}

func (x *Exchange) execID(ctx context.Context, cmd Command) (uint64, error) {
	r, err := x.Execute(ctx, cmd)
	if err != nil || len(r.IDs) == 0 {
		return 0, err
	}
	return r.IDs[0], nil
}

// AddAdmin adds addr to the admin set. Owner only.
func (x *Exchange) AddAdmin(ctx context.Context, caller, addr common.Address) error {
	return x.exec(ctx, Command{Op: OpAddAdmin, Caller: caller, Account: addr})
}

// RemoveAdmin removes addr from the admin set. Owner only; the owner itself
// cannot be removed.
func (x *Exchange) RemoveAdmin(ctx context.Context, caller, addr common.Address) error {
	return x.exec(ctx, Command{Op: OpRemoveAdmin, Caller: caller, Account: addr})
}

// AddEvent creates an event with one market per type and returns its id.
func (x *Exchange) AddEvent(ctx context.Context, caller common.Address, hash common.Hash, start time.Time,
	types []domain.MarketType, data [][]byte) (uint64, error) {
	return x.execID(ctx, Command{
		Op: OpAddEvent, Caller: caller, ContentHashes: []common.Hash{hash}, Starts: []time.Time{start},
		MarketTypes: types, MarketData: data,
	})
}

// AddEventBulk creates one single-market event per tuple, skipping tuples that
// start in the past, and returns the ids created.
func (x *Exchange) AddEventBulk(ctx context.Context, caller common.Address, types []domain.MarketType,
	hashes []common.Hash, starts []time.Time) ([]uint64, error) {
	r, err := x.Execute(ctx, Command{
		Op: OpAddEventBulk, Caller: caller, MarketTypes: types, ContentHashes: hashes, Starts: starts,
	})
	return r.IDs, err
}

// AddMarkets attaches markets to an open event.
func (x *Exchange) AddMarkets(ctx context.Context, caller common.Address, eventID uint64,
	types []domain.MarketType, data [][]byte) error {
	return x.exec(ctx, Command{Op: OpAddMarkets, Caller: caller, ID: eventID, MarketTypes: types, MarketData: data})
}

// CancelEvent cancels every open event among ids.
func (x *Exchange) CancelEvent(ctx context.Context, caller common.Address, ids ...uint64) error {
	return x.exec(ctx, Command{Op: OpCancelEvent, Caller: caller, IDs: ids})
}

// SetEventResult submits one result attempt for an event.
func (x *Exchange) SetEventResult(ctx context.Context, caller common.Address, eventID uint64,
	marketIndexes []int, outcomes []domain.Outcome) error {
	return x.exec(ctx, Command{
		Op: OpSetEventResult, Caller: caller, ID: eventID, MarketIndexes: marketIndexes, Outcomes: outcomes,
	})
}

// SetEventResultBulk submits one attempt per event for its first market.
func (x *Exchange) SetEventResultBulk(ctx context.Context, caller common.Address, eventIDs []uint64,
	outcomes []domain.Outcome) error {
	return x.exec(ctx, Command{Op: OpSetEventResultBulk, Caller: caller, IDs: eventIDs, Outcomes: outcomes})
}

// Deposit pulls amount from the custodian into caller's balance.
func (x *Exchange) Deposit(ctx context.Context, caller common.Address, amount uint64) error {
	return x.exec(ctx, Command{Op: OpDeposit, Caller: caller, Amount: amount})
}

// Withdraw pays amount out of caller's balance through the custodian.
func (x *Exchange) Withdraw(ctx context.Context, caller common.Address, amount uint64) error {
	return x.exec(ctx, Command{Op: OpWithdraw, Caller: caller, Amount: amount})
}

// OpenOffer opens an offer and returns its id.
func (x *Exchange) OpenOffer(ctx context.Context, caller common.Address, eventID uint64, marketIndex int,
	amount, price uint64, outcome domain.Outcome, expiration time.Time) (uint64, error) {
	return x.execID(ctx, Command{
		Op: OpOpenOffer, Caller: caller, ID: eventID, MarketIndex: marketIndex,
		Amount: amount, Price: price, Outcome: outcome, Expiration: expiration,
	})
}

// UpdateOffer replaces the price of an open offer.
func (x *Exchange) UpdateOffer(ctx context.Context, caller common.Address, offerID, price uint64) error {
	return x.exec(ctx, Command{Op: OpUpdateOffer, Caller: caller, ID: offerID, Price: price})
}

// CloseOffer closes an open offer.
func (x *Exchange) CloseOffer(ctx context.Context, caller common.Address, offerID uint64) error {
	return x.exec(ctx, Command{Op: OpCloseOffer, Caller: caller, ID: offerID})
}

// BuyOffer fills amount of an offer and returns the new bet id.
func (x *Exchange) BuyOffer(ctx context.Context, caller common.Address, offerID, amount uint64) (uint64, error) {
	return x.execID(ctx, Command{Op: OpBuyOffer, Caller: caller, ID: offerID, Amount: amount})
}

// BuyOfferBulk fills offers in order up to total and returns the bet ids.
func (x *Exchange) BuyOfferBulk(ctx context.Context, caller common.Address, offerIDs []uint64, total uint64) ([]uint64, error) {
	r, err := x.Execute(ctx, Command{Op: OpBuyOfferBulk, Caller: caller, IDs: offerIDs, Amount: total})
	return r.IDs, err
}

// ClaimBetEarnings settles a bet.
func (x *Exchange) ClaimBetEarnings(ctx context.Context, caller common.Address, betID uint64) error {
	return x.exec(ctx, Command{Op: OpClaimBetEarnings, Caller: caller, ID: betID})
}

// UpdatePosition sets the resale price of a position.
func (x *Exchange) UpdatePosition(ctx context.Context, caller common.Address, positionID, price uint64) error {
	return x.exec(ctx, Command{Op: OpUpdatePosition, Caller: caller, ID: positionID, Price: price})
}

// ---- reads ----

// IsAdmin reports whether addr is an admin.
func (x *Exchange) IsAdmin(addr common.Address) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.access.IsAdmin(addr)
}

// Owner returns the owner address.
func (x *Exchange) Owner() common.Address { return x.params.Owner }

// BalanceOf returns the ledger balance of addr.
func (x *Exchange) BalanceOf(addr common.Address) uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ledger.BalanceOf(addr)
}

// Halted returns ErrHalted once a journal append has failed, nil otherwise.
func (x *Exchange) Halted() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.halted != nil {
		return fmt.Errorf("%w: %v", ErrHalted, x.halted)
	}
	return nil
}

// Held returns the base units the exchange holds at the custodian.
func (x *Exchange) Held() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ledger.Held()
}

// Event returns the event with the given id.
func (x *Exchange) Event(id uint64) (domain.Event, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if ev, ok := x.registry.Event(id); ok {
		return ev, nil
	}
	return domain.Event{}, domain.NotFound("event does not exist")
}

// Offer returns the offer with the given id.
func (x *Exchange) Offer(id uint64) (domain.Offer, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if o, ok := x.book.Offer(id); ok {
		return o, nil
	}
	return domain.Offer{}, domain.NotFound("offer id does not exist yet")
}

// Bet returns the bet with the given id.
func (x *Exchange) Bet(id uint64) (domain.Bet, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if b, ok := x.matching.Bet(id); ok {
		return b, nil
	}
	return domain.Bet{}, domain.NotFound("bet does not exist")
}

// Position returns the position with the given id.
func (x *Exchange) Position(id uint64) (domain.Position, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if p, ok := x.matching.Position(id); ok {
		return p, nil
	}
	return domain.Position{}, domain.NotFound("position does not exist")
}

// Counts returns the number of events, offers, bets and positions.
func (x *Exchange) Counts() (events, offers, bets, positions uint64) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.events.count(), x.offers.count(), x.bets.count(), x.positions.count()
}
