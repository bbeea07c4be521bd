package exchange

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// State is a point-in-time copy of the whole exchange.
type State struct {
	TakenAt   time.Time
	Owner     common.Address
	Admins    []common.Address
	Events    []domain.Event
	Offers    []domain.Offer
	Bets      []domain.Bet
	Positions []domain.Position
	Balances  map[common.Address]uint64
	Held      uint64
}

// Snapshot copies the current state.
func (x *Exchange) Snapshot() State {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return State{
		TakenAt:   x.clock.Now(),
		Owner:     x.params.Owner,
		Admins:    x.access.Admins(),
		Events:    x.events.all(),
		Offers:    x.offers.all(),
		Bets:      x.bets.all(),
		Positions: x.positions.all(),
		Balances:  x.ledger.Balances(),
		Held:      x.ledger.Held(),
	}
}

// TotalBalances sums every ledger balance.
func (s State) TotalBalances() uint64 {
	var sum uint64
	for _, v := range s.Balances {
		sum += v
	}
	return sum
}
