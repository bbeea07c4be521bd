package exchange

import (
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// BpsDenominator is the basis-point scale of the protocol fee.
const BpsDenominator = 10_000

// SettlementEngine pays out bets once their event is resolved or cancelled.
type SettlementEngine struct {
	events     *table[domain.Event]
	bets       *table[domain.Bet]
	positions  *table[domain.Position]
	ledger     *Ledger
	feeBps     uint64
	feeAccount common.Address
}

// NewSettlementEngine returns a settlement engine crediting fees to feeAccount.
func NewSettlementEngine(events *table[domain.Event], bets *table[domain.Bet], positions *table[domain.Position],
	ledger *Ledger, feeBps uint64, feeAccount common.Address) *SettlementEngine {
	return &SettlementEngine{
		events: events, bets: bets, positions: positions,
		ledger: ledger, feeBps: feeBps, feeAccount: feeAccount,
	}
}

// Payout splits total into the winner's share and the fee.
func Payout(total, feeBps uint64) (winner, fee uint64) {
	hi, lo := bits.Mul64(total, BpsDenominator-feeBps)
	winner, _ = bits.Div64(hi, lo, BpsDenominator)
	return winner, total - winner
}

// claim settles both positions of a bet. Anyone may call it; payouts are
// credited to the position owners' ledger balances.
func (s *SettlementEngine) claim(tx *txn, betID uint64) error {
	bet, ok := s.bets.get(betID)
	if !ok {
		return domain.NotFound("bet does not exist")
	}
	ev, _ := s.events.get(bet.EventID)
	if ev.State == domain.EventStateOpen {
		return domain.StateError("event is not resolved")
	}
	back, _ := s.positions.get(bet.BackPositionID)
	lay, _ := s.positions.get(bet.LayPositionID)
	if back.Claimed && lay.Claimed {
		return domain.StateError("bet already claimed")
	}

	result := domain.OutcomeCanceled
	if ev.State == domain.EventStateClosed && bet.MarketIndex < len(ev.Markets) {
		result = ev.Markets[bet.MarketIndex].Outcome
	}
	s.ledger.release(tx, bet.TotalAmount)

	if result == domain.OutcomeCanceled || result == domain.OutcomeNull {
		if err := s.ledger.credit(tx, back.Owner, back.Amount, "refund"); err != nil {
			return err
		}
		if err := s.ledger.credit(tx, lay.Owner, lay.Amount, "refund"); err != nil {
			return err
		}
		s.settle(tx, back.ID, false)
		s.settle(tx, lay.ID, false)
		return nil
	}

	winner, loser := back, lay
	if result != bet.Outcome {
		winner, loser = lay, back
	}
	payout, fee := Payout(winner.AmountToEarn, s.feeBps)
	if err := s.ledger.credit(tx, winner.Owner, payout, "payout"); err != nil {
		return err
	}
	if err := s.ledger.credit(tx, s.feeAccount, fee, "fee"); err != nil {
		return err
	}
	s.settle(tx, winner.ID, false)
	s.settle(tx, loser.ID, true)
	return nil
}

func (s *SettlementEngine) settle(tx *txn, positionID uint64, lost bool) {
	var snap domain.Position
	s.positions.update(tx, positionID, func(p *domain.Position) {
		p.Claimed = true
		p.Amount = 0
		p.Price = 0
		if lost {
			p.AmountToEarn = 0
		}
		snap = *p
	})
	tx.emit(domain.LogEvent{Kind: domain.LogClaimed, Position: &snap})
}

func (s *SettlementEngine) updatePosition(tx *txn, caller common.Address, positionID, price uint64) error {
	p, ok := s.positions.get(positionID)
	if !ok {
		return domain.NotFound("position does not exist")
	}
	if p.Owner != caller {
		return domain.PermissionDenied("position owner is not sender")
	}
	if p.Claimed {
		return domain.StateError("position is already claimed")
	}
	var snap domain.Position
	s.positions.update(tx, positionID, func(p *domain.Position) {
		p.Price = price
		snap = *p
	})
	tx.emit(domain.LogEvent{Kind: domain.LogUpdatedPosition, Position: &snap})
	return nil
}
