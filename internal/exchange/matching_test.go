package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

func TestBuyOfferFullFill(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, unit)
	offer := f.offer(alice, ev, unit, domain.OutcomeHome)
	f.deposit(bob, unit)

	r, err := f.x.Execute(f.ctx, Command{Op: OpBuyOffer, Caller: bob, ID: offer, Amount: unit})
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, r.IDs)

	bet, err := f.x.Bet(1)
	require.NoError(t, err)
	require.Equal(t, ev, bet.EventID)
	require.Equal(t, domain.OutcomeHome, bet.Outcome)
	require.Equal(t, uint64(2*unit), bet.TotalAmount)

	back, _ := f.x.Position(bet.BackPositionID)
	lay, _ := f.x.Position(bet.LayPositionID)
	require.Equal(t, bob, back.Owner)
	require.Equal(t, domain.PositionSideBack, back.Side)
	require.Equal(t, alice, lay.Owner)
	require.Equal(t, uint64(unit), back.Amount)
	require.Equal(t, uint64(unit), lay.Amount)
	require.Equal(t, bet.TotalAmount, back.Amount+lay.Amount)

	o, _ := f.x.Offer(offer)
	require.Zero(t, o.Amount)
	require.Zero(t, o.Price)
	require.Zero(t, f.x.BalanceOf(bob))
	require.Equal(t, uint64(2*unit), f.x.Snapshot().Held)

	var kinds []domain.LogKind
	for _, e := range r.Events {
		if e.Kind != domain.LogBalance {
			kinds = append(kinds, e.Kind)
		}
	}
	require.Equal(t, []domain.LogKind{
		domain.LogNewPosition, domain.LogNewPosition, domain.LogNewBet, domain.LogUpdatedOffer,
	}, kinds)
}

func TestBuyOfferPartialFill(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, 2*unit)
	offer := f.offer(alice, ev, 2*unit, domain.OutcomeDraw)
	f.deposit(bob, unit)

	_, err := f.x.BuyOffer(f.ctx, bob, offer, unit/2)
	require.NoError(t, err)
	o, _ := f.x.Offer(offer)
	require.Equal(t, uint64(2*unit-unit/2), o.Amount)
	require.Equal(t, uint64(unit), o.Price)
	require.Equal(t, uint64(unit/2), f.x.BalanceOf(bob))

	f.deposit(bob, 2*unit)
	requireKind(t, func() error { _, err := f.x.BuyOffer(f.ctx, bob, offer, 2*unit); return err }(),
		domain.ErrInvalidInput, "amount exceeds offer amount")
}

func TestBuyOfferChecksSenderFundsBeforeOfferAmount(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, unit)
	offer := f.offer(alice, ev, unit, domain.OutcomeHome)
	f.deposit(bob, unit)

	_, err := f.x.BuyOffer(f.ctx, bob, offer, 2*unit)
	requireKind(t, err, domain.ErrInsufficientFunds, "amount exceeds sender balance")
}

func TestBuyOfferDustResidualClosesOffer(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, unit)
	offer := f.offer(alice, ev, unit, domain.OutcomeHome)
	f.deposit(bob, unit)

	_, err := f.x.BuyOffer(f.ctx, bob, offer, unit-100)
	require.NoError(t, err)
	o, _ := f.x.Offer(offer)
	require.True(t, o.Closed())
	require.Equal(t, uint64(100), f.x.BalanceOf(alice))
}

func TestBuyOfferPreconditions(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev, closed := f.event(), f.event()
	f.deposit(alice, 3*unit)
	offer := f.offer(alice, ev, unit, domain.OutcomeHome)
	expiring, err := f.x.OpenOffer(f.ctx, alice, ev, 0, unit, unit, 1, f.clock.now.Add(time.Minute))
	require.NoError(t, err)
	onClosed := f.offer(alice, closed, unit, domain.OutcomeHome)
	require.NoError(t, f.x.CancelEvent(f.ctx, admin, closed))
	f.clock.Advance(2 * time.Minute)
	f.deposit(bob, unit/2)

	buy := func(id, amount uint64) error {
		_, err := f.x.BuyOffer(f.ctx, bob, id, amount)
		return err
	}
	requireKind(t, buy(99, unit), domain.ErrNotFound, "offer id does not exist yet")
	requireKind(t, buy(expiring, unit), domain.ErrState, "offer is expired")
	requireKind(t, buy(onClosed, unit), domain.ErrState, "event is not open")
	requireKind(t, buy(offer, 1000), domain.ErrInvalidInput, "amount is below minimum")
	requireKind(t, buy(offer, unit), domain.ErrInsufficientFunds, "amount exceeds sender balance")

	require.NoError(t, f.x.CloseOffer(f.ctx, alice, offer))
	requireKind(t, buy(offer, unit), domain.ErrState, "offer is already closed")

	_, _, bets, _ := f.x.Counts()
	require.Zero(t, bets)
}

func TestBuyOfferCustodianPreconditions(t *testing.T) {
	f := newFixture(t, FundingCustodian)
	ev := f.event()
	f.fund(alice, unit)
	f.fund(bob, unit)
	offer := f.offer(alice, ev, unit, domain.OutcomeAway)
	buy := func(amount uint64) error {
		_, err := f.x.BuyOffer(f.ctx, bob, offer, amount)
		return err
	}

	f.token.Burn(alice, unit)
	requireKind(t, buy(unit), domain.ErrInsufficientFunds, "offer owner balance is below minimum")

	f.token.Mint(alice, unit)
	f.token.Approve(alice, vault, 1000)
	requireKind(t, buy(unit), domain.ErrInsufficientAllowance, "offer owner allowance is below minimum")

	f.token.Approve(alice, vault, unit)
	requireKind(t, buy(1000), domain.ErrInvalidInput, "amount is below minimum")

	f.token.Burn(bob, unit/2)
	requireKind(t, buy(unit), domain.ErrInsufficientFunds, "amount exceeds sender balance")

	f.token.Mint(bob, unit/2)
	f.token.Approve(bob, vault, 1000)
	requireKind(t, buy(unit), domain.ErrInsufficientAllowance, "amount exceeds sender allowance")

	f.token.Approve(bob, vault, unit)
	require.NoError(t, buy(unit))
	vaultBal, _ := f.token.BalanceOf(f.ctx, vault)
	require.Equal(t, uint64(2*unit), vaultBal)
	require.Equal(t, uint64(2*unit), f.x.Snapshot().Held)
}

func TestBuyOfferBulk(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, 2*unit)
	first := f.offer(alice, ev, unit, domain.OutcomeHome)
	second := f.offer(alice, ev, unit, domain.OutcomeHome)
	f.deposit(bob, 2*unit)

	bets, err := f.x.BuyOfferBulk(f.ctx, bob, []uint64{second, first}, unit+unit/2)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	require.Equal(t, uint64(unit/2), f.x.BalanceOf(bob))

	o2, _ := f.x.Offer(second)
	o1, _ := f.x.Offer(first)
	require.True(t, o2.Closed())
	require.Equal(t, uint64(unit/2), o1.Amount)

	b1, _ := f.x.Bet(bets[0])
	b2, _ := f.x.Bet(bets[1])
	require.Equal(t, uint64(2*unit), b1.TotalAmount)
	require.Equal(t, uint64(unit), b2.TotalAmount)
}

func TestBuyOfferBulkIsAllOrNothing(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, 2*unit)
	first := f.offer(alice, ev, unit, domain.OutcomeHome)
	second := f.offer(alice, ev, unit, domain.OutcomeHome)
	require.NoError(t, f.x.CloseOffer(f.ctx, alice, second))
	f.deposit(bob, 2*unit)
	before := f.x.Snapshot()

	_, err := f.x.BuyOfferBulk(f.ctx, bob, []uint64{first, second}, 2*unit)
	requireKind(t, err, domain.ErrState, "offer is already closed")
	require.Equal(t, before, f.x.Snapshot())

	_, err = f.x.BuyOfferBulk(f.ctx, bob, nil, unit)
	requireKind(t, err, domain.ErrInvalidInput, "no offers given")
	_, err = f.x.BuyOfferBulk(f.ctx, bob, []uint64{first}, 10)
	requireKind(t, err, domain.ErrInvalidInput, "amount is below minimum")
}

func TestBuyOfferBulkChecksSenderFundsForTotal(t *testing.T) {
	for _, funding := range []Funding{FundingLedger, FundingCustodian} {
		t.Run(string(funding), func(t *testing.T) {
			f := newFixture(t, funding)
			ev := f.event()
			if funding == FundingLedger {
				f.deposit(alice, 2*unit)
				f.deposit(bob, 2*unit)
			} else {
				f.fund(alice, 2*unit)
				f.fund(bob, 2*unit)
			}
			first := f.offer(alice, ev, unit, domain.OutcomeHome)
			second := f.offer(alice, ev, unit, domain.OutcomeHome)
			before := f.x.Snapshot()

			bets, err := f.x.BuyOfferBulk(f.ctx, bob, []uint64{first, second}, 3*unit)
			requireKind(t, err, domain.ErrInsufficientFunds, "amount exceeds sender balance")
			require.Empty(t, bets)
			require.Equal(t, before, f.x.Snapshot())

			bets, err = f.x.BuyOfferBulk(f.ctx, bob, []uint64{first, second}, 2*unit)
			require.NoError(t, err)
			require.Len(t, bets, 2)
		})
	}
}

func TestBuyOfferBulkChecksSenderAllowanceForTotal(t *testing.T) {
	f := newFixture(t, FundingCustodian)
	ev := f.event()
	f.fund(alice, 2*unit)
	first := f.offer(alice, ev, unit, domain.OutcomeHome)
	second := f.offer(alice, ev, unit, domain.OutcomeHome)
	f.fund(bob, 3*unit)
	f.token.Approve(bob, vault, 2*unit)

	_, err := f.x.BuyOfferBulk(f.ctx, bob, []uint64{first, second}, 3*unit)
	requireKind(t, err, domain.ErrInsufficientAllowance, "amount exceeds sender allowance")
	_, _, bets, _ := f.x.Counts()
	require.Zero(t, bets)
}

func TestBuyOfferBulkTailBelowMinimumFills(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, 2*unit)
	first := f.offer(alice, ev, unit, domain.OutcomeHome)
	second := f.offer(alice, ev, unit, domain.OutcomeHome)
	f.deposit(bob, 2*unit)

	total := uint64(unit + unit/200)
	bets, err := f.x.BuyOfferBulk(f.ctx, bob, []uint64{first, second}, total)
	require.NoError(t, err)
	require.Len(t, bets, 2)

	tail, _ := f.x.Bet(bets[1])
	require.Equal(t, uint64(2*(unit/200)), tail.TotalAmount)
	o2, _ := f.x.Offer(second)
	require.Equal(t, uint64(unit-unit/200), o2.Amount)
	require.Equal(t, uint64(2*unit)-total, f.x.BalanceOf(bob))
}
