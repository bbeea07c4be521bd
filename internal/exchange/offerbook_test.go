package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

func TestOpenOfferEscrowsFromLedger(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, 3*unit)

	id := f.offer(alice, ev, 2*unit, domain.OutcomeAway)
	require.Equal(t, uint64(1), id)
	require.Equal(t, uint64(unit), f.x.BalanceOf(alice))
	require.Equal(t, uint64(2*unit), f.x.Snapshot().Held)

	o, err := f.x.Offer(id)
	require.NoError(t, err)
	require.Equal(t, alice, o.Owner)
	require.Equal(t, uint64(2*unit), o.Amount)
	require.Equal(t, uint64(unit), o.Price)
	require.Equal(t, domain.OutcomeAway, o.Outcome)
	require.False(t, o.Closed())
}

func TestOpenOfferValidation(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, unit)
	exp := f.clock.now.Add(time.Minute)

	cases := []struct {
		name    string
		eventID uint64
		market  int
		amount  uint64
		price   uint64
		outcome domain.Outcome
		exp     time.Time
		kind    error
		reason  string
	}{
		{"unknown event", 9, 0, unit, unit, 1, exp, domain.ErrNotFound, "event does not exist"},
		{"market out of range", ev, 1, unit, unit, 1, exp, domain.ErrState, "market does not exist"},
		{"outcome not a pick", ev, 0, unit, unit, domain.OutcomeCanceled, exp, domain.ErrInvalidInput, "invalid outcome"},
		{"outcome of another type", ev, 0, unit, unit, domain.OutcomeOver, exp, domain.ErrInvalidInput, "invalid outcome"},
		{"price below minimum", ev, 0, unit, 100, 1, exp, domain.ErrInvalidInput, "price is below minimum"},
		{"amount below minimum", ev, 0, 1000, unit, 1, exp, domain.ErrInvalidInput, "amount is below minimum"},
		{"expiration in the past", ev, 0, unit, unit, 1, f.clock.now, domain.ErrInvalidInput, "expiration is not in the future"},
		{"amount above balance", ev, 0, 2 * unit, unit, 1, exp, domain.ErrInsufficientFunds, "amount exceeds sender balance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.x.OpenOffer(f.ctx, alice, tc.eventID, tc.market, tc.amount, tc.price, tc.outcome, tc.exp)
			requireKind(t, err, tc.kind, tc.reason)
		})
	}
	_, offers, _, _ := f.x.Counts()
	require.Zero(t, offers)
	require.Equal(t, uint64(unit), f.x.BalanceOf(alice))

	require.NoError(t, f.x.CancelEvent(f.ctx, admin, ev))
	_, err := f.x.OpenOffer(f.ctx, alice, ev, 0, unit, unit, 1, exp)
	requireKind(t, err, domain.ErrState, "event is not open")
}

func TestOpenOfferCustodianFunding(t *testing.T) {
	f := newFixture(t, FundingCustodian)
	ev := f.event()
	exp := f.clock.now.Add(time.Minute)

	f.token.Mint(alice, unit)
	_, err := f.x.OpenOffer(f.ctx, alice, ev, 0, unit, unit, 1, exp)
	requireKind(t, err, domain.ErrInsufficientAllowance, "amount exceeds sender allowance")

	f.token.Approve(alice, vault, unit)
	id, err := f.x.OpenOffer(f.ctx, alice, ev, 0, unit, unit, 1, exp)
	require.NoError(t, err)
	require.NotZero(t, id)
	// Nothing moves until the offer is bought.
	bal, _ := f.token.BalanceOf(f.ctx, alice)
	require.Equal(t, uint64(unit), bal)
	require.Zero(t, f.x.Snapshot().Held)
}

func TestUpdateOffer(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, unit)
	id := f.offer(alice, ev, unit, domain.OutcomeHome)

	require.NoError(t, f.x.UpdateOffer(f.ctx, alice, id, 3*unit))
	o, _ := f.x.Offer(id)
	require.Equal(t, uint64(3*unit), o.Price)
	require.Equal(t, uint64(unit), o.Amount)

	requireKind(t, f.x.UpdateOffer(f.ctx, alice, 5, unit), domain.ErrNotFound, "offer id does not exist yet")
	requireKind(t, f.x.UpdateOffer(f.ctx, bob, id, unit), domain.ErrPermissionDenied, "offer owner is not sender")
	requireKind(t, f.x.UpdateOffer(f.ctx, alice, id, 1), domain.ErrInvalidInput, "price is below minimum")

	f.clock.Advance(time.Hour)
	requireKind(t, f.x.UpdateOffer(f.ctx, alice, id, unit), domain.ErrState, "offer is expired")
}

func TestUpdateOfferEventNotOpen(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, unit)
	id := f.offer(alice, ev, unit, domain.OutcomeHome)
	require.NoError(t, f.x.CancelEvent(f.ctx, admin, ev))
	requireKind(t, f.x.UpdateOffer(f.ctx, alice, id, 2*unit), domain.ErrState, "event is not open")
}

func TestCloseOffer(t *testing.T) {
	f := newFixture(t, FundingLedger)
	ev := f.event()
	f.deposit(alice, unit)
	id := f.offer(alice, ev, unit, domain.OutcomeHome)
	require.Zero(t, f.x.BalanceOf(alice))

	requireKind(t, f.x.CloseOffer(f.ctx, bob, id), domain.ErrPermissionDenied, "offer owner is not sender")
	require.NoError(t, f.x.CloseOffer(f.ctx, alice, id))

	o, _ := f.x.Offer(id)
	require.True(t, o.Closed())
	require.Equal(t, uint64(unit), f.x.BalanceOf(alice))
	require.Zero(t, f.x.Snapshot().Held)

	// Closing again fails and changes nothing.
	requireKind(t, f.x.CloseOffer(f.ctx, alice, id), domain.ErrState, "offer is already closed")
	o2, _ := f.x.Offer(id)
	require.Equal(t, o, o2)
	require.Equal(t, uint64(unit), f.x.BalanceOf(alice))

	requireKind(t, f.x.UpdateOffer(f.ctx, alice, id, unit), domain.ErrState, "offer is already closed")
}
