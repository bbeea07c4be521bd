package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/socialbet/internal/custodian"
	"github.com/alanyoungcy/socialbet/internal/domain"
)

func TestAddEvent(t *testing.T) {
	f := newFixture(t, FundingLedger)
	start := f.clock.now.Add(time.Hour)
	id, err := f.x.AddEvent(f.ctx, admin, hash, start,
		[]domain.MarketType{domain.MarketType1X2, domain.MarketTypeHandicap},
		[][]byte{nil, []byte("+12.5")})
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	ev, err := f.x.Event(id)
	require.NoError(t, err)
	require.Equal(t, domain.EventStateOpen, ev.State)
	require.Equal(t, hash, ev.ContentHash)
	require.Equal(t, start, ev.TimestampStart)
	require.Zero(t, ev.ResultAttempts)
	require.Len(t, ev.Markets, 2)
	require.Equal(t, 1, ev.Markets[1].Index)
	require.Equal(t, []byte("+12.5"), ev.Markets[1].Data)
	require.Equal(t, domain.OutcomeNull, ev.Markets[0].Outcome)
}

func TestAddEventRejectsBadMarkets(t *testing.T) {
	f := newFixture(t, FundingLedger)
	start := f.clock.now.Add(time.Hour)

	_, err := f.x.AddEvent(f.ctx, admin, hash, start, []domain.MarketType{0, 1}, [][]byte{nil})
	requireKind(t, err, domain.ErrInvalidInput, "market types and data length mismatch")

	_, err = f.x.AddEvent(f.ctx, admin, hash, start, []domain.MarketType{9}, [][]byte{nil})
	requireKind(t, err, domain.ErrInvalidInput, "invalid market type")

	_, err = f.x.AddEvent(f.ctx, admin, hash, start, []domain.MarketType{3}, [][]byte{[]byte("+123456789.5")})
	requireKind(t, err, domain.ErrInvalidInput, "market data too long")

	events, _, _, _ := f.x.Counts()
	require.Zero(t, events)
}

func TestAddEventBulk(t *testing.T) {
	f := newFixture(t, FundingLedger)
	now := f.clock.now
	hashes := []common.Hash{hash, common.HexToHash("0x01"), common.HexToHash("0x02")}

	_, err := f.x.AddEventBulk(f.ctx, admin, []domain.MarketType{0, 0}, hashes, []time.Time{now, now, now})
	requireKind(t, err, domain.ErrInvalidInput, "array length mismatch")

	ids, err := f.x.AddEventBulk(f.ctx, admin,
		[]domain.MarketType{domain.MarketType1X2, domain.MarketTypeTotals, domain.MarketTypeMoneyline},
		hashes,
		[]time.Time{now.Add(time.Hour), now.Add(-time.Hour), now.Add(2 * time.Hour)})
	require.NoError(t, err)
	// The tuple starting in the past is skipped.
	require.Equal(t, []uint64{1, 2}, ids)

	ev, err := f.x.Event(2)
	require.NoError(t, err)
	require.Equal(t, hashes[2], ev.ContentHash)
	require.Equal(t, domain.MarketTypeMoneyline, ev.Markets[0].Type)
}

func TestAddMarkets(t *testing.T) {
	f := newFixture(t, FundingLedger)
	id := f.event()

	require.NoError(t, f.x.AddMarkets(f.ctx, admin, id,
		[]domain.MarketType{domain.MarketTypeTotals}, [][]byte{[]byte("125")}))
	ev, _ := f.x.Event(id)
	require.Len(t, ev.Markets, 2)
	require.Equal(t, 1, ev.Markets[1].Index)

	requireKind(t, f.x.AddMarkets(f.ctx, admin, 99, []domain.MarketType{0}, [][]byte{nil}),
		domain.ErrNotFound, "event does not exist")

	require.NoError(t, f.x.CancelEvent(f.ctx, admin, id))
	requireKind(t, f.x.AddMarkets(f.ctx, admin, id, []domain.MarketType{0}, [][]byte{nil}),
		domain.ErrState, "event is not open")
}

func TestCancelEventSkipsIneligible(t *testing.T) {
	f := newFixture(t, FundingLedger)
	a, b := f.event(), f.event()
	f.start(a)
	require.NoError(t, f.x.SetEventResult(f.ctx, admin, a, []int{0}, []domain.Outcome{domain.OutcomeHome}))

	require.NoError(t, f.x.CancelEvent(f.ctx, admin, a, b, 42))
	evA, _ := f.x.Event(a)
	evB, _ := f.x.Event(b)
	require.Equal(t, domain.EventStateClosed, evA.State)
	require.Equal(t, domain.EventStateCanceled, evB.State)

	// Cancelling a terminal event again is a no-op.
	require.NoError(t, f.x.CancelEvent(f.ctx, admin, b))
	evB2, _ := f.x.Event(b)
	require.Equal(t, evB, evB2)
}

func TestSetEventResultBeforeStartIsNoop(t *testing.T) {
	f := newFixture(t, FundingLedger)
	id := f.event()
	require.NoError(t, f.x.SetEventResult(f.ctx, admin, id, []int{0}, []domain.Outcome{domain.OutcomeHome}))
	ev, _ := f.x.Event(id)
	require.Equal(t, domain.EventStateOpen, ev.State)
	require.Zero(t, ev.ResultAttempts)
}

func TestSetEventResultValidCloses(t *testing.T) {
	f := newFixture(t, FundingLedger)
	id := f.event()
	require.NoError(t, f.x.AddMarkets(f.ctx, admin, id, []domain.MarketType{domain.MarketTypeTotals}, [][]byte{[]byte("125")}))
	f.start(id)

	require.NoError(t, f.x.SetEventResult(f.ctx, admin, id, []int{0}, []domain.Outcome{domain.OutcomeDraw}))
	ev, _ := f.x.Event(id)
	require.Equal(t, domain.EventStateClosed, ev.State)
	require.Equal(t, 1, ev.ResultAttempts)
	require.Equal(t, domain.OutcomeDraw, ev.Markets[0].Outcome)
	// A market left without a result settles as canceled.
	require.Equal(t, domain.OutcomeCanceled, ev.Markets[1].Outcome)

	// Closed events ignore further submissions.
	require.NoError(t, f.x.SetEventResult(f.ctx, admin, id, []int{0}, []domain.Outcome{domain.OutcomeHome}))
	ev2, _ := f.x.Event(id)
	require.Equal(t, ev, ev2)
}

func TestSetEventResultInvalidEscalates(t *testing.T) {
	f := newFixture(t, FundingLedger)
	id := f.event()
	f.start(id)

	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, f.x.SetEventResult(f.ctx, admin, id, []int{0}, []domain.Outcome{domain.OutcomeOver}))
		ev, _ := f.x.Event(id)
		require.Equal(t, domain.EventStateOpen, ev.State)
		require.Equal(t, attempt, ev.ResultAttempts)
		require.Equal(t, domain.OutcomeNull, ev.Markets[0].Outcome)
	}

	r, err := f.x.Execute(f.ctx, Command{
		Op: OpSetEventResult, Caller: admin, ID: id,
		MarketIndexes: []int{0}, Outcomes: []domain.Outcome{domain.OutcomeOver},
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{id}, r.Escalated)

	ev, _ := f.x.Event(id)
	require.Equal(t, domain.EventStateClosed, ev.State)
	require.Equal(t, 3, ev.ResultAttempts)
	require.Equal(t, domain.OutcomeCanceled, ev.Markets[0].Outcome)
}

func TestSetEventResultThirdValidAttemptIsForced(t *testing.T) {
	f := newFixture(t, FundingLedger)
	id := f.event()
	f.start(id)
	for i := 0; i < 2; i++ {
		require.NoError(t, f.x.SetEventResult(f.ctx, admin, id, []int{0}, []domain.Outcome{domain.OutcomeNull}))
	}
	require.NoError(t, f.x.SetEventResult(f.ctx, admin, id, []int{0}, []domain.Outcome{domain.OutcomeHome}))
	ev, _ := f.x.Event(id)
	require.Equal(t, domain.OutcomeCanceled, ev.Markets[0].Outcome)
}

func TestSetEventResultBulk(t *testing.T) {
	f := newFixture(t, FundingLedger)
	a, b := f.event(), f.event()
	f.start(b)

	requireKind(t, f.x.SetEventResultBulk(f.ctx, admin, []uint64{a, b}, []domain.Outcome{1}),
		domain.ErrInvalidInput, "array length mismatch")

	require.NoError(t, f.x.SetEventResultBulk(f.ctx, admin, []uint64{a, b, 77},
		[]domain.Outcome{domain.OutcomeHome, domain.OutcomeOver, domain.OutcomeAway}))
	evA, _ := f.x.Event(a)
	evB, _ := f.x.Event(b)
	require.Equal(t, domain.EventStateClosed, evA.State)
	require.Equal(t, domain.OutcomeHome, evA.Markets[0].Outcome)
	require.Equal(t, domain.EventStateOpen, evB.State)
	require.Equal(t, 1, evB.ResultAttempts)
}

func TestSetEventResultLengthMismatch(t *testing.T) {
	f := newFixture(t, FundingLedger)
	id := f.event()
	f.start(id)
	requireKind(t, f.x.SetEventResult(f.ctx, admin, id, []int{0, 1}, []domain.Outcome{1}),
		domain.ErrInvalidInput, "array length mismatch")
	ev, _ := f.x.Event(id)
	require.Zero(t, ev.ResultAttempts)
}

// Every event closes by the third attempt whatever is submitted, and the
// attempt counter never moves once the event is terminal.
func TestResultAttemptsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		x := New(testParams(FundingLedger), custodian.NewMemory(vault), clock, nil, discardLogger())
		typ := domain.MarketType(rapid.IntRange(0, 3).Draw(t, "type").(int))
		id, err := x.AddEvent(ctx, owner, hash, clock.now.Add(time.Minute), []domain.MarketType{typ}, [][]byte{nil})
		require.NoError(t, err)
		clock.now = clock.now.Add(2 * time.Minute)

		prev := 0
		n := rapid.IntRange(1, 8).Draw(t, "submissions").(int)
		for i := 0; i < n; i++ {
			out := domain.Outcome(rapid.IntRange(0, 7).Draw(t, "outcome").(int))
			before, _ := x.Event(id)
			require.NoError(t, x.SetEventResult(ctx, owner, id, []int{0}, []domain.Outcome{out}))
			ev, _ := x.Event(id)
			if before.State.Terminal() {
				require.Equal(t, before, ev)
				continue
			}
			require.Equal(t, prev+1, ev.ResultAttempts)
			prev = ev.ResultAttempts
			if ev.ResultAttempts >= 3 {
				require.Equal(t, domain.EventStateClosed, ev.State)
			}
		}
		ev, _ := x.Event(id)
		require.LessOrEqual(t, ev.ResultAttempts, 3)
		if ev.ResultAttempts == 3 {
			require.Equal(t, domain.EventStateClosed, ev.State)
		}
	})
}
