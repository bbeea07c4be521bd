package journal

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/socialbet/internal/custodian"
	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	user  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	vault = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	t0    = time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)
)

func logger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecordCarriesEveryField(t *testing.T) {
	cmd := exchange.Command{
		Op:            exchange.OpAddEvent,
		Caller:        owner,
		At:            t0.Add(123 * time.Nanosecond),
		Account:       user,
		IDs:           []uint64{0, 7, 1 << 40},
		ID:            42,
		MarketIndex:   -1,
		MarketIndexes: []int{0, 2},
		MarketTypes:   []domain.MarketType{domain.MarketType1X2, domain.MarketTypeHandicap},
		MarketData:    [][]byte{nil, []byte("+12.5")},
		ContentHashes: []common.Hash{common.HexToHash("0xabcdef")},
		Starts:        []time.Time{t0.Add(time.Hour), {}},
		Outcome:       domain.OutcomeDraw,
		Outcomes:      []domain.Outcome{domain.OutcomeHome, domain.OutcomeNull},
		Amount:        1_500_000,
		Price:         2_000_000,
		Expiration:    t0.Add(30 * time.Minute),
	}
	seq, got, err := Decode(Encode(9, cmd))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), seq)
	assert.Equal(t, cmd, got)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	rec := Encode(1, exchange.Command{Op: exchange.OpDeposit, Caller: user, Amount: 10, At: t0})

	flipped := append([]byte(nil), rec...)
	flipped[len(flipped)-1] ^= 0xff
	_, _, err := Decode(flipped)
	require.ErrorIs(t, err, domain.ErrJournalCorrupt)

	_, _, err = Decode(rec[:len(rec)-1])
	require.ErrorIs(t, err, domain.ErrJournalCorrupt)

	_, _, err = Decode(rec[:3])
	require.ErrorIs(t, err, domain.ErrJournalCorrupt)
}

func TestAppendReopenAndIterate(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, true, logger())
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		seq, err := j.Append(context.Background(), exchange.Command{Op: exchange.OpDeposit, Caller: user, Amount: uint64(i), At: t0})
		require.NoError(t, err)
		require.Equal(t, uint64(i), seq)
	}
	require.NoError(t, j.Close())

	j, err = Open(dir, true, logger())
	require.NoError(t, err)
	defer j.Close()
	require.Equal(t, uint64(3), j.Last())

	cur, err := j.From(1)
	require.NoError(t, err)
	defer cur.Close()
	var amounts []uint64
	for {
		cmd, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		amounts = append(amounts, cmd.Amount)
	}
	require.Equal(t, []uint64{2, 3}, amounts)
	require.Equal(t, uint64(3), cur.Seq())
}

func TestReplayRestoresExchange(t *testing.T) {
	ctx := context.Background()
	j, err := Open(t.TempDir(), false, logger())
	require.NoError(t, err)
	defer j.Close()

	params := exchange.Params{Owner: owner, MinAmount: 10, MinPrice: 10, FeeBps: 200, MaxResultAttempts: 3}
	token := custodian.NewMemory(vault)
	token.Mint(user, 1000)
	token.Approve(user, vault, 1000)
	clock := domain.ClockFunc(func() time.Time { return t0 })

	x := exchange.New(params, token, clock, j, logger())
	require.NoError(t, x.Deposit(ctx, user, 600))
	id, err := x.AddEvent(ctx, owner, common.HexToHash("0x01"), t0.Add(time.Hour),
		[]domain.MarketType{domain.MarketTypeMoneyline}, [][]byte{nil})
	require.NoError(t, err)
	_, err = x.OpenOffer(ctx, user, id, 0, 200, 300, domain.OutcomeAway, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, uint64(3), j.Last())

	y := exchange.New(params, custodian.NewMemory(vault), clock, nil, logger())
	n, err := j.Replay(ctx, y)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, x.Snapshot(), y.Snapshot())
}
