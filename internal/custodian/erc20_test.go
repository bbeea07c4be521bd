package custodian

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var token = common.HexToAddress("0x00000000000000000000000000000000000070c0")

// fakeChain answers token calls from a balance map and mines every
// transaction after a configurable number of receipt polls.
type fakeChain struct {
	mu       sync.Mutex
	abi      abi.ABI
	balances map[common.Address]*big.Int
	sent     []*types.Transaction
	pending  int
	status   uint64
}

func newFakeChain(t *testing.T) *fakeChain {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)
	return &fakeChain{
		abi:      parsed,
		balances: make(map[common.Address]*big.Int),
		status:   types.ReceiptStatusSuccessful,
	}
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m.Name {
	case "balanceOf":
		bal := f.balances[args[0].(common.Address)]
		if bal == nil {
			bal = new(big.Int)
		}
		return m.Outputs.Pack(bal)
	default:
		return m.Outputs.Pack(big.NewInt(7))
	}
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1e9), nil }

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 60_000, nil }

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 {
		f.pending--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.status}, nil
}

func newTestERC20(t *testing.T, chain *fakeChain) *ERC20 {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	e, err := NewERC20(chain, key, ERC20Config{
		Token:        token,
		ChainID:      137,
		PollInterval: time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e
}

func TestERC20Reads(t *testing.T) {
	chain := newFakeChain(t)
	chain.balances[alice] = big.NewInt(1234)
	chain.balances[bob] = new(big.Int).Lsh(big.NewInt(1), 70)
	e := newTestERC20(t, chain)
	ctx := context.Background()

	bal, err := e.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), bal)

	bal, err = e.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), bal)

	allow, err := e.Allowance(ctx, alice, e.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), allow)
}

func TestERC20TransferFromSignsAndWaits(t *testing.T) {
	chain := newFakeChain(t)
	chain.pending = 2
	e := newTestERC20(t, chain)

	require.NoError(t, e.TransferFrom(context.Background(), alice, 500))
	require.Len(t, chain.sent, 1)

	tx := chain.sent[0]
	assert.Equal(t, token, *tx.To())
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	require.NoError(t, err)
	assert.Equal(t, e.Address(), from)

	m, err := chain.abi.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "transferFrom", m.Name)
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, alice, args[0])
	assert.Equal(t, e.Address(), args[1])
	assert.Equal(t, 0, big.NewInt(500).Cmp(args[2].(*big.Int)))
}

func TestERC20RevertedTransfer(t *testing.T) {
	chain := newFakeChain(t)
	chain.status = types.ReceiptStatusFailed
	e := newTestERC20(t, chain)

	err := e.Transfer(context.Background(), bob, 1)
	require.ErrorIs(t, err, ErrReverted)
}

func TestERC20ReceiptTimeout(t *testing.T) {
	chain := newFakeChain(t)
	chain.pending = 1 << 30
	e := newTestERC20(t, chain)
	e.cfg.ReceiptTimeout = 20 * time.Millisecond

	err := e.Transfer(context.Background(), bob, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
