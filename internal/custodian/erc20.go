package custodian

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// erc20ABI covers the subset of the token interface the exchange calls.
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// ErrReverted is returned when a token transaction is mined but fails.
var ErrReverted = errors.New("custodian: transaction reverted")

// ChainClient is the slice of the JSON-RPC client ERC20 needs.
// *ethclient.Client satisfies it.
type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ERC20Config configures an ERC20 custodian.
type ERC20Config struct {
	Token          common.Address
	ChainID        int64
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// ERC20 holds exchange funds in an ERC20 token contract. Transfers are signed
// with the exchange key and block until the receipt is mined.
type ERC20 struct {
	client ChainClient
	abi    abi.ABI
	key    *ecdsa.PrivateKey
	self   common.Address
	signer types.Signer
	cfg    ERC20Config
	logger *slog.Logger
}

var _ domain.Custodian = (*ERC20)(nil)

// DialERC20 connects to rpcURL and returns a custodian for the configured
// token.
func DialERC20(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, cfg ERC20Config, logger *slog.Logger) (*ERC20, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("custodian: dial rpc: %w", err)
	}
	return NewERC20(client, key, cfg, logger)
}

// NewERC20 builds a custodian over an existing chain client.
func NewERC20(client ChainClient, key *ecdsa.PrivateKey, cfg ERC20Config, logger *slog.Logger) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("custodian: parse abi: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	return &ERC20{
		client: client,
		abi:    parsed,
		key:    key,
		self:   ethcrypto.PubkeyToAddress(key.PublicKey),
		signer: types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		cfg:    cfg,
		logger: logger.With(slog.String("component", "erc20_custodian")),
	}, nil
}

func (e *ERC20) Address() common.Address { return e.self }

func (e *ERC20) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	return e.callUint(ctx, "balanceOf", owner)
}

func (e *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (uint64, error) {
	return e.callUint(ctx, "allowance", owner, spender)
}

func (e *ERC20) Transfer(ctx context.Context, to common.Address, amount uint64) error {
	return e.send(ctx, "transfer", to, new(big.Int).SetUint64(amount))
}

func (e *ERC20) TransferFrom(ctx context.Context, from common.Address, amount uint64) error {
	return e.send(ctx, "transferFrom", from, e.self, new(big.Int).SetUint64(amount))
}

func (e *ERC20) callUint(ctx context.Context, method string, args ...any) (uint64, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return 0, fmt.Errorf("custodian: pack %s: %w", method, err)
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.cfg.Token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("custodian: call %s: %w", method, err)
	}
	vals, err := e.abi.Unpack(method, out)
	if err != nil {
		return 0, fmt.Errorf("custodian: unpack %s: %w", method, err)
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("custodian: %s returned %T", method, vals[0])
	}
	// Balances beyond uint64 are capped; the exchange never moves more.
	if !n.IsUint64() {
		return ^uint64(0), nil
	}
	return n.Uint64(), nil
}

func (e *ERC20) send(ctx context.Context, method string, args ...any) error {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("custodian: pack %s: %w", method, err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.self)
	if err != nil {
		return fmt.Errorf("custodian: nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("custodian: gas price: %w", err)
	}
	gas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: e.self, To: &e.cfg.Token, Data: data})
	if err != nil {
		return fmt.Errorf("custodian: estimate %s: %w", method, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.cfg.Token,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, e.signer, e.key)
	if err != nil {
		return fmt.Errorf("custodian: sign %s: %w", method, err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("custodian: send %s: %w", method, err)
	}

	e.logger.Debug("token transaction sent",
		slog.String("method", method),
		slog.String("tx", signed.Hash().Hex()),
	)

	receipt, err := e.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return fmt.Errorf("custodian: %s %s: %w", method, signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s %s", ErrReverted, method, signed.Hash().Hex())
	}
	return nil
}

func (e *ERC20) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
