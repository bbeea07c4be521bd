package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Custodian is the external fungible-asset ledger the exchange moves funds
// against. The exchange never mints or burns; it only transfers. Calls run
// while the exchange holds its lock, so any context an implementation passes
// on must be derived from the one it receives.
type Custodian interface {
	// Address is the account the custodian holds exchange funds under.
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (uint64, error)
	Allowance(ctx context.Context, owner, spender common.Address) (uint64, error)
	// Transfer moves amount from the exchange account to to.
	Transfer(ctx context.Context, to common.Address, amount uint64) error
	// TransferFrom moves amount from from to the exchange account using the
	// allowance from granted to the exchange.
	TransferFrom(ctx context.Context, from common.Address, amount uint64) error
}
