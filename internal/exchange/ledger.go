package exchange

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// Funding selects where offer and buy stakes come from.
type Funding string

const (
	// FundingLedger funds offers and buys from ledger balances. Opening an
	// offer escrows its amount; closing returns the residual.
	FundingLedger Funding = "ledger"
	// FundingCustodian funds offers and buys from custodian allowances. Both
	// stakes are pulled with TransferFrom at match time.
	FundingCustodian Funding = "custodian"
)

// Ledger holds custodial balances and the total held in escrow for open
// offers and unclaimed bets.
type Ledger struct {
	balances  map[common.Address]uint64
	held      uint64
	custodian domain.Custodian
	funding   Funding
	replaying bool
}

// NewLedger returns an empty ledger moving funds against custodian.
func NewLedger(custodian domain.Custodian, funding Funding) *Ledger {
	return &Ledger{
		balances:  make(map[common.Address]uint64),
		custodian: custodian,
		funding:   funding,
	}
}

// BalanceOf returns the ledger balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) uint64 { return l.balances[addr] }

// Held returns the total escrowed in open offers and unclaimed bets.
func (l *Ledger) Held() uint64 { return l.held }

// Balances returns a copy of every nonzero balance.
func (l *Ledger) Balances() map[common.Address]uint64 {
	out := make(map[common.Address]uint64, len(l.balances))
	for k, v := range l.balances {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func (l *Ledger) setBalance(tx *txn, addr common.Address, v uint64, delta int64, reason string) {
	prev, had := l.balances[addr]
	tx.onUndo(func() {
		if had {
			l.balances[addr] = prev
		} else {
			delete(l.balances, addr)
		}
	})
	l.balances[addr] = v
	tx.emit(domain.LogEvent{Kind: domain.LogBalance, Balance: &domain.BalanceChange{
		Account: addr, Delta: delta, Balance: v, Reason: reason,
	}})
}

func (l *Ledger) credit(tx *txn, addr common.Address, amount uint64, reason string) error {
	if amount == 0 {
		return nil
	}
	bal := l.balances[addr]
	if bal > math.MaxUint64-amount {
		return domain.InvalidInput("balance overflow")
	}
	l.setBalance(tx, addr, bal+amount, int64(amount), reason)
	return nil
}

// debit fails with InsufficientFunds(short) rather than underflow.
func (l *Ledger) debit(tx *txn, addr common.Address, amount uint64, reason, short string) error {
	bal := l.balances[addr]
	if amount > bal {
		return domain.InsufficientFunds(short)
	}
	if amount == 0 {
		return nil
	}
	l.setBalance(tx, addr, bal-amount, -int64(amount), reason)
	return nil
}

func (l *Ledger) lock(tx *txn, amount uint64) {
	prev := l.held
	tx.onUndo(func() { l.held = prev })
	l.held += amount
}

func (l *Ledger) release(tx *txn, amount uint64) {
	prev := l.held
	tx.onUndo(func() { l.held = prev })
	l.held -= amount
}

// checkCustodian verifies that owner can cover amount on top of the pulls the
// operation already queued. Skipped while replaying the journal.
func (l *Ledger) checkCustodian(tx *txn, owner common.Address, amount uint64, short, noAllowance string) error {
	if l.replaying {
		return nil
	}
	need := tx.pending[owner] + amount
	bal, err := l.custodian.BalanceOf(tx.ctx, owner)
	if err != nil {
		return fmt.Errorf("ledger: custodian balance of %s: %w", owner.Hex(), err)
	}
	if bal < need {
		return domain.InsufficientFunds(short)
	}
	allowance, err := l.custodian.Allowance(tx.ctx, owner, l.custodian.Address())
	if err != nil {
		return fmt.Errorf("ledger: custodian allowance of %s: %w", owner.Hex(), err)
	}
	if allowance < need {
		return domain.InsufficientAllowance(noAllowance)
	}
	return nil
}

func (l *Ledger) deposit(tx *txn, caller common.Address, amount uint64) error {
	if amount == 0 {
		return domain.InvalidInput("amount is zero")
	}
	if err := l.checkCustodian(tx, caller, amount,
		"amount exceeds sender balance", "amount exceeds sender allowance"); err != nil {
		return err
	}
	if err := l.credit(tx, caller, amount, "deposit"); err != nil {
		return err
	}
	tx.queuePull(caller, amount)
	return nil
}

func (l *Ledger) withdraw(tx *txn, caller common.Address, amount uint64) error {
	if amount == 0 {
		return domain.InvalidInput("amount is zero")
	}
	if err := l.debit(tx, caller, amount, "withdraw", "amount exceeds sender balance"); err != nil {
		return err
	}
	tx.queuePush(caller, amount)
	return nil
}

// settle runs the transfers queued by tx in order. When one fails, the
// transfers that already ran are reversed and the error returned; the caller
// then rolls back tx.
func (l *Ledger) settle(tx *txn) error {
	if l.replaying || len(tx.transfers) == 0 {
		return nil
	}
	for i, t := range tx.transfers {
		if err := l.run(tx.ctx, t); err != nil {
			for j := i - 1; j >= 0; j-- {
				rev := tx.transfers[j]
				rev.pull = !rev.pull
				if cerr := l.run(context.WithoutCancel(tx.ctx), rev); cerr != nil {
					return fmt.Errorf("ledger: compensate transfer %d after %v: %w", j, err, cerr)
				}
			}
			return err
		}
	}
	return nil
}

func (l *Ledger) run(ctx context.Context, t transfer) error {
	if t.pull {
		if err := l.custodian.TransferFrom(ctx, t.account, t.amount); err != nil {
			return fmt.Errorf("ledger: transfer %d from %s: %w", t.amount, t.account.Hex(), err)
		}
		return nil
	}
	if err := l.custodian.Transfer(ctx, t.account, t.amount); err != nil {
		return fmt.Errorf("ledger: transfer %d to %s: %w", t.amount, t.account.Hex(), err)
	}
	return nil
}
