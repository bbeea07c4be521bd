package exchange

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// transfer is an external custodian movement queued by an operation. Transfers
// run only after every internal effect of the operation has been applied.
type transfer struct {
	pull    bool // TransferFrom into the exchange; otherwise Transfer out
	account common.Address
	amount  uint64
}

// txn collects the undo log, queued transfers and emitted log events of one
// operation. Rolling back restores every table, balance and admin entry the
// operation touched.
type txn struct {
	ctx       context.Context
	now       time.Time
	undo      []func()
	transfers []transfer
	pending   map[common.Address]uint64 // queued pulls per account
	events    []domain.LogEvent
	ids       []uint64
	escalated []uint64 // events force-closed by the attempt ceiling
}

func newTxn(ctx context.Context, now time.Time) *txn {
	return &txn{ctx: ctx, now: now, pending: make(map[common.Address]uint64)}
}

func (t *txn) onUndo(f func()) { t.undo = append(t.undo, f) }

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.transfers = nil
	t.events = nil
	t.ids = nil
	t.escalated = nil
}

func (t *txn) emit(e domain.LogEvent) {
	e.At = t.now
	t.events = append(t.events, e)
}

func (t *txn) created(id uint64) { t.ids = append(t.ids, id) }

func (t *txn) queuePull(from common.Address, amount uint64) {
	t.transfers = append(t.transfers, transfer{pull: true, account: from, amount: amount})
	t.pending[from] += amount
}

func (t *txn) queuePush(to common.Address, amount uint64) {
	t.transfers = append(t.transfers, transfer{account: to, amount: amount})
}
