package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventStream is the durable stream every committed LogEvent is appended to.
const EventStream = "exchange:events"

// LogKind names an observable exchange event.
type LogKind string

const (
	LogNewEvent        LogKind = "new-event"
	LogNewMarkets      LogKind = "new-markets"
	LogResultSet       LogKind = "result-set"
	LogResultAttempt   LogKind = "result-attempt"
	LogCanceledEvent   LogKind = "canceled-event"
	LogNewOffer        LogKind = "new-offer"
	LogUpdatedOffer    LogKind = "updated-offer"
	LogNewPosition     LogKind = "new-position"
	LogNewBet          LogKind = "new-bet"
	LogUpdatedPosition LogKind = "updated-position"
	LogClaimed         LogKind = "claimed"
	LogBalance         LogKind = "balance"
	LogAdmin           LogKind = "admin"
)

// BalanceChange records a ledger balance movement.
type BalanceChange struct {
	Account common.Address
	Delta   int64 // signed change, base units
	Balance uint64
	Reason  string // deposit, withdraw, offer, buy, refund, payout, fee
}

// AdminChange records an admin set mutation.
type AdminChange struct {
	Account common.Address
	IsAdmin bool
}

// LogEvent is emitted by the exchange for every observable state change. Each
// carries a snapshot of the record it concerns so an indexer can upsert it
// without reading exchange state.
type LogEvent struct {
	Kind     LogKind
	Seq      uint64 // journal sequence of the command that produced it
	At       time.Time
	Event    *Event         `json:",omitempty"`
	Offer    *Offer         `json:",omitempty"`
	Bet      *Bet           `json:",omitempty"`
	Position *Position      `json:",omitempty"`
	Balance  *BalanceChange `json:",omitempty"`
	Admin    *AdminChange   `json:",omitempty"`
}

// Channel returns the bus channel the event is published on.
func (e LogEvent) Channel() string {
	return "exchange." + string(e.Kind)
}
