package exchange

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// Op identifies an exchange operation. Values are persisted in the journal
// and must not be renumbered.
type Op uint8

const (
	OpAddAdmin           Op = 1
	OpRemoveAdmin        Op = 2
	OpAddEvent           Op = 3
	OpAddEventBulk       Op = 4
	OpAddMarkets         Op = 5
	OpCancelEvent        Op = 6
	OpSetEventResult     Op = 7
	OpSetEventResultBulk Op = 8
	OpDeposit            Op = 9
	OpWithdraw           Op = 10
	OpOpenOffer          Op = 11
	OpUpdateOffer        Op = 12
	OpCloseOffer         Op = 13
	OpBuyOffer           Op = 14
	OpBuyOfferBulk       Op = 15
	OpClaimBetEarnings   Op = 16
	OpUpdatePosition     Op = 17
)

var opNames = map[Op]string{
	OpAddAdmin:           "add_admin",
	OpRemoveAdmin:        "remove_admin",
	OpAddEvent:           "add_event",
	OpAddEventBulk:       "add_event_bulk",
	OpAddMarkets:         "add_markets",
	OpCancelEvent:        "cancel_event",
	OpSetEventResult:     "set_event_result",
	OpSetEventResultBulk: "set_event_result_bulk",
	OpDeposit:            "deposit",
	OpWithdraw:           "withdraw",
	OpOpenOffer:          "open_offer",
	OpUpdateOffer:        "update_offer",
	OpCloseOffer:         "close_offer",
	OpBuyOffer:           "buy_offer",
	OpBuyOfferBulk:       "buy_offer_bulk",
	OpClaimBetEarnings:   "claim_bet_earnings",
	OpUpdatePosition:     "update_position",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "unknown"
}

// Command is one exchange operation with its arguments. Only the fields the
// operation reads are set. At is the time the operation executed; it is
// stamped from the clock when zero and replayed verbatim from the journal.
type Command struct {
	Op     Op
	Caller common.Address
	At     time.Time

	Account       common.Address
	IDs           []uint64 // event ids for cancel/result bulk, offer ids for buy bulk
	ID            uint64   // event, offer, bet or position id
	MarketIndex   int
	MarketIndexes []int
	MarketTypes   []domain.MarketType
	MarketData    [][]byte
	ContentHashes []common.Hash
	Starts        []time.Time
	Outcome       domain.Outcome
	Outcomes      []domain.Outcome
	Amount        uint64
	Price         uint64
	Expiration    time.Time
}

// Receipt is the result of a committed command.
type Receipt struct {
	Seq       uint64            // journal sequence, zero without a journal
	IDs       []uint64          // ids created: events, offer, bets
	Events    []domain.LogEvent // observable events in emission order
	Escalated []uint64          // events force-closed at the attempt ceiling
}
