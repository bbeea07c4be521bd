package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bet links the two opposing positions created when an offer is matched.
type Bet struct {
	ID             uint64
	EventID        uint64
	MarketIndex    int
	OfferID        uint64
	Outcome        Outcome // the pick of the back position
	TotalAmount    uint64
	BackPositionID uint64
	LayPositionID  uint64
	CreatedAt      time.Time
}

// PositionSide is the side of a bet a position holds.
type PositionSide string

const (
	PositionSideBack PositionSide = "back"
	PositionSideLay  PositionSide = "lay"
)

// Position is one side's stake and potential payout within a bet.
type Position struct {
	ID           uint64
	BetID        uint64
	Side         PositionSide
	Owner        common.Address
	Amount       uint64
	Price        uint64 // resale quote; zero when not for sale
	AmountToEarn uint64
	Claimed      bool
}
