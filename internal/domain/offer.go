package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Offer is a standing intent to back an outcome, awaiting a counterparty.
// An offer is closed once both Amount and Price are zero.
type Offer struct {
	ID                  uint64
	EventID             uint64
	MarketIndex         int
	Owner               common.Address
	Amount              uint64
	Price               uint64
	Outcome             Outcome
	TimestampExpiration time.Time
	CreatedAt           time.Time
}

// Closed reports whether the offer has been closed or fully consumed.
func (o Offer) Closed() bool {
	return o.Amount == 0 && o.Price == 0
}

// Expired reports whether the offer is past its expiration at now.
func (o Offer) Expired(now time.Time) bool {
	return now.After(o.TimestampExpiration)
}
