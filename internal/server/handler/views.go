package handler

import (
	"time"

	"github.com/alanyoungcy/socialbet/internal/contenthash"
	"github.com/alanyoungcy/socialbet/internal/domain"
)

type marketView struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Outcome string `json:"outcome"`
}

type eventView struct {
	ID             uint64       `json:"id"`
	ContentHash    string       `json:"content_hash"`
	CID            string       `json:"cid"`
	TimestampStart int64        `json:"timestamp_start"`
	State          string       `json:"state"`
	ResultAttempts int          `json:"result_attempts"`
	Markets        []marketView `json:"markets"`
	CreatedAt      time.Time    `json:"created_at"`
}

func viewEvent(e domain.Event) eventView {
	v := eventView{
		ID:             e.ID,
		ContentHash:    e.ContentHash.Hex(),
		CID:            contenthash.ToCID(e.ContentHash),
		TimestampStart: e.TimestampStart.Unix(),
		State:          e.State.String(),
		ResultAttempts: e.ResultAttempts,
		Markets:        make([]marketView, len(e.Markets)),
		CreatedAt:      e.CreatedAt,
	}
	for i, m := range e.Markets {
		v.Markets[i] = marketView{Index: m.Index, Type: m.Type.String(), Data: string(m.Data), Outcome: m.Outcome.String()}
	}
	return v
}

type offerView struct {
	ID                  uint64    `json:"id"`
	EventID             uint64    `json:"event_id"`
	MarketIndex         int       `json:"market_index"`
	Owner               string    `json:"owner"`
	Amount              string    `json:"amount"`
	Price               string    `json:"price"`
	Outcome             string    `json:"outcome"`
	TimestampExpiration int64     `json:"timestamp_expiration"`
	Closed              bool      `json:"closed"`
	CreatedAt           time.Time `json:"created_at"`
}

func (u Units) viewOffer(o domain.Offer) offerView {
	return offerView{
		ID:                  o.ID,
		EventID:             o.EventID,
		MarketIndex:         o.MarketIndex,
		Owner:               o.Owner.Hex(),
		Amount:              u.Format(o.Amount),
		Price:               u.Format(o.Price),
		Outcome:             o.Outcome.String(),
		TimestampExpiration: o.TimestampExpiration.Unix(),
		Closed:              o.Closed(),
		CreatedAt:           o.CreatedAt,
	}
}

type betView struct {
	ID             uint64    `json:"id"`
	EventID        uint64    `json:"event_id"`
	MarketIndex    int       `json:"market_index"`
	OfferID        uint64    `json:"offer_id"`
	Outcome        string    `json:"outcome"`
	TotalAmount    string    `json:"total_amount"`
	BackPositionID uint64    `json:"back_position_id"`
	LayPositionID  uint64    `json:"lay_position_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (u Units) viewBet(b domain.Bet) betView {
	return betView{
		ID:             b.ID,
		EventID:        b.EventID,
		MarketIndex:    b.MarketIndex,
		OfferID:        b.OfferID,
		Outcome:        b.Outcome.String(),
		TotalAmount:    u.Format(b.TotalAmount),
		BackPositionID: b.BackPositionID,
		LayPositionID:  b.LayPositionID,
		CreatedAt:      b.CreatedAt,
	}
}

type positionView struct {
	ID           uint64 `json:"id"`
	BetID        uint64 `json:"bet_id"`
	Side         string `json:"side"`
	Owner        string `json:"owner"`
	Amount       string `json:"amount"`
	Price        string `json:"price"`
	AmountToEarn string `json:"amount_to_earn"`
	Claimed      bool   `json:"claimed"`
}

func (u Units) viewPosition(p domain.Position) positionView {
	return positionView{
		ID:           p.ID,
		BetID:        p.BetID,
		Side:         string(p.Side),
		Owner:        p.Owner.Hex(),
		Amount:       u.Format(p.Amount),
		Price:        u.Format(p.Price),
		AmountToEarn: u.Format(p.AmountToEarn),
		Claimed:      p.Claimed,
	}
}

type balanceChangeView struct {
	Delta   string `json:"delta"`
	Balance string `json:"balance"`
	Reason  string `json:"reason"`
}

func (u Units) viewChange(c domain.BalanceChange) balanceChangeView {
	delta := u.Format(uint64(c.Delta))
	if c.Delta < 0 {
		delta = "-" + u.Format(uint64(-c.Delta))
	}
	return balanceChangeView{Delta: delta, Balance: u.Format(c.Balance), Reason: c.Reason}
}

func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
