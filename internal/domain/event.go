package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventState tracks the event lifecycle. CLOSED and CANCELED are terminal.
type EventState uint8

const (
	EventStateOpen     EventState = 0
	EventStateClosed   EventState = 1
	EventStateCanceled EventState = 2
)

func (s EventState) String() string {
	switch s {
	case EventStateOpen:
		return "open"
	case EventStateClosed:
		return "closed"
	case EventStateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s EventState) Terminal() bool {
	return s == EventStateClosed || s == EventStateCanceled
}

// MaxMarketData is the maximum length of a market's auxiliary data.
const MaxMarketData = 10

// Market is a question about an event with a finite outcome set.
type Market struct {
	Index   int
	Type    MarketType
	Data    []byte // e.g. a handicap line such as "+12.5"
	Outcome Outcome
}

// Event is a real-world occurrence with one or more markets.
type Event struct {
	ID             uint64
	ContentHash    common.Hash // sha256 digest of the metadata document
	TimestampStart time.Time
	State          EventState
	ResultAttempts int
	Markets        []Market
	CreatedAt      time.Time
}

// Started reports whether the event has started at now.
func (e Event) Started(now time.Time) bool {
	return !now.Before(e.TimestampStart)
}

// Clone returns a deep copy so callers cannot mutate exchange state.
func (e Event) Clone() Event {
	out := e
	out.Markets = make([]Market, len(e.Markets))
	for i, m := range e.Markets {
		m.Data = append([]byte(nil), m.Data...)
		out.Markets[i] = m
	}
	return out
}
