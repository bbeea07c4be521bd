package exchange

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// EventRegistry owns events and their markets and runs the result-reporting
// state machine.
type EventRegistry struct {
	access      *AccessControl
	events      *table[domain.Event]
	maxAttempts int
}

// NewEventRegistry returns a registry backed by the given event table.
func NewEventRegistry(access *AccessControl, events *table[domain.Event], maxAttempts int) *EventRegistry {
	return &EventRegistry{access: access, events: events, maxAttempts: maxAttempts}
}

// Event returns a copy of the event with the given id.
func (r *EventRegistry) Event(id uint64) (domain.Event, bool) { return r.events.get(id) }

// Count returns the number of events ever created.
func (r *EventRegistry) Count() uint64 { return r.events.count() }

func buildMarkets(offset int, types []domain.MarketType, data [][]byte) ([]domain.Market, error) {
	if len(types) != len(data) {
		return nil, domain.InvalidInput("market types and data length mismatch")
	}
	out := make([]domain.Market, len(types))
	for i, t := range types {
		if !t.Valid() {
			return nil, domain.InvalidInput("invalid market type")
		}
		if len(data[i]) > domain.MaxMarketData {
			return nil, domain.InvalidInput("market data too long")
		}
		out[i] = domain.Market{
			Index: offset + i,
			Type:  t,
			Data:  append([]byte(nil), data[i]...),
		}
	}
	return out, nil
}

func (r *EventRegistry) create(tx *txn, hash common.Hash, start time.Time, markets []domain.Market) uint64 {
	ev := domain.Event{
		ID:             r.events.nextID(),
		ContentHash:    hash,
		TimestampStart: start,
		State:          domain.EventStateOpen,
		Markets:        markets,
		CreatedAt:      tx.now,
	}
	id := r.events.insert(tx, ev)
	tx.created(id)
	snap := ev.Clone()
	tx.emit(domain.LogEvent{Kind: domain.LogNewEvent, Event: &snap})
	return id
}

// addEvent creates one event with the given markets. Creation is not gated on
// the start time.
func (r *EventRegistry) addEvent(tx *txn, caller common.Address, hash common.Hash, start time.Time,
	types []domain.MarketType, data [][]byte) error {
	if err := r.access.requireAdmin(caller); err != nil {
		return err
	}
	markets, err := buildMarkets(0, types, data)
	if err != nil {
		return err
	}
	r.create(tx, hash, start, markets)
	return nil
}

// addEventBulk creates one single-market event per tuple. Tuples whose start
// time is not in the future are skipped.
func (r *EventRegistry) addEventBulk(tx *txn, caller common.Address, types []domain.MarketType,
	hashes []common.Hash, starts []time.Time) error {
	if err := r.access.requireAdmin(caller); err != nil {
		return err
	}
	if len(types) != len(hashes) || len(types) != len(starts) {
		return domain.InvalidInput("array length mismatch")
	}
	for i := range types {
		if !types[i].Valid() {
			return domain.InvalidInput("invalid market type")
		}
	}
	for i := range types {
		if !starts[i].After(tx.now) {
			continue
		}
		r.create(tx, hashes[i], starts[i], []domain.Market{{Index: 0, Type: types[i]}})
	}
	return nil
}

func (r *EventRegistry) addMarkets(tx *txn, caller common.Address, eventID uint64,
	types []domain.MarketType, data [][]byte) error {
	if err := r.access.requireAdmin(caller); err != nil {
		return err
	}
	ev, ok := r.events.get(eventID)
	if !ok {
		return domain.NotFound("event does not exist")
	}
	if ev.State != domain.EventStateOpen {
		return domain.StateError("event is not open")
	}
	markets, err := buildMarkets(len(ev.Markets), types, data)
	if err != nil {
		return err
	}
	var snap domain.Event
	r.events.update(tx, eventID, func(e *domain.Event) {
		e.Markets = append(e.Markets[:len(e.Markets):len(e.Markets)], markets...)
		snap = e.Clone()
	})
	tx.emit(domain.LogEvent{Kind: domain.LogNewMarkets, Event: &snap})
	return nil
}

// cancel moves every open event among ids to CANCELED. Unknown and terminal
// ids are skipped.
func (r *EventRegistry) cancel(tx *txn, caller common.Address, ids []uint64) error {
	if err := r.access.requireAdmin(caller); err != nil {
		return err
	}
	for _, id := range ids {
		ev, ok := r.events.get(id)
		if !ok || ev.State != domain.EventStateOpen {
			continue
		}
		var snap domain.Event
		r.events.update(tx, id, func(e *domain.Event) {
			e.State = domain.EventStateCanceled
			snap = e.Clone()
		})
		tx.emit(domain.LogEvent{Kind: domain.LogCanceledEvent, Event: &snap})
	}
	return nil
}

// setResult records one result attempt for an event. indexes and outcomes are
// parallel.
func (r *EventRegistry) setResult(tx *txn, caller common.Address, eventID uint64,
	indexes []int, outcomes []domain.Outcome) error {
	if err := r.access.requireAdmin(caller); err != nil {
		return err
	}
	if len(indexes) != len(outcomes) {
		return domain.InvalidInput("array length mismatch")
	}
	r.attempt(tx, eventID, indexes, outcomes)
	return nil
}

// setResultBulk records one attempt per event for its first market.
func (r *EventRegistry) setResultBulk(tx *txn, caller common.Address, eventIDs []uint64,
	outcomes []domain.Outcome) error {
	if err := r.access.requireAdmin(caller); err != nil {
		return err
	}
	if len(eventIDs) != len(outcomes) {
		return domain.InvalidInput("array length mismatch")
	}
	for i, id := range eventIDs {
		r.attempt(tx, id, []int{0}, []domain.Outcome{outcomes[i]})
	}
	return nil
}

// attempt applies the escalation policy. It is a no-op for unknown, terminal
// or not yet started events. Otherwise the attempt counter increases; at the
// ceiling every market is forced to CANCELED, below it a fully valid
// submission closes the event and an invalid one only counts.
func (r *EventRegistry) attempt(tx *txn, eventID uint64, indexes []int, outcomes []domain.Outcome) {
	ev, ok := r.events.get(eventID)
	if !ok || ev.State.Terminal() || !ev.Started(tx.now) {
		return
	}

	valid := len(indexes) > 0
	for i, idx := range indexes {
		if idx < 0 || idx >= len(ev.Markets) || !ev.Markets[idx].Type.ValidResult(outcomes[i]) {
			valid = false
			break
		}
	}

	var snap domain.Event
	forced := false
	r.events.update(tx, eventID, func(e *domain.Event) {
		e.ResultAttempts++
		switch {
		case e.ResultAttempts >= r.maxAttempts:
			forced = true
			e.State = domain.EventStateClosed
			for i := range e.Markets {
				e.Markets[i].Outcome = domain.OutcomeCanceled
			}
		case valid:
			e.State = domain.EventStateClosed
			for i, idx := range indexes {
				e.Markets[idx].Outcome = outcomes[i]
			}
			// Markets left without a result settle as canceled.
			for i := range e.Markets {
				if e.Markets[i].Outcome == domain.OutcomeNull {
					e.Markets[i].Outcome = domain.OutcomeCanceled
				}
			}
		}
		snap = e.Clone()
	})

	kind := domain.LogResultAttempt
	if snap.State == domain.EventStateClosed {
		kind = domain.LogResultSet
	}
	tx.emit(domain.LogEvent{Kind: kind, Event: &snap})
	if forced {
		tx.escalated = append(tx.escalated, eventID)
	}
}
