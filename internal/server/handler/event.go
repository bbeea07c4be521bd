package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/contenthash"
	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
)

// EventHandler serves event creation, resolution and listing.
type EventHandler struct {
	base
	events domain.EventStore
	bets   domain.BetStore
}

// NewEventHandler creates an EventHandler. The stores back the list
// endpoints and may be nil when no read model is configured.
func NewEventHandler(x Exchange, events domain.EventStore, bets domain.BetStore, units Units, logger *slog.Logger) *EventHandler {
	return &EventHandler{base: base{x: x, units: units, logger: logger}, events: events, bets: bets}
}

type marketRequest struct {
	Type string `json:"type" validate:"required"`
	Data string `json:"data" validate:"max=10"`
}

type addEventRequest struct {
	ContentHash    string          `json:"content_hash" validate:"required_without=CID"`
	CID            string          `json:"cid"`
	TimestampStart int64           `json:"timestamp_start" validate:"required,gt=0"`
	Markets        []marketRequest `json:"markets" validate:"required,min=1,dive"`
}

type bulkEventRequest struct {
	Events []struct {
		ContentHash    string `json:"content_hash" validate:"required_without=CID"`
		CID            string `json:"cid"`
		TimestampStart int64  `json:"timestamp_start" validate:"required,gt=0"`
		MarketType     string `json:"market_type" validate:"required"`
	} `json:"events" validate:"required,min=1,dive"`
}

type addMarketsRequest struct {
	Markets []marketRequest `json:"markets" validate:"required,min=1,dive"`
}

type cancelEventsRequest struct {
	EventIDs []uint64 `json:"event_ids" validate:"required,min=1,dive,gt=0"`
}

type setResultRequest struct {
	Results []struct {
		MarketIndex int    `json:"market_index" validate:"gte=0"`
		Outcome     string `json:"outcome" validate:"required"`
	} `json:"results" validate:"required,min=1,dive"`
}

type setResultBulkRequest struct {
	Results []struct {
		EventID uint64 `json:"event_id" validate:"required,gt=0"`
		Outcome string `json:"outcome" validate:"required"`
	} `json:"results" validate:"required,min=1,dive"`
}

func resolveHash(hexHash, cid string) (common.Hash, error) {
	if cid != "" {
		h, err := contenthash.FromCID(cid)
		if err != nil {
			return common.Hash{}, domain.InvalidInput("cid is not a sha256 multihash")
		}
		return h, nil
	}
	raw := strings.TrimPrefix(hexHash, "0x")
	if len(raw) != 64 {
		return common.Hash{}, domain.InvalidInput("content_hash must be 32 bytes of hex")
	}
	return common.HexToHash(raw), nil
}

func parseMarkets(in []marketRequest) ([]domain.MarketType, [][]byte, error) {
	types := make([]domain.MarketType, len(in))
	data := make([][]byte, len(in))
	for i, m := range in {
		t, err := parseMarketType(m.Type)
		if err != nil {
			return nil, nil, err
		}
		types[i] = t
		data[i] = []byte(m.Data)
	}
	return types, data, nil
}

// Add handles POST /api/events.
func (h *EventHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addEventRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	hash, err := resolveHash(req.ContentHash, req.CID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	types, data, err := parseMarkets(req.Markets)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{
		Op:            exchange.OpAddEvent,
		ContentHashes: []common.Hash{hash},
		Starts:        []time.Time{time.Unix(req.TimestampStart, 0).UTC()},
		MarketTypes:   types,
		MarketData:    data,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, viewReceipt(receipt))
}

// AddBulk handles POST /api/events/bulk. Events starting in the past are
// skipped; the receipt lists only the ids created.
func (h *EventHandler) AddBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkEventRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	cmd := exchange.Command{Op: exchange.OpAddEventBulk}
	for _, e := range req.Events {
		hash, err := resolveHash(e.ContentHash, e.CID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		t, err := parseMarketType(e.MarketType)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		cmd.ContentHashes = append(cmd.ContentHashes, hash)
		cmd.Starts = append(cmd.Starts, time.Unix(e.TimestampStart, 0).UTC())
		cmd.MarketTypes = append(cmd.MarketTypes, t)
	}
	receipt, ok := h.exec(w, r, cmd)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, viewReceipt(receipt))
}

// AddMarkets handles POST /api/events/{id}/markets.
func (h *EventHandler) AddMarkets(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req addMarketsRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	types, data, err := parseMarkets(req.Markets)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpAddMarkets, ID: id, MarketTypes: types, MarketData: data})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// Cancel handles POST /api/events/cancel.
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelEventsRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpCancelEvent, IDs: req.EventIDs})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// SetResult handles POST /api/events/{id}/result.
func (h *EventHandler) SetResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req setResultRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	cmd := exchange.Command{Op: exchange.OpSetEventResult, ID: id}
	for _, res := range req.Results {
		o, err := parseOutcome(res.Outcome)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		cmd.MarketIndexes = append(cmd.MarketIndexes, res.MarketIndex)
		cmd.Outcomes = append(cmd.Outcomes, o)
	}
	receipt, ok := h.exec(w, r, cmd)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":       receipt.Seq,
		"escalated": len(receipt.Escalated) > 0,
	})
}

// SetResultBulk handles POST /api/events/result.
func (h *EventHandler) SetResultBulk(w http.ResponseWriter, r *http.Request) {
	var req setResultBulkRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	cmd := exchange.Command{Op: exchange.OpSetEventResultBulk}
	for _, res := range req.Results {
		o, err := parseOutcome(res.Outcome)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		cmd.IDs = append(cmd.IDs, res.EventID)
		cmd.Outcomes = append(cmd.Outcomes, o)
	}
	receipt, ok := h.exec(w, r, cmd)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":       receipt.Seq,
		"escalated": receipt.Escalated,
	})
}

// Get handles GET /api/events/{id} from live exchange state.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.x.Event(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEvent(e))
}

// List handles GET /api/events?state=open from the read model.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "read model not configured")
		return
	}
	f := domain.EventFilter{ListOpts: parseListOpts(r)}
	if s := r.URL.Query().Get("state"); s != "" {
		var st domain.EventState
		switch s {
		case "open":
			st = domain.EventStateOpen
		case "closed":
			st = domain.EventStateClosed
		case "canceled":
			st = domain.EventStateCanceled
		default:
			writeError(w, http.StatusBadRequest, "state must be open, closed or canceled")
			return
		}
		f.State = &st
	}
	events, err := h.events.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(events, viewEvent))
}

// Bets handles GET /api/events/{id}/bets from the read model.
func (h *EventHandler) Bets(w http.ResponseWriter, r *http.Request) {
	if h.bets == nil {
		writeError(w, http.StatusServiceUnavailable, "read model not configured")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bets, err := h.bets.ListByEvent(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(bets, h.units.viewBet))
}
