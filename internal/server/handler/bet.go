package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
)

// BetHandler serves bets and the positions inside them.
type BetHandler struct {
	base
	positions domain.PositionStore
}

func NewBetHandler(x Exchange, positions domain.PositionStore, units Units, logger *slog.Logger) *BetHandler {
	return &BetHandler{base: base{x: x, units: units, logger: logger}, positions: positions}
}

// Claim handles POST /api/bets/{id}/claim.
func (h *BetHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpClaimBetEarnings, ID: id})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// Get handles GET /api/bets/{id}.
func (h *BetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.x.Bet(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.units.viewBet(b))
}

// UpdatePosition handles PATCH /api/positions/{id}. A zero price takes the
// position off the resale market.
func (h *BetHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req priceRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := h.units.Parse("price", req.Price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpUpdatePosition, ID: id, Price: price})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// GetPosition handles GET /api/positions/{id}.
func (h *BetHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.x.Position(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.units.viewPosition(p))
}

// ListPositions handles GET /api/positions?owner= from the read model.
func (h *BetHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		writeError(w, http.StatusServiceUnavailable, "read model not configured")
		return
	}
	owner, err := parseAddress("owner", r.URL.Query().Get("owner"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ps, err := h.positions.ListByOwner(r.Context(), owner, parseListOpts(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(ps, h.units.viewPosition))
}
