package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
)

// OfferHandler serves the offer book.
type OfferHandler struct {
	base
	offers domain.OfferStore
}

func NewOfferHandler(x Exchange, offers domain.OfferStore, units Units, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{base: base{x: x, units: units, logger: logger}, offers: offers}
}

type openOfferRequest struct {
	EventID             uint64 `json:"event_id" validate:"required,gt=0"`
	MarketIndex         int    `json:"market_index" validate:"gte=0"`
	Amount              string `json:"amount" validate:"required"`
	Price               string `json:"price" validate:"required"`
	Outcome             string `json:"outcome" validate:"required"`
	TimestampExpiration int64  `json:"timestamp_expiration" validate:"required,gt=0"`
}

type priceRequest struct {
	Price string `json:"price" validate:"required"`
}

type buyOfferRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type buyOfferBulkRequest struct {
	OfferIDs []uint64 `json:"offer_ids" validate:"required,min=1,dive,gt=0"`
	Amount   string   `json:"amount" validate:"required"`
}

// Open handles POST /api/offers.
func (h *OfferHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openOfferRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := h.units.Parse("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := h.units.Parse("price", req.Price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	outcome, err := parseOutcome(req.Outcome)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{
		Op:          exchange.OpOpenOffer,
		ID:          req.EventID,
		MarketIndex: req.MarketIndex,
		Amount:      amount,
		Price:       price,
		Outcome:     outcome,
		Expiration:  time.Unix(req.TimestampExpiration, 0).UTC(),
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, viewReceipt(receipt))
}

// Update handles PATCH /api/offers/{id}.
func (h *OfferHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpUpdateOffer, ID: id, Price: price})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// Close handles DELETE /api/offers/{id}.
func (h *OfferHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpCloseOffer, ID: id})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// Buy handles POST /api/offers/{id}/buy.
func (h *OfferHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req buyOfferRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := h.units.Parse("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpBuyOffer, ID: id, Amount: amount})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, viewReceipt(receipt))
}

// BuyBulk handles POST /api/offers/buy. Offers are filled in the given order.
func (h *OfferHandler) BuyBulk(w http.ResponseWriter, r *http.Request) {
	var req buyOfferBulkRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := h.units.Parse("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpBuyOfferBulk, IDs: req.OfferIDs, Amount: amount})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, viewReceipt(receipt))
}

// Get handles GET /api/offers/{id} from live exchange state.
func (h *OfferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.x.Offer(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.units.viewOffer(o))
}

// List handles GET /api/offers?event_id=&owner=&open=true from the read model.
func (h *OfferHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.offers == nil {
		writeError(w, http.StatusServiceUnavailable, "read model not configured")
		return
	}
	q := r.URL.Query()
	f := domain.OfferFilter{ListOpts: parseListOpts(r), OpenOnly: q.Get("open") == "true"}
	if s := q.Get("event_id"); s != "" {
		id, err := parseID("event_id", s)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		f.EventID = id
	}
	if s := q.Get("owner"); s != "" {
		owner, err := parseAddress("owner", s)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		f.Owner = &owner
	}
	offers, err := h.offers.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(offers, h.units.viewOffer))
}
