package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/socialbet/internal/exchange"
)

// AdminHandler manages the admin set.
type AdminHandler struct{ base }

func NewAdminHandler(x Exchange, units Units, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{base{x: x, units: units, logger: logger}}
}

type addAdminRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

// Add handles POST /api/admins.
func (h *AdminHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addAdminRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	addr, _ := parseAddress("address", req.Address)
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpAddAdmin, Account: addr})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// Remove handles DELETE /api/admins/{address}.
func (h *AdminHandler) Remove(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, ok := h.exec(w, r, exchange.Command{Op: exchange.OpRemoveAdmin, Account: addr})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

// Get handles GET /api/admins/{address}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":  addr.Hex(),
		"is_admin": h.x.IsAdmin(addr),
		"is_owner": addr == h.x.Params().Owner,
	})
}
