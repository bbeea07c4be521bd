package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
)

// BalanceHandler serves deposits, withdrawals and ledger balances.
type BalanceHandler struct {
	base
	balances domain.BalanceStore
}

func NewBalanceHandler(x Exchange, balances domain.BalanceStore, units Units, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{base: base{x: x, units: units, logger: logger}, balances: balances}
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

func (h *BalanceHandler) move(w http.ResponseWriter, r *http.Request, op exchange.Op) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := h.units.Parse("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cmd := exchange.Command{Op: op, Amount: amount}
	receipt, ok := h.exec(w, r, cmd)
	if !ok {
		return
	}
	caller, _ := callerOf(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":     receipt.Seq,
		"balance": h.units.Format(h.x.BalanceOf(caller)),
	})
}

// Deposit handles POST /api/deposit.
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, exchange.OpDeposit)
}

// Withdraw handles POST /api/withdraw.
func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, exchange.OpWithdraw)
}

// Get handles GET /api/balances/{address}.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr.Hex(),
		"balance": h.units.Format(h.x.BalanceOf(addr)),
	})
}

// History handles GET /api/balances/{address}/history from the read model.
func (h *BalanceHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		writeError(w, http.StatusServiceUnavailable, "read model not configured")
		return
	}
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	changes, err := h.balances.History(r.Context(), addr, parseListOpts(r))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(changes, h.units.viewChange))
}
