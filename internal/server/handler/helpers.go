package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
	"github.com/alanyoungcy/socialbet/internal/server/middleware"
)

const maxBody = 1 << 20

var validate = validator.New()

// writeJSON marshals v as JSON and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{domain.ErrPermissionDenied, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrState, http.StatusConflict},
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
	{domain.ErrInsufficientAllowance, http.StatusPaymentRequired},
	{domain.ErrReentrant, http.StatusConflict},
	{exchange.ErrHalted, http.StatusServiceUnavailable},
}

// writeFailure maps an operation error to a status. Exchange errors carry
// their kind and reason to the client; anything else is logged and hidden.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	for _, k := range statusByKind {
		if errors.Is(err, k.kind) {
			writeJSON(w, k.status, errorBody{Error: k.kind.Error(), Reason: domain.Reason(err)})
			return
		}
	}
	logger.ErrorContext(r.Context(), "handler: request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decode reads a JSON body into v and validates it.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.InvalidInput("malformed JSON body: " + err.Error())
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return domain.InvalidInput(fmt.Sprintf("field %s failed %s", f.Field(), f.Tag()))
		}
		return domain.InvalidInput(err.Error())
	}
	return nil
}

// parseListOpts reads limit (default 50, max 500) and offset.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, 500)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

func pathID(r *http.Request, name string) (uint64, error) {
	return parseID(name, r.PathValue(name))
}

func parseID(field, s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, domain.InvalidInput(field + " must be a positive integer")
	}
	return id, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, domain.InvalidInput(field + " is not an address")
	}
	return common.HexToAddress(s), nil
}

func parseMarketType(s string) (domain.MarketType, error) {
	for t := domain.MarketType(0); t < 8; t++ {
		if t.Valid() && strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return 0, domain.InvalidInput(fmt.Sprintf("unknown market type %q", s))
}

func parseOutcome(s string) (domain.Outcome, error) {
	for o := domain.OutcomeHome; o <= domain.OutcomeUnder; o++ {
		if strings.EqualFold(o.String(), s) {
			return o, nil
		}
	}
	return 0, domain.InvalidInput(fmt.Sprintf("unknown outcome %q", s))
}

// Exchange is what the handlers need from the exchange service.
type Exchange interface {
	Execute(ctx context.Context, cmd exchange.Command) (exchange.Receipt, error)
	Params() exchange.Params
	IsAdmin(addr common.Address) bool
	BalanceOf(addr common.Address) uint64
	Event(id uint64) (domain.Event, error)
	Offer(id uint64) (domain.Offer, error)
	Bet(id uint64) (domain.Bet, error)
	Position(id uint64) (domain.Position, error)
}

// base holds what every exchange handler shares.
type base struct {
	x      Exchange
	units  Units
	logger *slog.Logger
}

func callerOf(r *http.Request) (common.Address, bool) {
	return middleware.Caller(r.Context())
}

// exec runs cmd as the verified caller. On failure it writes the response
// and returns false.
func (b base) exec(w http.ResponseWriter, r *http.Request, cmd exchange.Command) (exchange.Receipt, bool) {
	caller, ok := callerOf(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "request is not signed")
		return exchange.Receipt{}, false
	}
	cmd.Caller = caller
	receipt, err := b.x.Execute(r.Context(), cmd)
	if err != nil {
		writeFailure(w, r, b.logger, err)
		return receipt, false
	}
	return receipt, true
}

func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeFailure(w, r, b.logger, err)
}

// receiptView is returned by every write.
type receiptView struct {
	Seq uint64   `json:"seq"`
	IDs []uint64 `json:"ids,omitempty"`
}

func viewReceipt(r exchange.Receipt) receiptView {
	return receiptView{Seq: r.Seq, IDs: r.IDs}
}
