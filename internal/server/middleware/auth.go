package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/crypto"
)

// Request signature headers.
const (
	HeaderAddress   = "X-Address"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// maxSignedBody bounds the body read for signature verification.
const maxSignedBody = 1 << 20

type callerKey struct{}

// callerTag lets the logging middleware, which wraps auth, see the caller.
type callerTag struct {
	set  bool
	addr string
}

type callerTagKey struct{}

func withCallerTag(ctx context.Context, t *callerTag) context.Context {
	return context.WithValue(ctx, callerTagKey{}, t)
}

// Caller returns the address a signed request was verified for.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller returns ctx carrying addr as the verified caller.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// SignatureAuth verifies an EIP-191 personal signature over the request
// method, path, timestamp and body digest, and stores the signer in the
// request context. Timestamps further than maxSkew from now are rejected.
func SignatureAuth(maxSkew time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, err := verify(r, maxSkew, now())
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}
			if t, ok := r.Context().Value(callerTagKey{}).(*callerTag); ok {
				t.set, t.addr = true, addr.Hex()
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}

func verify(r *http.Request, maxSkew time.Duration, now time.Time) (common.Address, error) {
	claimed := strings.TrimSpace(r.Header.Get(HeaderAddress))
	tsRaw := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	sig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if claimed == "" || tsRaw == "" || sig == "" {
		return common.Address{}, errors.New("missing signature headers")
	}
	if !common.IsHexAddress(claimed) {
		return common.Address{}, errors.New("malformed address")
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return common.Address{}, errors.New("malformed timestamp")
	}
	if skew := now.Sub(time.Unix(ts, 0)).Abs(); skew > maxSkew {
		return common.Address{}, errors.New("timestamp outside allowed window")
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
		if err != nil {
			return common.Address{}, errors.New("unreadable body")
		}
		if len(body) > maxSignedBody {
			return common.Address{}, errors.New("body too large")
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	signer, err := crypto.RecoverPersonal(crypto.RequestMessage(r.Method, r.URL.Path, ts, body), sig)
	if err != nil {
		return common.Address{}, errors.New("invalid signature")
	}
	if signer != common.HexToAddress(claimed) {
		return common.Address{}, errors.New("signature does not match address")
	}
	return signer, nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
