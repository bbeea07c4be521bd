package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/contenthash"
	"github.com/alanyoungcy/socialbet/internal/domain"
)

// Metadata stores event documents by content hash.
type Metadata interface {
	Put(ctx context.Context, doc []byte) (common.Hash, string, error)
	Get(ctx context.Context, hash common.Hash) ([]byte, error)
}

// MetadataHandler serves event metadata documents.
type MetadataHandler struct {
	base
	meta Metadata
}

func NewMetadataHandler(x Exchange, meta Metadata, logger *slog.Logger) *MetadataHandler {
	return &MetadataHandler{base: base{x: x, logger: logger}, meta: meta}
}

// Put handles PUT /api/metadata. The body is the raw JSON document; the
// response carries the hash and CID to pass to POST /api/events.
func (h *MetadataHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h.meta == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata storage not configured")
		return
	}
	doc, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	hash, cid, err := h.meta.Put(r.Context(), doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"content_hash": hash.Hex(),
		"cid":          cid,
	})
}

// Get handles GET /api/metadata/{cid}.
func (h *MetadataHandler) Get(w http.ResponseWriter, r *http.Request) {
	hash, err := contenthash.FromCID(r.PathValue("cid"))
	if err != nil {
		h.fail(w, r, domain.InvalidInput("cid is not a sha256 multihash"))
		return
	}
	h.serve(w, r, hash)
}

// ForEvent handles GET /api/events/{id}/metadata.
func (h *MetadataHandler) ForEvent(w http.ResponseWriter, r *http.Request) {
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
	h.serve(w, r, e.ContentHash)
}

func (h *MetadataHandler) serve(w http.ResponseWriter, r *http.Request, hash common.Hash) {
	if h.meta == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata storage not configured")
		return
	}
	doc, err := h.meta.Get(r.Context(), hash)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", `"`+contenthash.ToCID(hash)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
