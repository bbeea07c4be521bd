package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/contenthash"
	"github.com/alanyoungcy/socialbet/internal/domain"
)

// MaxMetadataSize bounds an uploaded metadata document.
const MaxMetadataSize = 64 << 10

// BlobStore reads and writes objects.
type BlobStore interface {
	domain.BlobReader
	domain.BlobWriter
}

// MetadataService stores event metadata documents under their content
// identifier, so an event's ContentHash is enough to find its document.
type MetadataService struct {
	blobs  BlobStore
	prefix string
	logger *slog.Logger
}

func NewMetadataService(blobs BlobStore, logger *slog.Logger) *MetadataService {
	return &MetadataService{
		blobs:  blobs,
		prefix: "metadata",
		logger: logger.With(slog.String("component", "metadata_service")),
	}
}

func (s *MetadataService) path(cid string) string {
	return s.prefix + "/" + cid + ".json"
}

// Put stores doc and returns the pointer to record on an event and its CID.
// Storing a document twice is a no-op.
func (s *MetadataService) Put(ctx context.Context, doc []byte) (common.Hash, string, error) {
	if len(doc) == 0 || len(doc) > MaxMetadataSize {
		return common.Hash{}, "", domain.InvalidInput(fmt.Sprintf("metadata must be 1..%d bytes", MaxMetadataSize))
	}
	if !json.Valid(doc) {
		return common.Hash{}, "", domain.InvalidInput("metadata is not valid JSON")
	}

	hash, cid := contenthash.Sum(doc)
	path := s.path(cid)
	exists, err := s.blobs.Exists(ctx, path)
	if err != nil {
		return common.Hash{}, "", fmt.Errorf("metadata_service: exists %s: %w", cid, err)
	}
	if exists {
		return hash, cid, nil
	}
	if err := s.blobs.Put(ctx, path, bytes.NewReader(doc), "application/json"); err != nil {
		return common.Hash{}, "", fmt.Errorf("metadata_service: put %s: %w", cid, err)
	}

	s.logger.InfoContext(ctx, "metadata_service: document stored",
		slog.String("cid", cid),
		slog.Int("bytes", len(doc)),
	)
	return hash, cid, nil
}

// Get returns the document a content pointer addresses.
func (s *MetadataService) Get(ctx context.Context, hash common.Hash) ([]byte, error) {
	cid := contenthash.ToCID(hash)
	rc, err := s.blobs.Get(ctx, s.path(cid))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("metadata document does not exist")
		}
		return nil, fmt.Errorf("metadata_service: get %s: %w", cid, err)
	}
	defer rc.Close()

	doc, err := io.ReadAll(io.LimitReader(rc, MaxMetadataSize+1))
	if err != nil {
		return nil, fmt.Errorf("metadata_service: read %s: %w", cid, err)
	}
	if got, _ := contenthash.Sum(doc); got != hash {
		return nil, fmt.Errorf("metadata_service: %s content does not match its address", cid)
	}
	return doc, nil
}
