package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
)

// snapshotPartSize is the multipart upload part size for snapshots.
const snapshotPartSize = 8 << 20

// Snapshotter copies exchange state.
type Snapshotter interface {
	Snapshot() exchange.State
}

// ArchiveService uploads periodic JSON snapshots of the whole exchange.
type ArchiveService struct {
	src    Snapshotter
	blobs  BlobStore
	audit  domain.AuditStore
	prefix string
	logger *slog.Logger
}

func NewArchiveService(src Snapshotter, blobs BlobStore, audit domain.AuditStore, prefix string, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		src:    src,
		blobs:  blobs,
		audit:  audit,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.With(slog.String("component", "archive_service")),
	}
}

// snapshotPath lays snapshots out by day; names sort chronologically.
func (s *ArchiveService) snapshotPath(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, at.Format("2006/01/02"), at.Format("20060102T150405Z"))
}

// Archive uploads one snapshot and returns its path.
func (s *ArchiveService) Archive(ctx context.Context) (string, error) {
	state := s.src.Snapshot()
	body, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("archive_service: marshal snapshot: %w", err)
	}

	path := s.snapshotPath(state.TakenAt)
	if err := s.blobs.PutMultipart(ctx, path, bytes.NewReader(body), snapshotPartSize); err != nil {
		return "", fmt.Errorf("archive_service: upload %s: %w", path, err)
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, domain.AuditEntry{
			Actor: state.Owner,
			Event: "snapshot_archived",
			Detail: map[string]any{
				"path":      path,
				"bytes":     len(body),
				"events":    len(state.Events),
				"offers":    len(state.Offers),
				"bets":      len(state.Bets),
				"positions": len(state.Positions),
				"held":      state.Held,
			},
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.WarnContext(ctx, "archive_service: audit log failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "archive_service: snapshot uploaded",
		slog.String("path", path),
		slog.Int("bytes", len(body)),
	)
	return path, nil
}

// Latest returns the path of the newest snapshot.
func (s *ArchiveService) Latest(ctx context.Context) (string, error) {
	infos, err := s.blobs.List(ctx, s.prefix+"/")
	if err != nil {
		return "", fmt.Errorf("archive_service: list: %w", err)
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".json") {
			paths = append(paths, info.Path)
		}
	}
	if len(paths) == 0 {
		return "", domain.NotFound("no snapshot archived")
	}
	return slices.Max(paths), nil
}

// Run archives every interval until ctx is cancelled. A failed upload is
// logged and retried on the next tick.
func (s *ArchiveService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Archive(ctx); err != nil {
				s.logger.ErrorContext(ctx, "archive_service: archive failed", slog.String("error", err.Error()))
			}
		}
	}
}
