package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/metrics"
)

// CursorName identifies the indexer's row in the cursor store.
const CursorName = "postgres_projection"

// IndexerConfig tunes the stream consumer.
type IndexerConfig struct {
	Batch   int
	Block   time.Duration
	Backoff time.Duration
}

// Indexer consumes domain.EventStream and projects every event committed
// after its cursor. The cursor records the last command whose events were all
// projected; events of the command in progress at a crash are projected again
// on restart.
type Indexer struct {
	bus       domain.SignalBus
	projector *Projector
	cursors   domain.CursorStore
	cfg       IndexerConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger

	lastID  string
	done    uint64 // last fully projected sequence
	current uint64 // sequence of the command being projected
}

func NewIndexer(bus domain.SignalBus, projector *Projector, cursors domain.CursorStore,
	cfg IndexerConfig, m *metrics.Metrics, logger *slog.Logger) *Indexer {
	if cfg.Batch <= 0 {
		cfg.Batch = 256
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Indexer{
		bus:       bus,
		projector: projector,
		cursors:   cursors,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With(slog.String("component", "indexer")),
		lastID:    "0",
	}
}

// Run consumes the stream until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	done, err := ix.cursors.Get(ctx, CursorName)
	if err != nil {
		return fmt.Errorf("indexer: load cursor: %w", err)
	}
	ix.done, ix.current = done, done
	ix.logger.InfoContext(ctx, "indexer starting", slog.Uint64("cursor", done))

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := ix.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ix.logger.ErrorContext(ctx, "indexer poll failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(ix.cfg.Backoff):
			}
			continue
		}
		if n > 0 {
			ix.logger.DebugContext(ctx, "projected events", slog.Int("count", n), slog.Uint64("cursor", ix.done))
		}
	}
}

// Poll reads one batch and projects it, returning the number of events
// applied. A failed event stops the batch; it is read again on the next
// poll.
func (ix *Indexer) Poll(ctx context.Context) (int, error) {
	msgs, err := ix.bus.StreamRead(ctx, domain.EventStream, ix.lastID, ix.cfg.Batch, ix.cfg.Block)
	if err != nil {
		return 0, fmt.Errorf("indexer: read stream: %w", err)
	}

	applied := 0
	for _, msg := range msgs {
		var e domain.LogEvent
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			ix.logger.WarnContext(ctx, "skipping undecodable stream entry",
				slog.String("id", msg.ID),
				slog.String("error", err.Error()),
			)
			ix.lastID = msg.ID
			continue
		}
		ok, err := ix.apply(ctx, e)
		if err != nil {
			return applied, err
		}
		ix.lastID = msg.ID
		if ok {
			applied++
		}
	}
	return applied, nil
}

func (ix *Indexer) apply(ctx context.Context, e domain.LogEvent) (bool, error) {
	// Seq 0 events come from an exchange without a journal; nothing orders
	// them, so they are projected unconditionally.
	if e.Seq != 0 && e.Seq <= ix.done {
		return false, nil
	}
	if e.Seq > ix.current {
		// The previous command is complete once a later one appears.
		if err := ix.commit(ctx, ix.current); err != nil {
			return false, err
		}
		ix.current = e.Seq
	}
	if err := ix.projector.Project(ctx, e); err != nil {
		return false, err
	}
	return true, nil
}

func (ix *Indexer) commit(ctx context.Context, seq uint64) error {
	if seq <= ix.done {
		return nil
	}
	if err := ix.cursors.Set(ctx, CursorName, seq); err != nil {
		return fmt.Errorf("indexer: save cursor %d: %w", seq, err)
	}
	ix.done = seq
	if ix.metrics != nil {
		ix.metrics.Projected.Set(float64(seq))
	}
	return nil
}

// Cursor returns the last fully projected sequence.
func (ix *Indexer) Cursor() uint64 { return ix.done }
