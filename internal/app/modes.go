package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/socialbet/internal/config"
	"github.com/alanyoungcy/socialbet/internal/crypto"
	"github.com/alanyoungcy/socialbet/internal/custodian"
	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
	"github.com/alanyoungcy/socialbet/internal/journal"
	"github.com/alanyoungcy/socialbet/internal/pipeline"
	"github.com/alanyoungcy/socialbet/internal/server"
	"github.com/alanyoungcy/socialbet/internal/server/handler"
	"github.com/alanyoungcy/socialbet/internal/server/ws"
	"github.com/alanyoungcy/socialbet/internal/service"
)

const (
	// writerLockKey guards the journal: exactly one process may execute
	// commands against it.
	writerLockKey = "exchange:writer"
	writerLockTTL = 30 * time.Second

	shutdownTimeout = 5 * time.Second
)

// ExchangeMode hosts the exchange core and its HTTP API.
func (a *App) ExchangeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting exchange mode")
	g, ctx := errgroup.WithContext(ctx)
	if err := a.runExchange(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// IndexerMode projects the event stream into postgres. When the server is
// enabled it exposes only /metrics and /healthz.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting indexer mode")
	g, ctx := errgroup.WithContext(ctx)
	a.runIndexer(ctx, g, deps)

	if a.cfg.Server.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("GET /healthz", handler.NewHealthHandler(deps.healthChecks(), a.logger).HealthCheck)
		a.serve(ctx, g, &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	return g.Wait()
}

// FullMode runs the exchange and the indexer in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	if err := a.runExchange(ctx, g, deps); err != nil {
		return err
	}
	a.runIndexer(ctx, g, deps)
	return g.Wait()
}

// runExchange takes the writer lock, rebuilds the exchange from its journal
// and starts the API, the WebSocket hub and the snapshot archiver.
func (a *App) runExchange(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	lock, err := deps.Locks.Acquire(ctx, writerLockKey, writerLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another exchange process holds %s: %w", writerLockKey, err)
		}
		return fmt.Errorf("app: acquire writer lock: %w", err)
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := lock.Release(ctx); err != nil {
			a.logger.Warn("release writer lock", slog.String("error", err.Error()))
		}
	})
	g.Go(func() error { return keepLock(ctx, lock, writerLockTTL) })

	signer, err := loadSigner(a.cfg)
	if err != nil {
		return err
	}
	params, err := exchangeParams(a.cfg, signer)
	if err != nil {
		return err
	}
	token, err := buildCustodian(ctx, a.cfg, signer, params.Owner, a.logger)
	if err != nil {
		return err
	}

	j, err := journal.Open(a.cfg.Journal.Dir, a.cfg.Journal.Sync, a.logger)
	if err != nil {
		return fmt.Errorf("app: open journal: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := j.Close(); err != nil {
			a.logger.Warn("close journal", slog.String("error", err.Error()))
		}
	})

	x := exchange.New(params, token, nil, j, a.logger)
	if _, err := j.Replay(ctx, x); err != nil {
		return fmt.Errorf("app: replay journal: %w", err)
	}
	deps.Metrics.JournalSeq.Set(float64(j.Last()))
	deps.Metrics.Held.Set(float64(x.Held()))

	svc := service.NewExchangeService(x, a.logger).
		WithBus(deps.Bus).
		WithAudit(deps.Stores.Audit).
		WithAlerts(deps.Notifier).
		WithMetrics(deps.Metrics)
	if deps.Topic != nil {
		svc = svc.WithTopic(deps.Topic)
	}

	a.logger.InfoContext(ctx, "exchange ready",
		slog.String("owner", params.Owner.Hex()),
		slog.String("funding", string(params.Funding)),
		slog.Uint64("journal_seq", j.Last()),
	)

	if a.cfg.Archive.Enabled && deps.Blobs != nil {
		archiver := service.NewArchiveService(svc, deps.Blobs, deps.Stores.Audit, a.cfg.Archive.Prefix, a.logger)
		g.Go(func() error { return archiver.Run(ctx, a.cfg.Archive.Interval.Duration) })
	}

	if !a.cfg.Server.Enabled {
		return nil
	}

	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	checks := deps.healthChecks()
	checks["exchange"] = svc.Health

	var meta handler.Metadata
	if deps.Blobs != nil {
		meta = service.NewMetadataService(deps.Blobs, a.logger)
	}
	units := handler.NewUnits(a.cfg.Exchange.Decimals)
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AuthMaxSkew: a.cfg.Server.AuthMaxSkew.Duration,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Admins:   handler.NewAdminHandler(svc, units, a.logger),
		Events:   handler.NewEventHandler(svc, deps.Stores.Events, deps.Stores.Bets, units, a.logger),
		Offers:   handler.NewOfferHandler(svc, deps.Stores.Offers, units, a.logger),
		Bets:     handler.NewBetHandler(svc, deps.Stores.Positions, units, a.logger),
		Balances: handler.NewBalanceHandler(svc, deps.Stores.Balances, units, a.logger),
		Metadata: handler.NewMetadataHandler(svc, meta, a.logger),
		Metrics:  promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	}, deps.RateLimiter, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}

// runIndexer starts the postgres projection of the event stream.
func (a *App) runIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	projector := pipeline.NewProjector(pipeline.Stores{
		Events:    deps.Stores.Events,
		Offers:    deps.Stores.Offers,
		Bets:      deps.Stores.Bets,
		Positions: deps.Stores.Positions,
		Balances:  deps.Stores.Balances,
		Audit:     deps.Stores.Audit,
	}, a.logger)
	ix := pipeline.NewIndexer(deps.Bus, projector, deps.Stores.Cursors, pipeline.IndexerConfig{}, deps.Metrics, a.logger)
	g.Go(func() error { return ix.Run(ctx) })
}

func (a *App) serve(ctx context.Context, g *errgroup.Group, srv *http.Server) {
	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// keepLock refreshes lock every third of ttl until ctx ends. Losing the lock
// is fatal: another process may already be writing the journal.
func keepLock(ctx context.Context, lock domain.Lock, ttl time.Duration) error {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := lock.Refresh(ctx, ttl); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("app: writer lock lost: %w", err)
			}
		}
	}
}

// loadSigner returns the exchange key, or nil when none is configured and
// none is needed.
func loadSigner(cfg *config.Config) (*crypto.Signer, error) {
	if cfg.Wallet.PrivateKey == "" && cfg.Wallet.EncryptedKeyPath == "" {
		if cfg.Custodian.Kind == "erc20" || cfg.Exchange.Owner == "" {
			return nil, errors.New("app: an exchange key is required")
		}
		return nil, nil
	}
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: load exchange key: %w", err)
	}
	return signer, nil
}

// exchangeParams maps config onto exchange parameters. The owner defaults to
// the exchange key's address.
func exchangeParams(cfg *config.Config, signer *crypto.Signer) (exchange.Params, error) {
	p := exchange.Params{
		MinAmount:         cfg.Exchange.MinAmount,
		MinPrice:          cfg.Exchange.MinPrice,
		FeeBps:            cfg.Exchange.FeeBps,
		MaxResultAttempts: cfg.Exchange.MaxResultAttempts,
		Funding:           exchange.Funding(cfg.Exchange.Funding),
	}
	switch {
	case cfg.Exchange.Owner != "":
		p.Owner = common.HexToAddress(cfg.Exchange.Owner)
	case signer != nil:
		p.Owner = signer.Address()
	default:
		return exchange.Params{}, errors.New("app: exchange owner is not configured")
	}
	if cfg.Exchange.FeeAccount != "" {
		p.FeeAccount = common.HexToAddress(cfg.Exchange.FeeAccount)
	}
	return p, nil
}

// buildCustodian returns the token the exchange holds funds in. The memory
// custodian's vault is the exchange key's address, or the owner without one.
func buildCustodian(ctx context.Context, cfg *config.Config, signer *crypto.Signer, owner common.Address,
	logger *slog.Logger) (domain.Custodian, error) {
	switch cfg.Custodian.Kind {
	case "erc20":
		token, err := custodian.DialERC20(ctx, cfg.Custodian.RPCURL, signer.PrivateKey(), custodian.ERC20Config{
			Token:          common.HexToAddress(cfg.Custodian.TokenAddress),
			ChainID:        cfg.Custodian.ChainID,
			PollInterval:   cfg.Custodian.PollInterval.Duration,
			ReceiptTimeout: cfg.Custodian.ReceiptTimeout.Duration,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return token, nil
	default:
		vault := owner
		if signer != nil {
			vault = signer.Address()
		}
		return custodian.NewMemory(vault), nil
	}
}
