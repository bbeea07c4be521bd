// Package service wraps the exchange core with the side effects a committed
// operation has outside the process: bus fan-out, the Kafka topic, metrics,
// the audit log and operator alerts.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/exchange"
	"github.com/alanyoungcy/socialbet/internal/metrics"
)

// EventPublisher delivers committed events to an external topic.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.LogEvent) error
}

// Alerter notifies operators.
type Alerter interface {
	ResultEscalated(ctx context.Context, eventID uint64, attempts int) error
	EventCanceled(ctx context.Context, eventID uint64) error
	Error(ctx context.Context, where string, err error) error
}

// ExchangeService executes commands on the core and fans out their effects.
// Every sink is optional. A failed delivery is logged and counted but never
// fails the command: the command is already journaled.
type ExchangeService struct {
	x       *exchange.Exchange
	bus     domain.SignalBus
	topic   EventPublisher
	audit   domain.AuditStore
	alerts  Alerter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewExchangeService(x *exchange.Exchange, logger *slog.Logger) *ExchangeService {
	return &ExchangeService{x: x, logger: logger.With(slog.String("component", "exchange_service"))}
}

// WithBus publishes every event on its channel and appends it to
// domain.EventStream.
func (s *ExchangeService) WithBus(bus domain.SignalBus) *ExchangeService {
	s.bus = bus
	return s
}

func (s *ExchangeService) WithTopic(p EventPublisher) *ExchangeService {
	s.topic = p
	return s
}

func (s *ExchangeService) WithAudit(a domain.AuditStore) *ExchangeService {
	s.audit = a
	return s
}

func (s *ExchangeService) WithAlerts(a Alerter) *ExchangeService {
	s.alerts = a
	return s
}

func (s *ExchangeService) WithMetrics(m *metrics.Metrics) *ExchangeService {
	s.metrics = m
	return s
}

// Execute runs cmd and, once committed, delivers its events.
func (s *ExchangeService) Execute(ctx context.Context, cmd exchange.Command) (exchange.Receipt, error) {
	start := time.Now()
	r, err := s.x.Execute(ctx, cmd)
	s.metrics.ObserveOp(cmd.Op.String(), time.Since(start), err)

	if err != nil {
		s.auditLog(ctx, 0, cmd, err)
		if errors.Is(err, exchange.ErrHalted) && s.alerts != nil {
			if aerr := s.alerts.Error(ctx, "journal", err); aerr != nil {
				s.logger.WarnContext(ctx, "exchange_service: alert failed", slog.String("error", aerr.Error()))
			}
		}
		return r, err
	}

	s.deliver(ctx, r)
	s.auditLog(ctx, r.Seq, cmd, nil)
	s.alert(ctx, r)

	s.logger.DebugContext(ctx, "exchange_service: command committed",
		slog.String("op", cmd.Op.String()),
		slog.String("caller", cmd.Caller.Hex()),
		slog.Uint64("seq", r.Seq),
		slog.Int("events", len(r.Events)),
	)
	return r, nil
}

func (s *ExchangeService) deliver(ctx context.Context, r exchange.Receipt) {
	if s.metrics != nil {
		s.metrics.ObserveEvents(r.Events)
		s.metrics.JournalSeq.Set(float64(r.Seq))
		s.metrics.Held.Set(float64(s.x.Held()))
	}

	if s.bus != nil {
		for _, e := range r.Events {
			payload, err := json.Marshal(e)
			if err != nil {
				s.logger.ErrorContext(ctx, "exchange_service: marshal event failed",
					slog.String("kind", string(e.Kind)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := s.bus.Publish(ctx, e.Channel(), payload); err != nil {
				s.metrics.FanoutFailed("pubsub")
				s.logger.WarnContext(ctx, "exchange_service: publish event failed",
					slog.String("kind", string(e.Kind)),
					slog.String("error", err.Error()),
				)
			}
			if err := s.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
				s.metrics.FanoutFailed("stream")
				s.logger.WarnContext(ctx, "exchange_service: stream append failed",
					slog.Uint64("seq", e.Seq),
					slog.String("kind", string(e.Kind)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if s.topic != nil {
		if err := s.topic.Publish(ctx, r.Events); err != nil {
			s.metrics.FanoutFailed("kafka")
			s.logger.WarnContext(ctx, "exchange_service: kafka publish failed",
				slog.Uint64("seq", r.Seq),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *ExchangeService) auditLog(ctx context.Context, seq uint64, cmd exchange.Command, cmdErr error) {
	if s.audit == nil {
		return
	}
	detail := commandDetail(cmd)
	event := cmd.Op.String()
	if cmdErr != nil {
		event += "_rejected"
		detail["error"] = cmdErr.Error()
	}
	if err := s.audit.Log(ctx, domain.AuditEntry{
		Seq:       seq,
		Actor:     cmd.Caller,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		s.metrics.FanoutFailed("audit")
		s.logger.WarnContext(ctx, "exchange_service: audit log failed",
			slog.String("op", cmd.Op.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ExchangeService) alert(ctx context.Context, r exchange.Receipt) {
	if s.alerts == nil {
		return
	}
	attempts := s.x.Params().MaxResultAttempts
	for _, id := range r.Escalated {
		if err := s.alerts.ResultEscalated(ctx, id, attempts); err != nil {
			s.logger.WarnContext(ctx, "exchange_service: alert failed", slog.String("error", err.Error()))
		}
	}
	for _, e := range r.Events {
		if e.Kind != domain.LogCanceledEvent || e.Event == nil {
			continue
		}
		if err := s.alerts.EventCanceled(ctx, e.Event.ID); err != nil {
			s.logger.WarnContext(ctx, "exchange_service: alert failed", slog.String("error", err.Error()))
		}
	}
}

// commandDetail keeps the arguments the operation actually reads.
func commandDetail(c exchange.Command) map[string]any {
	d := map[string]any{"op": c.Op.String()}
	switch c.Op {
	case exchange.OpAddAdmin, exchange.OpRemoveAdmin:
		d["account"] = c.Account.Hex()
	case exchange.OpAddEvent, exchange.OpAddEventBulk, exchange.OpAddMarkets:
		d["event_id"] = c.ID
		d["market_types"] = len(c.MarketTypes)
	case exchange.OpCancelEvent, exchange.OpSetEventResultBulk, exchange.OpBuyOfferBulk:
		d["ids"] = c.IDs
	case exchange.OpSetEventResult:
		d["event_id"] = c.ID
		d["markets"] = c.MarketIndexes
	case exchange.OpOpenOffer:
		d["event_id"] = c.ID
		d["market_index"] = c.MarketIndex
		d["outcome"] = c.Outcome.String()
		d["price"] = c.Price
	case exchange.OpUpdateOffer, exchange.OpUpdatePosition:
		d["id"] = c.ID
		d["price"] = c.Price
	default:
		d["id"] = c.ID
	}
	if c.Amount > 0 {
		d["amount"] = c.Amount
	}
	return d
}

// ---- reads ----

func (s *ExchangeService) Params() exchange.Params { return s.x.Params() }

func (s *ExchangeService) IsAdmin(addr common.Address) bool { return s.x.IsAdmin(addr) }

func (s *ExchangeService) BalanceOf(addr common.Address) uint64 { return s.x.BalanceOf(addr) }

func (s *ExchangeService) Event(id uint64) (domain.Event, error) { return s.x.Event(id) }

func (s *ExchangeService) Offer(id uint64) (domain.Offer, error) { return s.x.Offer(id) }

func (s *ExchangeService) Bet(id uint64) (domain.Bet, error) { return s.x.Bet(id) }

func (s *ExchangeService) Position(id uint64) (domain.Position, error) { return s.x.Position(id) }

// Snapshot copies the core state.
func (s *ExchangeService) Snapshot() exchange.State { return s.x.Snapshot() }

// Health fails once the core has stopped accepting writes.
func (s *ExchangeService) Health(context.Context) error {
	if err := s.x.Halted(); err != nil {
		return fmt.Errorf("exchange_service: %w", err)
	}
	return nil
}
