// Package notify alerts operators about exchange conditions that need a human:
// events force-closed at the result attempt ceiling, cancellations and
// infrastructure errors. Alerts fan out to every configured sender and can be
// filtered by kind.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Alert kinds.
const (
	KindResultEscalated = "result_escalated"
	KindEventCanceled   = "event_canceled"
	KindError           = "error"
)

// Sender delivers one alert over one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every sender. Only kinds in the allowed set
// are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	kinds   map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			allowed[k] = true
		}
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Notify sends an alert of the given kind. A filtered kind is a no-op.
func (n *Notifier) Notify(ctx context.Context, kind, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.kinds) > 0 && !n.kinds[kind] {
		n.logger.DebugContext(ctx, "alert filtered out", slog.String("kind", kind))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("kind", kind),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// ResultEscalated alerts that an event was canceled after its last allowed
// result attempt failed to settle it.
func (n *Notifier) ResultEscalated(ctx context.Context, eventID uint64, attempts int) error {
	return n.Notify(ctx, KindResultEscalated,
		fmt.Sprintf("Event %d escalated", eventID),
		fmt.Sprintf("Result attempts reached %d without a valid result; the event was canceled and all bets refund.", attempts),
	)
}

// EventCanceled alerts that an admin canceled an event.
func (n *Notifier) EventCanceled(ctx context.Context, eventID uint64) error {
	return n.Notify(ctx, KindEventCanceled,
		fmt.Sprintf("Event %d canceled", eventID),
		"Open offers on the event can no longer be bought; bets settle as refunds.",
	)
}

// Error alerts on an infrastructure failure.
func (n *Notifier) Error(ctx context.Context, where string, err error) error {
	return n.Notify(ctx, KindError, "Exchange error: "+where, err.Error())
}
