// Package notify delivers operator alerts over one or more channels.
// Notifications are dispatched to all registered senders (Telegram, Discord)
// and can be filtered by event type so operators receive only the alerts they
// care about.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// Event types emitted by the system. The notifier's allow-list filters on
// these names.
const (
	EventOpportunity = "opportunity"
	EventSteam       = "steam"
	EventExecution   = "execution"
	EventEscalation  = "escalation"
	EventReport      = "report"
	EventError       = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// ActionSender is a Sender that can attach a one-tap action to a message.
// Channels without inline actions fall back to plain Send.
type ActionSender interface {
	Sender
	// SendAction delivers a notification with an action button; pressing it
	// hands callbackData back to the operator bot.
	SendAction(ctx context.Context, title, message, buttonLabel, callbackData string) error
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event types; Notify only forwards messages whose event type is in
// the allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// WithBus mirrors every delivered notification onto the signal bus: a publish
// on "alerts:<event>" for live subscribers and an append to the "alerts"
// stream for history. Mirror failures are logged and never block delivery.
func (n *Notifier) WithBus(bus domain.SignalBus) *Notifier {
	n.bus = bus
	return n
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n.filtered(ctx, event) {
		return nil
	}
	n.mirror(ctx, event, title, message)
	return n.dispatch(ctx, title, message, "", "")
}

// NotifyAction sends a notification with an action button on channels that
// support one. The event filter applies as in Notify.
func (n *Notifier) NotifyAction(ctx context.Context, event, title, message, buttonLabel, callbackData string) error {
	if n.filtered(ctx, event) {
		return nil
	}
	n.mirror(ctx, event, title, message)
	return n.dispatch(ctx, title, message, buttonLabel, callbackData)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	n.mirror(ctx, "system", title, message)
	return n.dispatch(ctx, title, message, "", "")
}

// AlertStream is the signal-bus stream that mirrored notifications land on.
const AlertStream = "alerts"

// AlertChannel returns the pub/sub channel for one event type. Subscribers
// wanting everything can pattern-subscribe to "alerts:*".
func AlertChannel(event string) string { return "alerts:" + event }

type busAlert struct {
	Event   string `json:"event"`
	Title   string `json:"title"`
	Message string `json:"message"`
	At      string `json:"at"`
}

func (n *Notifier) mirror(ctx context.Context, event, title, message string) {
	if n.bus == nil {
		return
	}
	payload, err := json.Marshal(busAlert{
		Event:   event,
		Title:   title,
		Message: message,
		At:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := n.bus.Publish(ctx, AlertChannel(event), payload); err != nil {
		n.logger.WarnContext(ctx, "bus publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := n.bus.StreamAppend(ctx, AlertStream, payload); err != nil {
		n.logger.WarnContext(ctx, "bus stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (n *Notifier) filtered(ctx context.Context, event string) bool {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return true
	}
	return false
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message, buttonLabel, callbackData string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		var err error
		if as, ok := s.(ActionSender); ok && buttonLabel != "" {
			err = as.SendAction(ctx, title, message, buttonLabel, callbackData)
		} else {
			err = s.Send(ctx, title, message)
		}
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
