package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-collections/internal/core/events"
)

// TerminalRecorder counts terminal outcomes, e.g. for prometheus.
type TerminalRecorder interface {
	ObserveTerminal(status, currency string, amount int64)
}

// EventHandler listens for terminal payment events. It records them in the
// service log so each outcome leaves one structured line.
type EventHandler struct {
	logger  *slog.Logger
	metrics TerminalRecorder
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{
		logger: logger,
	}
}

// WithMetrics also reports every terminal event to m.
func (h *EventHandler) WithMetrics(m TerminalRecorder) *EventHandler {
	h.metrics = m
	return h
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.logger.Info("payment completed",
		"event_id", completed.EventID(),
		"payment_id", completed.PaymentID,
		"appointment_id", completed.AppointmentID,
		"reference", completed.Reference,
		"amount", completed.Amount,
		"currency", completed.Currency,
		"transaction_id", completed.TransactionID)
	if h.metrics != nil {
		h.metrics.ObserveTerminal(payment.StatusSuccessful, completed.Currency, completed.Amount)
	}
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.logger.Warn("payment did not complete",
		"event_id", failed.EventID(),
		"payment_id", failed.PaymentID,
		"appointment_id", failed.AppointmentID,
		"reference", failed.Reference,
		"status", failed.Status,
		"failure_reason", failed.FailureReason)
	if h.metrics != nil {
		h.metrics.ObserveTerminal(failed.Status, "", 0)
	}
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypePaymentCompleted, events.EventTypePaymentFailed})
}
