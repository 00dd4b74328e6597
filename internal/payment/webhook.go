package payment

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	errors "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
)

type WebhookUpdater interface {
	UpdateFromWebhook(ctx context.Context, update WebhookUpdate) (*payment.Payment, error)
}

// headers never copied into the receipt log
var redactedHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-api-secret":        {},
}

// WebhookService receives gateway notifications. Every parseable payload is
// written to the receipt log before anything else happens; once that write
// succeeds the gateway is always acknowledged.
type WebhookService struct {
	payments WebhookUpdater
	events   WebhookEventRepositoryAPI
	logger   *slog.Logger
	now      func() time.Time
}

func NewWebhookService(payments WebhookUpdater, events WebhookEventRepositoryAPI, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		payments: payments,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *WebhookService) ProcessWebhook(ctx context.Context, raw []byte, headers http.Header, senderIP string) (*WebhookAck, error) {
	payload, err := DecodeWebhook(raw)
	if err != nil {
		s.logger.Warn("rejecting unparsable webhook", "error", err, "sender_ip", senderIP)
		return nil, errors.NewValidationError("invalid webhook payload", errors.ErrCodeInvalidWebhook).WithCause(err)
	}

	receipt := &payment.WebhookEvent{
		Event:           payload.Event,
		TransactionUUID: payload.Transaction.UUID,
		TransactionType: payload.Transaction.Type,
		ReportedStatus:  payload.Transaction.Status,
		SenderIP:        senderIP,
		Headers:         filterHeaders(headers),
		Payload:         json.RawMessage(raw),
		Outcome:         payment.WebhookReceived,
		ReceivedAt:      s.now(),
	}
	if err := s.events.Create(ctx, receipt); err != nil {
		s.logger.Error("failed to record webhook",
			"error", err,
			"transaction_uuid", payload.Transaction.UUID)
		return nil, errors.NewInternalError("failed to record webhook", err)
	}

	s.logger.Info("webhook received",
		"webhook_event_id", receipt.ID,
		"event", payload.Event,
		"transaction_uuid", payload.Transaction.UUID,
		"transaction_type", payload.Transaction.Type,
		"status", payload.Transaction.Status)

	ack := &WebhookAck{Received: true}

	if payload.Transaction.Type != gw.TransactionTypeCollection {
		ack.Outcome = payment.WebhookIgnored
		ack.Message = "transaction type not handled"
		s.finish(ctx, receipt.ID, ack, nil)
		return ack, nil
	}

	p, err := s.payments.UpdateFromWebhook(ctx, WebhookUpdate{
		ExternalTransactionID: payload.Transaction.UUID,
		ReportedStatus:        payload.Transaction.Status,
		ProviderReference:     payload.Transaction.ProviderReference,
		RawPayload:            raw,
	})
	switch {
	case err == nil:
		ack.Outcome = payment.WebhookProcessed
		ack.PaymentID = &p.ID
	case stdErrors.Is(err, errors.ErrPaymentNotFound):
		ack.Outcome = payment.WebhookUnmatched
		ack.Message = "no payment for transaction"
	default:
		s.logger.Error("webhook processing failed",
			"error", err,
			"transaction_uuid", payload.Transaction.UUID)
		ack.Outcome = payment.WebhookFailed
		ack.Message = "processing failed"
	}

	s.finish(ctx, receipt.ID, ack, err)
	return ack, nil
}

func (s *WebhookService) finish(ctx context.Context, receiptID int64, ack *WebhookAck, procErr error) {
	var errMsg *string
	if procErr != nil {
		msg := procErr.Error()
		errMsg = &msg
	}
	if err := s.events.UpdateOutcome(ctx, receiptID, ack.Outcome, ack.PaymentID, errMsg, s.now()); err != nil {
		s.logger.Error("failed to record webhook outcome",
			"error", err,
			"webhook_event_id", receiptID,
			"outcome", ack.Outcome)
	}
}

// DecodeWebhook parses the documented payload shape only. Unknown fields and
// trailing data are errors.
func DecodeWebhook(raw []byte) (*gw.WebhookPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var payload gw.WebhookPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, stdErrors.New("unexpected data after payload")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

func filterHeaders(h http.Header) json.RawMessage {
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := strings.ToLower(k)
		if _, skip := redactedHeaders[key]; skip || len(v) == 0 {
			continue
		}
		out[key] = v[0]
	}
	b, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
