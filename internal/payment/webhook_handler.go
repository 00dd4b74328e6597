package payment

import (
	"context"
	stdErrors "errors"
	"io"
	"net"
	"net/http"

	errors "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/transport"
)

const maxWebhookBody = 1 << 20

type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, raw []byte, headers http.Header, senderIP string) (*WebhookAck, error)
}

type WebhookHandler struct {
	*transport.BaseHandler
	webhookService WebhookProcessor
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, webhookService WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		webhookService: webhookService,
	}
}

// HandleCollectionWebhook handles POST /api/v1/webhooks/collections. It
// answers 200 for anything it could record, 400 for unparsable bodies and
// 500 only when the receipt could not be stored.
func (h *WebhookHandler) HandleCollectionWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			h.Logger.Warn("HandleCollectionWebhook: body too large", "limit", tooLarge.Limit)
		} else {
			h.Logger.Error("HandleCollectionWebhook: failed to read body", "error", err)
		}
		h.HandleError(w, errors.NewValidationError("invalid webhook payload", errors.ErrCodeInvalidWebhook))
		return
	}

	ack, err := h.webhookService.ProcessWebhook(r.Context(), raw, r.Header, senderIP(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ack)
}

func senderIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
