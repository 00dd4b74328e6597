package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/transport"
)

// RefreshLimiter grants at most one refresh per key per window.
type RefreshLimiter interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

type Handler struct {
	*transport.BaseHandler
	PaymentService ServiceAPI
	Limiter        RefreshLimiter
	RefreshWindow  time.Duration
}

func NewHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, limiter RefreshLimiter, refreshWindow time.Duration) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		PaymentService: paymentService,
		Limiter:        limiter,
		RefreshWindow:  refreshWindow,
	}
}

// CreateCollection handles POST /api/v1/collections
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	userID, appErr := errors.RequireUserID(r.Context())
	if appErr != nil {
		h.Logger.Error("CreateCollection: user not found in context")
		h.HandleError(w, appErr)
		return
	}

	var req CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateCollection: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}
	req.Normalize()

	if err := req.Validate(); err != nil {
		h.Logger.Error("CreateCollection: validation error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	input, err := req.ToInput(userID)
	if err != nil {
		h.Logger.Warn("CreateCollection: payer override refused", "user_id", userID, "payer_id", req.PayerID)
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.PaymentService.CreateCollection(r.Context(), input)
	if err != nil {
		h.Logger.Error("CreateCollection: service error", "error", err, "appointment_id", req.AppointmentID, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateCollection: collection initiated",
		"payment_id", p.ID,
		"reference", p.Reference,
		"user_id", userID)

	h.WriteJSON(w, http.StatusCreated, ToView(p))
}

// GetCollection handles GET /api/v1/collections/{id}
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	p, err := h.PaymentService.GetByID(r.Context(), id)
	if err != nil {
		h.Logger.Error("GetCollection: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(p))
}

// GetCollectionByReference handles GET /api/v1/collections/reference/{reference}
func (h *Handler) GetCollectionByReference(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	if ref == "" {
		h.HandleError(w, errors.NewValidationError("reference is required", errors.ErrCodeValidationFailed))
		return
	}

	p, err := h.PaymentService.GetByReference(r.Context(), ref)
	if err != nil {
		h.Logger.Error("GetCollectionByReference: service error", "error", err, "reference", ref)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(p))
}

// ListAppointmentCollections handles GET /api/v1/appointments/{appointmentID}/collections
func (h *Handler) ListAppointmentCollections(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")

	ps, err := h.PaymentService.ListByAppointment(r.Context(), appointmentID)
	if err != nil {
		h.Logger.Error("ListAppointmentCollections: service error", "error", err, "appointment_id", appointmentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"appointment_id": appointmentID,
		"payments":       ToViews(ps),
	})
}

// RefreshStatus handles POST /api/v1/collections/{id}/refresh
func (h *Handler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	key := "collections:refresh:" + strconv.FormatInt(id, 10)
	throttled := h.Limiter != nil && h.RefreshWindow > 0
	if throttled {
		allowed, err := h.Limiter.Allow(r.Context(), key, h.RefreshWindow)
		if err != nil {
			h.Logger.Warn("RefreshStatus: throttle unavailable, allowing", "error", err, "payment_id", id)
		} else if !allowed {
			h.HandleError(w, errors.NewTooManyRequestsError("status was refreshed recently, try again later", errors.ErrCodeRefreshThrottled))
			return
		}
	}

	p, err := h.PaymentService.RefreshStatus(r.Context(), id)
	if err != nil {
		h.Logger.Error("RefreshStatus: service error", "error", err, "payment_id", id)
		// a failed gateway poll does not use up the caller's window
		if appErr, ok := errors.IsAppError(err); throttled && ok && appErr.Type == errors.ErrorTypeExternal {
			if rerr := h.Limiter.Reset(r.Context(), key); rerr != nil {
				h.Logger.Warn("RefreshStatus: failed to release throttle", "error", rerr, "payment_id", id)
			}
		}
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(p))
}

// CancelCollection handles POST /api/v1/collections/{id}/cancel
func (h *Handler) CancelCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	p, err := h.PaymentService.CancelPayment(r.Context(), id)
	if err != nil {
		h.Logger.Error("CancelCollection: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CancelCollection: payment cancelled", "payment_id", id, "user_id", errors.UserIDFromContext(r.Context()))
	h.WriteJSON(w, http.StatusOK, ToView(p))
}

// GetStatistics handles GET /api/v1/collections/stats
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.PaymentService.Statistics(r.Context())
	if err != nil {
		h.Logger.Error("GetStatistics: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) paymentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.Logger.Error("invalid payment id", "id", idStr)
		h.HandleError(w, errors.NewValidationError("invalid payment id", errors.ErrCodeValidationFailed))
		return 0, false
	}
	return id, true
}
