package payment

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	errors "github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/carrier"
	"github.com/frahmantamala/momo-collections/internal/core/common/validation"
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/momo-collections/internal/core/events"
	"github.com/frahmantamala/momo-collections/internal/paymentgateway"
	"github.com/frahmantamala/momo-collections/internal/reference"
)

const cancelledByUser = "cancelled by user"

type Settings struct {
	MinAmount   int64
	MaxAmount   int64
	Country     string
	Currency    string
	CallbackURL string
}

type ServiceAPI interface {
	CreateCollection(ctx context.Context, in CreateCollectionInput) (*payment.Payment, error)
	UpdateFromWebhook(ctx context.Context, update WebhookUpdate) (*payment.Payment, error)
	RefreshStatus(ctx context.Context, id int64) (*payment.Payment, error)
	CancelPayment(ctx context.Context, id int64) (*payment.Payment, error)
	GetByID(ctx context.Context, id int64) (*payment.Payment, error)
	GetByReference(ctx context.Context, ref string) (*payment.Payment, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]*payment.Payment, error)
	Statistics(ctx context.Context) (*Statistics, error)
}

// Service owns every write to the payment record store.
type Service struct {
	repo         RepositoryAPI
	gateway      GatewayAPI
	appointments AppointmentStore
	payers       PayerStore
	references   reference.Generator
	publisher    EventPublisher
	settings     Settings
	logger       *slog.Logger
	now          func() time.Time
}

func NewService(
	repo RepositoryAPI,
	gateway GatewayAPI,
	appointments AppointmentStore,
	payers PayerStore,
	references reference.Generator,
	publisher EventPublisher,
	settings Settings,
	logger *slog.Logger,
) *Service {
	if settings.Currency == "" {
		settings.Currency = "UGX"
	}
	if settings.Country == "" {
		settings.Country = "UG"
	}
	return &Service{
		repo:         repo,
		gateway:      gateway,
		appointments: appointments,
		payers:       payers,
		references:   references,
		publisher:    publisher,
		settings:     settings,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// reconciliation is a status report from any source: the initiate response,
// a webhook or a poll.
type reconciliation struct {
	Source            string
	ReportedStatus    string
	ProviderReference string
	RawResponse       []byte
}

func (s *Service) CreateCollection(ctx context.Context, in CreateCollectionInput) (*payment.Payment, error) {
	if appErr := validation.ValidateCollectionAmount(in.Amount, s.settings.MinAmount, s.settings.MaxAmount); appErr != nil {
		return nil, appErr
	}

	if in.PhoneNumber != "" {
		if appErr := validation.ValidatePhoneNumber("phone_number", in.PhoneNumber); appErr != nil {
			return nil, appErr
		}
	}

	appt, err := s.appointments.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return nil, s.lookupError(err, "appointment", in.AppointmentID)
	}

	payer, err := s.payers.GetPayer(ctx, in.PayerID)
	if err != nil {
		return nil, s.lookupError(err, "payer", in.PayerID)
	}

	if appt.PatientID != payer.ID {
		s.logger.Warn("appointment does not belong to payer",
			"appointment_id", appt.ID,
			"payer_id", payer.ID)
		return nil, errors.NewForbiddenError("appointment does not belong to payer", errors.ErrCodeAppointmentPayerMismatch)
	}

	phone := in.PhoneNumber
	if phone == "" {
		phone = strings.TrimSpace(payer.PhoneNumber)
		if phone == "" {
			return nil, errors.NewValidationFieldError("phone_number", "phone_number is required when the payer has none on file", errors.ErrCodeInvalidPhone)
		}
		if appErr := validation.ValidatePhoneNumber("phone_number", phone); appErr != nil {
			return nil, appErr
		}
	}
	phone = carrier.Format(phone)
	method := carrier.Detect(phone)
	if method == carrier.Unknown {
		return nil, errors.NewValidationFieldError("phone_number", "phone_number does not belong to a supported provider", errors.ErrCodeUnsupportedProvider)
	}

	paid, err := s.repo.HasSuccessfulForAppointment(ctx, appt.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to check existing payments", err)
	}
	if paid {
		s.logger.Info("rejecting collection for already paid appointment", "appointment_id", appt.ID)
		return nil, errors.NewConflictError("appointment already has a successful payment", errors.ErrCodeDuplicatePayment)
	}

	ref := s.references.Next()
	exists, err := s.repo.ExistsByReference(ctx, ref)
	if err != nil {
		return nil, errors.NewInternalError("failed to check payment reference", err)
	}
	if exists {
		s.logger.Error("generated payment reference already exists", "reference", ref)
		return nil, errors.NewConflictError("payment reference already exists", errors.ErrCodeDuplicateReference)
	}

	req := &gw.CollectionRequest{
		PhoneNumber: phone,
		Amount:      in.Amount,
		Country:     s.settings.Country,
		Reference:   ref,
		Description: in.Description,
		CallbackURL: s.settings.CallbackURL,
	}

	s.logger.Info("initiating collection",
		"reference", ref,
		"appointment_id", appt.ID,
		"amount", in.Amount,
		"payment_method", method.String())

	resp, err := s.gateway.CreateCollection(ctx, req)
	if err != nil {
		return nil, s.gatewayError(err, "reference", ref)
	}

	initial, known := MapGatewayStatus(resp.Data.Transaction.Status)
	if !known {
		s.logger.Warn("unrecognised gateway status on initiate",
			"gateway_status", resp.Data.Transaction.Status,
			"reference", ref)
	}
	stored := initial
	if initial != payment.StatusSandbox && IsTerminal(initial) {
		stored = payment.StatusPending
	}

	now := s.now()
	externalID := resp.Data.Transaction.UUID
	p := &payment.Payment{
		AppointmentID:         appt.ID,
		PayerID:               payer.ID,
		Amount:                in.Amount,
		Currency:              s.currencyOf(resp),
		Reference:             ref,
		ExternalTransactionID: &externalID,
		ProviderReference:     strPtr(resp.Data.Transaction.ProviderReference),
		Status:                stored,
		PaymentMethod:         method.String(),
		PhoneNumber:           phone,
		Description:           strPtr(in.Description),
		InitiatedAt:           now,
		RawGatewayResponse:    resp.Raw,
	}
	if t, ok := gw.ParseTimestamp(resp.Data.Timeline.InitiatedAt); ok {
		p.InitiatedAt = t
	}
	if t, ok := gw.ParseTimestamp(resp.Data.Timeline.EstimatedSettlement); ok {
		p.EstimatedSettlement = &t
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.logger.Error("failed to persist accepted collection",
			"error", err,
			"reference", ref,
			"external_transaction_id", externalID)
		return nil, errors.NewInternalError("failed to save payment", err)
	}

	if err := s.appointments.AttachPayment(ctx, appt.ID, p.ID); err != nil {
		s.logger.Error("failed to attach payment to appointment",
			"error", err,
			"payment_id", p.ID,
			"appointment_id", appt.ID)
	}

	s.logger.Info("collection created",
		"payment_id", p.ID,
		"reference", ref,
		"external_transaction_id", externalID,
		"status", p.Status)

	if stored != initial {
		return s.reconcile(ctx, p, reconciliation{
			Source:            "initiate",
			ReportedStatus:    resp.Data.Transaction.Status,
			ProviderReference: resp.Data.Transaction.ProviderReference,
		})
	}
	return p, nil
}

func (s *Service) UpdateFromWebhook(ctx context.Context, update WebhookUpdate) (*payment.Payment, error) {
	p, err := s.repo.GetByExternalTransactionID(ctx, update.ExternalTransactionID)
	if err != nil {
		if stdErrors.Is(err, errors.ErrPaymentNotFound) {
			s.logger.Warn("webhook for unknown transaction",
				"external_transaction_id", update.ExternalTransactionID,
				"status", update.ReportedStatus)
			return nil, err
		}
		return nil, errors.NewInternalError("failed to load payment", err)
	}

	if err := s.repo.RecordWebhook(ctx, p.ID, update.RawPayload, s.now()); err != nil {
		return nil, errors.NewInternalError("failed to record webhook", err)
	}

	return s.reconcile(ctx, p, reconciliation{
		Source:            "webhook",
		ReportedStatus:    update.ReportedStatus,
		ProviderReference: update.ProviderReference,
	})
}

func (s *Service) RefreshStatus(ctx context.Context, id int64) (*payment.Payment, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if IsTerminal(p.Status) {
		s.logger.Debug("refresh skipped for terminal payment", "payment_id", p.ID, "status", p.Status)
		return p, nil
	}

	externalID := deref(p.ExternalTransactionID)
	if externalID == "" {
		return nil, errors.NewStateError("payment has no gateway transaction to refresh")
	}

	resp, err := s.gateway.GetCollectionDetails(ctx, externalID)
	if err != nil {
		return nil, s.gatewayError(err, "payment_id", p.ID)
	}

	return s.reconcile(ctx, p, reconciliation{
		Source:            "poll",
		ReportedStatus:    resp.Data.Transaction.Status,
		ProviderReference: resp.Data.Transaction.ProviderReference,
		RawResponse:       resp.Raw,
	})
}

func (s *Service) CancelPayment(ctx context.Context, id int64) (*payment.Payment, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canCancel(p.Status) {
		return nil, errors.NewStateError(fmt.Sprintf("payment cannot be cancelled in status %s", p.Status))
	}

	now := s.now()
	reason := cancelledByUser
	applied, err := s.repo.Transition(ctx, p.ID, []string{payment.StatusPending, payment.StatusProcessing}, Transition{
		Status:        payment.StatusCancelled,
		CompletedAt:   &now,
		FailureReason: &reason,
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to cancel payment", err)
	}

	updated, err := s.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, errors.NewStateError(fmt.Sprintf("payment cannot be cancelled in status %s", updated.Status))
	}

	s.logger.Info("payment cancelled", "payment_id", updated.ID, "previous_status", p.Status)
	s.notifyTerminal(ctx, updated)
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if stdErrors.Is(err, errors.ErrPaymentNotFound) {
			return nil, err
		}
		return nil, errors.NewInternalError("failed to load payment", err)
	}
	return p, nil
}

func (s *Service) GetByReference(ctx context.Context, ref string) (*payment.Payment, error) {
	p, err := s.repo.GetByReference(ctx, ref)
	if err != nil {
		if stdErrors.Is(err, errors.ErrPaymentNotFound) {
			return nil, err
		}
		return nil, errors.NewInternalError("failed to load payment", err)
	}
	return p, nil
}

func (s *Service) ListByAppointment(ctx context.Context, appointmentID string) ([]*payment.Payment, error) {
	ps, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list payments", err)
	}
	return ps, nil
}

func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, errors.NewInternalError("failed to compute payment statistics", err)
	}

	stats := &Statistics{
		ByStatus: map[string]int64{
			payment.StatusPending:    0,
			payment.StatusProcessing: 0,
			payment.StatusSuccessful: 0,
			payment.StatusFailed:     0,
			payment.StatusCancelled:  0,
			payment.StatusSandbox:    0,
		},
		Currency: s.settings.Currency,
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.Total += c.Count
		if c.Status == payment.StatusSuccessful {
			stats.SuccessfulAmount = c.Amount
		}
	}
	return stats, nil
}

// SweepStale refreshes non-terminal payments initiated before cutoff with at
// most concurrency gateway calls in flight. Per-payment failures are counted,
// not returned.
func (s *Service) SweepStale(ctx context.Context, cutoff time.Time, limit, concurrency int) (SweepResult, error) {
	var result SweepResult

	stale, err := s.repo.ListNonTerminalBefore(ctx, cutoff, limit)
	if err != nil {
		return result, errors.NewInternalError("failed to list stale payments", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]int, len(stale))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, p := range stale {
		i, p := i, p
		g.Go(func() error {
			updated, err := s.RefreshStatus(gctx, p.ID)
			switch {
			case err != nil:
				s.logger.Warn("reconcile refresh failed", "payment_id", p.ID, "error", err)
				outcomes[i] = -1
			case updated.Status != p.Status:
				outcomes[i] = 1
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Checked = len(stale)
	for _, o := range outcomes {
		switch o {
		case 1:
			result.Updated++
		case -1:
			result.Failed++
		}
	}
	return result, ctx.Err()
}

// reconcile applies one status report to p. The provider reference is
// filled when still empty; the status only moves forward and never leaves a
// terminal state.
func (s *Service) reconcile(ctx context.Context, p *payment.Payment, r reconciliation) (*payment.Payment, error) {
	if r.ProviderReference != "" && deref(p.ProviderReference) == "" {
		if err := s.repo.FillProviderReference(ctx, p.ID, r.ProviderReference); err != nil {
			return nil, errors.NewInternalError("failed to store provider reference", err)
		}
	}

	target, known := MapGatewayStatus(r.ReportedStatus)
	if !known {
		s.logger.Warn("unrecognised gateway status",
			"gateway_status", r.ReportedStatus,
			"payment_id", p.ID,
			"source", r.Source)
	}

	sources := transitionSources(target)
	if IsTerminal(p.Status) || target == p.Status || len(sources) == 0 {
		s.logger.Debug("status report not applied",
			"payment_id", p.ID,
			"status", p.Status,
			"reported", target,
			"source", r.Source)
		return s.GetByID(ctx, p.ID)
	}

	t := Transition{Status: target, RawGatewayResponse: r.RawResponse}
	now := s.now()
	switch target {
	case payment.StatusSuccessful:
		t.CompletedAt = &now
		t.TransactionID = strPtr(r.ProviderReference)
		if t.TransactionID == nil {
			t.TransactionID = p.ExternalTransactionID
		}
	case payment.StatusFailed, payment.StatusCancelled:
		t.CompletedAt = &now
		t.FailureReason = strPtr(fmt.Sprintf("gateway reported %s", r.ReportedStatus))
	}

	applied, err := s.repo.Transition(ctx, p.ID, sources, t)
	if err != nil {
		return nil, errors.NewInternalError("failed to update payment status", err)
	}

	updated, err := s.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	if !applied {
		s.logger.Info("status transition lost to a concurrent update",
			"payment_id", p.ID,
			"reported", target,
			"status", updated.Status,
			"source", r.Source)
		return updated, nil
	}

	s.logger.Info("payment status updated",
		"payment_id", p.ID,
		"old_status", p.Status,
		"new_status", target,
		"source", r.Source)

	s.notifyTerminal(ctx, updated)
	return updated, nil
}

// notifyTerminal tells the appointment collaborator and the event bus about a
// terminal transition. Failures are logged only.
func (s *Service) notifyTerminal(ctx context.Context, p *payment.Payment) {
	ctx = context.WithoutCancel(ctx)

	switch p.Status {
	case payment.StatusSuccessful:
		if err := s.appointments.MarkPaymentComplete(ctx, p.AppointmentID, p.ID); err != nil {
			s.logger.Error("failed to notify appointment of completed payment",
				"error", err,
				"payment_id", p.ID,
				"appointment_id", p.AppointmentID)
		}
		s.publish(ctx, events.NewPaymentCompletedEvent(
			p.ID, p.AppointmentID, p.Reference, deref(p.ExternalTransactionID), p.Amount, p.Currency, deref(p.TransactionID),
		))

	case payment.StatusFailed, payment.StatusCancelled:
		reason := deref(p.FailureReason)
		if err := s.appointments.MarkPaymentFailed(ctx, p.AppointmentID, p.ID, reason); err != nil {
			s.logger.Error("failed to notify appointment of failed payment",
				"error", err,
				"payment_id", p.ID,
				"appointment_id", p.AppointmentID)
		}
		s.publish(ctx, events.NewPaymentFailedEvent(
			p.ID, p.AppointmentID, p.Reference, deref(p.ExternalTransactionID), p.Amount, p.Status, reason,
		))
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "error", err, "event_type", event.EventType())
	}
}

func (s *Service) lookupError(err error, kind, id string) error {
	if _, ok := errors.IsAppError(err); ok {
		return err
	}
	s.logger.Error("collaborator lookup failed", "error", err, "kind", kind, "id", id)
	return errors.NewInternalError(fmt.Sprintf("failed to load %s", kind), err)
}

func (s *Service) gatewayError(err error, keyvals ...interface{}) error {
	s.logger.Error("gateway call failed", append([]interface{}{"error", err}, keyvals...)...)
	if gwErr, ok := paymentgateway.AsError(err); ok {
		return errors.NewGatewayError(gwErr.Message, gwErr.StatusCode, gwErr.Provider).WithCause(err)
	}
	return errors.NewGatewayError("payment gateway request failed", 0, s.gateway.Provider()).WithCause(err)
}

func (s *Service) currencyOf(resp *gw.CollectionResponse) string {
	if info := resp.Info(); info != nil && info.Amount.Currency != "" {
		return info.Amount.Currency
	}
	return s.settings.Currency
}
