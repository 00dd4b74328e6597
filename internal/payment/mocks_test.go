package payment_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/momo-collections/internal"
	appointmentDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/appointment"
	patientDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/patient"
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/momo-collections/internal/core/events"
	paymentPkg "github.com/frahmantamala/momo-collections/internal/payment"
)

// mockPaymentRepository mirrors the compare-and-set semantics of the gorm store.
type mockPaymentRepository struct {
	mu       sync.Mutex
	payments map[int64]*payment.Payment
	nextID   int64

	createError     error
	transitionError error
	transitions     int
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{payments: make(map[int64]*payment.Payment)}
}

func (m *mockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return m.createError
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *mockPaymentRepository) put(p *payment.Payment) *payment.Payment {
	_ = m.Create(context.Background(), p)
	return p
}

func (m *mockPaymentRepository) find(match func(*payment.Payment) bool) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, internal.ErrPaymentNotFound
}

func (m *mockPaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool { return p.ID == id })
}

func (m *mockPaymentRepository) GetByReference(ctx context.Context, ref string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool { return p.Reference == ref })
}

func (m *mockPaymentRepository) GetByExternalTransactionID(ctx context.Context, id string) (*payment.Payment, error) {
	return m.find(func(p *payment.Payment) bool {
		return p.ExternalTransactionID != nil && *p.ExternalTransactionID == id
	})
}

func (m *mockPaymentRepository) ExistsByReference(ctx context.Context, ref string) (bool, error) {
	_, err := m.GetByReference(ctx, ref)
	return err == nil, nil
}

func (m *mockPaymentRepository) HasSuccessfulForAppointment(ctx context.Context, appointmentID string) (bool, error) {
	_, err := m.find(func(p *payment.Payment) bool {
		return p.AppointmentID == appointmentID && p.Status == payment.StatusSuccessful
	})
	return err == nil, nil
}

func (m *mockPaymentRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if p.AppointmentID == appointmentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mockPaymentRepository) ListNonTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if (p.Status == payment.StatusPending || p.Status == payment.StatusProcessing) && p.InitiatedAt.Before(cutoff) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockPaymentRepository) RecordWebhook(ctx context.Context, id int64, raw json.RawMessage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return internal.ErrPaymentNotFound
	}
	p.WebhookAttempts++
	p.RawWebhookPayload = raw
	p.LastWebhookAt = &at
	return nil
}

func (m *mockPaymentRepository) FillProviderReference(ctx context.Context, id int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok && (p.ProviderReference == nil || *p.ProviderReference == "") {
		p.ProviderReference = &ref
	}
	return nil
}

func (m *mockPaymentRepository) Transition(ctx context.Context, id int64, from []string, t paymentPkg.Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionError != nil {
		return false, m.transitionError
	}
	p, ok := m.payments[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if p.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	m.transitions++
	p.Status = t.Status
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		p.CompletedAt = &at
	}
	if t.TransactionID != nil {
		v := *t.TransactionID
		p.TransactionID = &v
	}
	if t.FailureReason != nil {
		v := *t.FailureReason
		p.FailureReason = &v
	}
	if len(t.RawGatewayResponse) > 0 {
		p.RawGatewayResponse = t.RawGatewayResponse
	}
	return true, nil
}

func (m *mockPaymentRepository) CountByStatus(ctx context.Context) ([]paymentPkg.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStatus := map[string]*paymentPkg.StatusCount{}
	for _, p := range m.payments {
		c, ok := byStatus[p.Status]
		if !ok {
			c = &paymentPkg.StatusCount{Status: p.Status}
			byStatus[p.Status] = c
		}
		c.Count++
		c.Amount += p.Amount
	}
	var out []paymentPkg.StatusCount
	for _, c := range byStatus {
		out = append(out, *c)
	}
	return out, nil
}

type mockGateway struct {
	mu             sync.Mutex
	createCalls    int
	detailCalls    int
	lastRequest    *gw.CollectionRequest
	createResponse *gw.CollectionResponse
	detailResponse *gw.CollectionResponse
	createError    error
	detailError    error
}

func (g *mockGateway) Provider() string { return "testpay" }

func (g *mockGateway) CreateCollection(ctx context.Context, req *gw.CollectionRequest) (*gw.CollectionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.lastRequest = req
	if g.createError != nil {
		return nil, g.createError
	}
	return g.createResponse, nil
}

func (g *mockGateway) GetCollectionDetails(ctx context.Context, id string) (*gw.CollectionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detailCalls++
	if g.detailError != nil {
		return nil, g.detailError
	}
	return g.detailResponse, nil
}

func gatewayResponse(uuid, status, providerRef string) *gw.CollectionResponse {
	return &gw.CollectionResponse{
		Status:  "success",
		Message: "Collection initiated",
		Data: gw.CollectionData{
			Transaction: gw.Transaction{UUID: uuid, Reference: "ref", Status: status, ProviderReference: providerRef},
			Collection: &gw.Collection{
				Amount:   gw.Amount{Formatted: "UGX 25,000", Raw: 25000, Currency: "UGX"},
				Provider: "mtn_momo_ug",
				Mode:     "live",
			},
			Timeline: gw.Timeline{InitiatedAt: "2026-10-15T09:00:00Z", EstimatedSettlement: "2026-10-15T09:05:00Z"},
		},
		Raw: json.RawMessage(`{"status":"success"}`),
	}
}

type notification struct {
	kind          string
	appointmentID string
	paymentID     int64
	reason        string
}

type mockAppointments struct {
	mu            sync.Mutex
	appointments  map[string]*appointmentDatamodel.Appointment
	attached      map[string][]int64
	notifications []notification
	notifyError   error
}

func newMockAppointments() *mockAppointments {
	return &mockAppointments{
		appointments: map[string]*appointmentDatamodel.Appointment{},
		attached:     map[string][]int64{},
	}
}

func (m *mockAppointments) GetAppointment(ctx context.Context, id string) (*appointmentDatamodel.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, internal.ErrAppointmentNotFound
	}
	return a, nil
}

func (m *mockAppointments) AttachPayment(ctx context.Context, appointmentID string, paymentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached[appointmentID] = append(m.attached[appointmentID], paymentID)
	return nil
}

func (m *mockAppointments) MarkPaymentComplete(ctx context.Context, appointmentID string, paymentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notification{kind: "complete", appointmentID: appointmentID, paymentID: paymentID})
	return m.notifyError
}

func (m *mockAppointments) MarkPaymentFailed(ctx context.Context, appointmentID string, paymentID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notification{kind: "failed", appointmentID: appointmentID, paymentID: paymentID, reason: reason})
	return m.notifyError
}

func (m *mockAppointments) sent() []notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

type mockPayers struct {
	payers map[string]*patientDatamodel.Patient
}

func (m *mockPayers) GetPayer(ctx context.Context, id string) (*patientDatamodel.Patient, error) {
	p, ok := m.payers[id]
	if !ok {
		return nil, internal.ErrPayerNotFound
	}
	return p, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(ctx context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.EventType())
	}
	return out
}
