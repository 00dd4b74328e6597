// Package sandbox is an in-process stand-in for the mobile-money collection
// API. It speaks the same wire format as the real vendor and settles
// collections asynchronously by posting webhooks to the callback URL.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/frahmantamala/momo-collections/internal/carrier"
	gw "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
)

type Config struct {
	APIKey       string
	APISecret    string
	SettleDelay  time.Duration
	MaxWorkers   int
	JobQueueSize int
	// SandboxMode answers every initiation with status "sandbox" and never settles.
	SandboxMode bool
	// Outcome picks the final vendor status for a phone number. Returning
	// "pending" leaves the collection unsettled.
	Outcome func(phoneNumber string) string
}

// DefaultOutcome fails numbers ending in 0000, cancels numbers ending in
// 1111, leaves numbers ending in 9999 pending and settles the rest.
func DefaultOutcome(phoneNumber string) string {
	switch {
	case strings.HasSuffix(phoneNumber, "0000"):
		return gw.StatusFailed
	case strings.HasSuffix(phoneNumber, "1111"):
		return gw.StatusCancelled
	case strings.HasSuffix(phoneNumber, "9999"):
		return gw.StatusPending
	default:
		return gw.StatusSuccessful
	}
}

type transaction struct {
	UUID              string
	Reference         string
	Status            string
	ProviderReference string
	PhoneNumber       string
	Provider          string
	Amount            int64
	Currency          string
	Description       string
	CallbackURL       string
	InitiatedAt       time.Time
}

type Server struct {
	config     Config
	logger     *slog.Logger
	httpClient *http.Client

	mu           sync.RWMutex
	transactions map[string]*transaction
	references   map[string]string

	jobQueue   chan settlementJob
	workerPool chan chan settlementJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewServer(config Config, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}
	if config.Outcome == nil {
		config.Outcome = DefaultOutcome
	}

	s := &Server{
		config:       config,
		logger:       logger,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		transactions: make(map[string]*transaction),
		references:   make(map[string]string),
		jobQueue:     make(chan settlementJob, jobQueueSize),
		workerPool:   make(chan chan settlementJob, maxWorkers),
		maxWorkers:   maxWorkers,
		ctx:          ctx,
		cancel:       cancel,
	}

	s.startWorkerPool()
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.basicAuth)
	r.Post("/collect-money", s.handleCollect)
	r.Get("/collect-money/{uuid}", s.handleDetails)
	return r
}

// SetStatus forces a transaction into status without sending a webhook.
func (s *Server) SetStatus(transactionUUID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[transactionUUID]
	if !ok {
		return false
	}
	txn.Status = status
	return true
}

// Status returns the current vendor status of a transaction.
func (s *Server) Status(transactionUUID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[transactionUUID]
	if !ok {
		return "", false
	}
	return txn.Status, true
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, secret, ok := r.BasicAuth()
		if !ok || key != s.config.APIKey || secret != s.config.APISecret {
			writeJSON(w, http.StatusUnauthorized, gw.ErrorResponse{Status: "error", Message: "Unauthenticated."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, gw.ErrorResponse{Status: "error", Message: "malformed form body"})
		return
	}

	fieldErrs := map[string][]string{}
	phone := carrier.Format(r.PostForm.Get("phone_number"))
	if !carrier.Validate(phone) {
		fieldErrs["phone_number"] = append(fieldErrs["phone_number"], "The phone number format is invalid.")
	}
	amount, err := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		fieldErrs["amount"] = append(fieldErrs["amount"], "The amount must be a positive integer.")
	}
	country := strings.ToUpper(r.PostForm.Get("country"))
	if country == "" {
		fieldErrs["country"] = append(fieldErrs["country"], "The country field is required.")
	}
	ref := r.PostForm.Get("reference")
	if ref == "" {
		fieldErrs["reference"] = append(fieldErrs["reference"], "The reference field is required.")
	}

	s.mu.Lock()
	if _, taken := s.references[ref]; ref != "" && taken {
		fieldErrs["reference"] = append(fieldErrs["reference"], "The reference has already been taken.")
	}
	if len(fieldErrs) > 0 {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnprocessableEntity, gw.ErrorResponse{
			Status:  "error",
			Message: "The given data was invalid.",
			Errors:  fieldErrs,
		})
		return
	}

	status := gw.StatusPending
	if s.config.SandboxMode {
		status = gw.StatusSandbox
	}

	txn := &transaction{
		UUID:        uuid.NewString(),
		Reference:   ref,
		Status:      status,
		PhoneNumber: phone,
		Provider:    providerName(phone),
		Amount:      amount,
		Currency:    currencyFor(country),
		Description: r.PostForm.Get("description"),
		CallbackURL: r.PostForm.Get("callback_url"),
		InitiatedAt: time.Now().UTC(),
	}
	s.transactions[txn.UUID] = txn
	s.references[ref] = txn.UUID
	s.mu.Unlock()

	s.logger.Info("sandbox: collection received",
		"transaction_uuid", txn.UUID,
		"reference", ref,
		"amount", amount,
		"provider", txn.Provider)

	if !s.config.SandboxMode && txn.CallbackURL != "" {
		select {
		case s.jobQueue <- settlementJob{TransactionUUID: txn.UUID, CallbackURL: txn.CallbackURL}:
		default:
			s.logger.Warn("sandbox: settlement queue full, collection stays pending", "transaction_uuid", txn.UUID)
		}
	}

	writeJSON(w, http.StatusCreated, s.render(txn, false))
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")

	s.mu.RLock()
	txn, ok := s.transactions[id]
	var snapshot transaction
	if ok {
		snapshot = *txn
	}
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, gw.ErrorResponse{Status: "error", Message: "Transaction not found."})
		return
	}

	writeJSON(w, http.StatusOK, s.render(&snapshot, true))
}

func (s *Server) render(txn *transaction, details bool) gw.CollectionResponse {
	info := &gw.Collection{
		Amount: gw.Amount{
			Formatted: formatAmount(txn.Currency, txn.Amount),
			Raw:       txn.Amount,
			Currency:  txn.Currency,
		},
		Provider:    txn.Provider,
		PhoneNumber: txn.PhoneNumber,
		Mode:        "mobile_money",
	}

	data := gw.CollectionData{
		Transaction: gw.Transaction{
			UUID:              txn.UUID,
			Reference:         txn.Reference,
			Status:            txn.Status,
			ProviderReference: txn.ProviderReference,
		},
		Timeline: gw.Timeline{
			InitiatedAt:         txn.InitiatedAt.Format(time.RFC3339),
			EstimatedSettlement: txn.InitiatedAt.Add(s.config.SettleDelay).Format(time.RFC3339),
		},
	}
	if details {
		data.Details = info
	} else {
		data.Collection = info
	}

	return gw.CollectionResponse{Status: "success", Message: "Collection initiated successfully.", Data: data}
}

func (s *Server) settle(job settlementJob) {
	select {
	case <-time.After(s.config.SettleDelay):
	case <-s.ctx.Done():
		return
	}

	s.mu.Lock()
	txn, ok := s.transactions[job.TransactionUUID]
	if !ok || txn.Status != gw.StatusPending {
		s.mu.Unlock()
		return
	}
	outcome := s.config.Outcome(txn.PhoneNumber)
	if outcome == gw.StatusPending {
		s.mu.Unlock()
		s.logger.Info("sandbox: leaving collection pending", "transaction_uuid", txn.UUID)
		return
	}
	txn.Status = outcome
	if outcome == gw.StatusSuccessful {
		txn.ProviderReference = "SBX" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	}
	payload := gw.WebhookPayload{
		Event: "collection." + outcome,
		Transaction: gw.WebhookTransaction{
			UUID:              txn.UUID,
			Reference:         txn.Reference,
			Status:            txn.Status,
			ProviderReference: txn.ProviderReference,
			Amount:            json.Number(strconv.FormatInt(txn.Amount, 10)),
			Currency:          txn.Currency,
			PhoneNumber:       txn.PhoneNumber,
			Provider:          txn.Provider,
			Type:              gw.TransactionTypeCollection,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	s.mu.Unlock()

	s.sendWebhook(job.CallbackURL, payload)
}

func (s *Server) sendWebhook(callbackURL string, payload gw.WebhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("sandbox: failed to marshal webhook", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("sandbox: failed to create webhook request", "error", err, "transaction_uuid", payload.Transaction.UUID)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("sandbox: webhook delivery failed", "error", err, "transaction_uuid", payload.Transaction.UUID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("sandbox: webhook rejected",
			"transaction_uuid", payload.Transaction.UUID,
			"status_code", resp.StatusCode)
		return
	}

	s.logger.Info("sandbox: webhook delivered",
		"transaction_uuid", payload.Transaction.UUID,
		"status", payload.Transaction.Status)
}

func providerName(phone string) string {
	switch carrier.Detect(phone) {
	case carrier.MTN:
		return "mtn"
	case carrier.Airtel:
		return "airtel"
	default:
		return "unknown"
	}
}

func currencyFor(country string) string {
	switch country {
	case "KE":
		return "KES"
	case "TZ":
		return "TZS"
	case "RW":
		return "RWF"
	default:
		return "UGX"
	}
}

func formatAmount(currency string, amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s %s", currency, b.String())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
