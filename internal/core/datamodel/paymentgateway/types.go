package paymentgateway

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transaction statuses as the vendor spells them.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusSandbox    = "sandbox"
)

const (
	TransactionTypeCollection   = "collection"
	TransactionTypeDisbursement = "disbursement"
)

// CollectionRequest is the form body of the initiate call.
type CollectionRequest struct {
	PhoneNumber string
	Amount      int64
	Country     string
	Reference   string
	Description string
	CallbackURL string
}

func (r *CollectionRequest) Validate() error {
	if r.PhoneNumber == "" {
		return errors.New("phone_number is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.Country == "" {
		return errors.New("country is required")
	}
	if r.Reference == "" {
		return errors.New("reference is required")
	}
	return nil
}

// FormValues renders the form body; optional fields are omitted when empty.
func (r *CollectionRequest) FormValues() url.Values {
	values := url.Values{}
	values.Set("phone_number", r.PhoneNumber)
	values.Set("amount", strconv.FormatInt(r.Amount, 10))
	values.Set("country", r.Country)
	values.Set("reference", r.Reference)
	if r.Description != "" {
		values.Set("description", r.Description)
	}
	if r.CallbackURL != "" {
		values.Set("callback_url", r.CallbackURL)
	}
	return values
}

type Amount struct {
	Formatted string `json:"formatted"`
	Raw       int64  `json:"raw"`
	Currency  string `json:"currency"`
}

type Transaction struct {
	UUID              string `json:"uuid"`
	Reference         string `json:"reference"`
	Status            string `json:"status"`
	ProviderReference string `json:"provider_reference"`
}

type Collection struct {
	Amount      Amount `json:"amount"`
	Provider    string `json:"provider"`
	PhoneNumber string `json:"phone_number"`
	Mode        string `json:"mode"`
}

type Timeline struct {
	InitiatedAt         string `json:"initiated_at"`
	EstimatedSettlement string `json:"estimated_settlement"`
}

type CollectionData struct {
	Transaction Transaction `json:"transaction"`
	Collection  *Collection `json:"collection,omitempty"`
	Details     *Collection `json:"details,omitempty"`
	Timeline    Timeline    `json:"timeline"`
}

// CollectionResponse covers both the initiate and the detail responses; the
// former fills Data.Collection and the latter Data.Details.
type CollectionResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    CollectionData `json:"data"`

	// Raw is the undecoded body, kept for diagnostics.
	Raw json.RawMessage `json:"-"`
}

// Info returns whichever of collection/details the vendor populated.
func (r *CollectionResponse) Info() *Collection {
	if r.Data.Collection != nil {
		return r.Data.Collection
	}
	return r.Data.Details
}

// ErrorResponse is the vendor's failure body.
type ErrorResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// WebhookTransaction is the transaction block of a webhook notification.
type WebhookTransaction struct {
	UUID              string      `json:"uuid"`
	Reference         string      `json:"reference"`
	Status            string      `json:"status"`
	ProviderReference string      `json:"provider_reference"`
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	PhoneNumber       string      `json:"phone_number"`
	Provider          string      `json:"provider"`
	Type              string      `json:"type"`
}

type WebhookPayload struct {
	Event       string             `json:"event"`
	Transaction WebhookTransaction `json:"transaction"`
	Timestamp   string             `json:"timestamp"`
}

func (p *WebhookPayload) Validate() error {
	var missing []string
	if p.Event == "" {
		missing = append(missing, "event")
	}
	if p.Transaction.UUID == "" {
		missing = append(missing, "transaction.uuid")
	}
	if p.Transaction.Status == "" {
		missing = append(missing, "transaction.status")
	}
	if p.Transaction.Type == "" {
		missing = append(missing, "transaction.type")
	}
	if len(missing) > 0 {
		return errors.New("missing fields: " + strings.Join(missing, ", "))
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp accepts the formats the vendor has been observed to emit.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
