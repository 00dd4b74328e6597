package paymentgateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	paymentgatewaytypes "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
)

const (
	collectPath     = "/collect-money"
	maxResponseBody = 1 << 20
	responseSuccess = "success"
)

type Config struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	ProviderName string
	Timeout      time.Duration
}

// Client talks to the mobile-money collection API. Build one per process and
// share it; it holds no per-request state.
type Client struct {
	baseURL    string
	authHeader string
	provider   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	provider := config.ProviderName
	if provider == "" {
		provider = "momo-gateway"
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(config.APIKey + ":" + config.APISecret))

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		authHeader: "Basic " + credentials,
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Provider() string {
	return c.provider
}

// CreateCollection asks the gateway to pull req.Amount from the payer's wallet.
func (c *Client) CreateCollection(ctx context.Context, req *paymentgatewaytypes.CollectionRequest) (*paymentgatewaytypes.CollectionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{StatusCode: http.StatusBadRequest, Message: err.Error(), Provider: c.provider}
	}

	body := req.FormValues().Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+collectPath, strings.NewReader(body))
	if err != nil {
		return nil, c.requestError(err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Info("gateway: initiating collection",
		"reference", req.Reference,
		"amount", req.Amount,
		"country", req.Country)

	resp, err := c.do(httpReq)
	if err != nil {
		c.logger.Error("gateway: collection initiation failed", "reference", req.Reference, "error", err)
		return nil, err
	}

	c.logger.Info("gateway: collection accepted",
		"reference", req.Reference,
		"transaction_uuid", resp.Data.Transaction.UUID,
		"status", resp.Data.Transaction.Status)

	return resp, nil
}

// GetCollectionDetails fetches the current state of a collection by gateway uuid.
func (c *Client) GetCollectionDetails(ctx context.Context, transactionUUID string) (*paymentgatewaytypes.CollectionResponse, error) {
	if strings.TrimSpace(transactionUUID) == "" {
		return nil, &Error{StatusCode: http.StatusBadRequest, Message: "transaction uuid is required", Provider: c.provider}
	}

	endpoint := fmt.Sprintf("%s%s/%s", c.baseURL, collectPath, url.PathEscape(transactionUUID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.requestError(err)
	}

	c.logger.Debug("gateway: fetching collection details", "transaction_uuid", transactionUUID)

	resp, err := c.do(httpReq)
	if err != nil {
		c.logger.Error("gateway: collection detail fetch failed", "transaction_uuid", transactionUUID, "error", err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(httpReq *http.Request) (*paymentgatewaytypes.CollectionResponse, error) {
	httpReq.Header.Set("Authorization", c.authHeader)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, c.transportError(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
			Provider:   c.provider,
		}
	}

	var parsed paymentgatewaytypes.CollectionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{
			StatusCode: http.StatusBadGateway,
			Message:    "gateway returned an unreadable response",
			Provider:   c.provider,
			Err:        err,
		}
	}

	if !strings.EqualFold(parsed.Status, responseSuccess) {
		message := errorMessage(raw, resp.StatusCode)
		return nil, &Error{StatusCode: http.StatusBadGateway, Message: message, Provider: c.provider}
	}

	if parsed.Data.Transaction.UUID == "" {
		return nil, &Error{
			StatusCode: http.StatusBadGateway,
			Message:    "gateway response is missing data.transaction.uuid",
			Provider:   c.provider,
		}
	}

	parsed.Raw = json.RawMessage(raw)
	return &parsed, nil
}

// requestError covers requests that could not be built, usually a bad base URL.
func (c *Client) requestError(err error) *Error {
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Message:    "payment gateway request could not be built",
		Provider:   c.provider,
		Err:        err,
	}
}

func (c *Client) transportError(err error) *Error {
	message := "payment gateway is unreachable"

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		message = "payment gateway timed out"
	}

	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Provider:   c.provider,
		Err:        err,
	}
}

// errorMessage flattens the vendor's field errors into one line, falling back
// to its top-level message and then to the HTTP status text.
func errorMessage(raw []byte, statusCode int) string {
	var body paymentgatewaytypes.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Sprintf("gateway returned %d %s", statusCode, http.StatusText(statusCode))
	}

	if len(body.Errors) > 0 {
		fields := make([]string, 0, len(body.Errors))
		for field := range body.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			msgs := body.Errors[field]
			if len(msgs) == 0 {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, ", ")))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}

	if body.Message != "" {
		return body.Message
	}
	return fmt.Sprintf("gateway returned %d %s", statusCode, http.StatusText(statusCode))
}
