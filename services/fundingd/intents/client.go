package intents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// defaultQuoteTTL bounds both the quote request deadline sent to the provider
// and the substitute expiry used when the response omits its own.
const defaultQuoteTTL = 10 * time.Minute

const statusBodyLimit = 1 << 20

// HTTPError is returned for any non-success provider response. The status
// code is preserved so callers can classify permanent versus transient
// failures.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider request failed (%d): %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether the error is a provider rejection that will not
// succeed on retry: 400, 401, 403, 404, and 422 responses.
func IsPermanent(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

// QuoteRequest captures the inputs needed to request a funding quote.
type QuoteRequest struct {
	AssetID   string
	Amount    string
	Recipient string
	RefundTo  string
}

// Quote is the provider's answer to a funding quote request: a single-use
// deposit address with an absolute expiry.
type Quote struct {
	ID             string
	DepositAddress string
	DepositMemo    string
	ExpiresAt      time.Time
	AmountIn       string
}

// TxHash wraps a single origin-chain transaction hash.
type TxHash struct {
	Hash string `json:"hash"`
}

// SwapDetails carries the settlement data attached to a status response.
type SwapDetails struct {
	AmountIn            string   `json:"amountIn"`
	DepositedAmount     string   `json:"depositedAmount"`
	OriginChainTxHashes []TxHash `json:"originChainTxHashes"`
	RefundReason        string   `json:"refundReason"`
}

// StatusSnapshot is a point-in-time view of a swap as reported by the
// provider.
type StatusSnapshot struct {
	CorrelationID string
	Status        Status
	UpdatedAt     time.Time
	QuoteAmountIn string
	Swap          *SwapDetails
}

// Client is a stateless wrapper over the provider's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// Option customises the client instance.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimiter throttles outbound provider calls.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithClock sets the function used to derive timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a provider client. The API key is optional; when set
// it is sent as a bearer token on every request.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteRequestBody struct {
	Dry               bool   `json:"dry"`
	SwapType          string `json:"swapType"`
	OriginAsset       string `json:"originAsset"`
	DestinationAsset  string `json:"destinationAsset"`
	Amount            string `json:"amount"`
	Deadline          string `json:"deadline"`
	Recipient         string `json:"recipient"`
	RefundTo          string `json:"refundTo"`
	DepositType       string `json:"depositType"`
	RecipientType     string `json:"recipientType"`
	RefundType        string `json:"refundType"`
	SlippageTolerance int    `json:"slippageTolerance"`
}

type quoteResponseBody struct {
	CorrelationID string `json:"correlationId"`
	Quote         struct {
		DepositAddress   string `json:"depositAddress"`
		DepositMemo      string `json:"depositMemo"`
		Deadline         string `json:"deadline"`
		TimeWhenInactive string `json:"timeWhenInactive"`
		AmountIn         string `json:"amountIn"`
	} `json:"quote"`
}

type statusResponseBody struct {
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	UpdatedAt     string `json:"updatedAt"`
	QuoteResponse *struct {
		Quote *struct {
			AmountIn string `json:"amountIn"`
		} `json:"quote"`
	} `json:"quoteResponse"`
	SwapDetails *SwapDetails `json:"swapDetails"`
}

// CreateFundingQuote requests a fresh single-use deposit address for the
// given asset and amount. Funding quotes route the swap back to the depositor
// on the intents side with refunds returning to the origin chain.
func (c *Client) CreateFundingQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	now := c.now()
	body := quoteRequestBody{
		Dry:               false,
		SwapType:          "EXACT_INPUT",
		OriginAsset:       req.AssetID,
		DestinationAsset:  req.AssetID,
		Amount:            req.Amount,
		Deadline:          now.Add(defaultQuoteTTL).UTC().Format(time.RFC3339),
		Recipient:         req.Recipient,
		RefundTo:          req.RefundTo,
		DepositType:       "ORIGIN_CHAIN",
		RecipientType:     "INTENTS",
		RefundType:        "ORIGIN_CHAIN",
		SlippageTolerance: 100,
	}
	var decoded quoteResponseBody
	if err := c.request(ctx, http.MethodPost, "/v0/quote", body, &decoded); err != nil {
		return Quote{}, err
	}
	expiresAt := parseTimestamp(decoded.Quote.TimeWhenInactive)
	if expiresAt.IsZero() {
		expiresAt = parseTimestamp(decoded.Quote.Deadline)
	}
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultQuoteTTL)
	}
	return Quote{
		ID:             decoded.CorrelationID,
		DepositAddress: decoded.Quote.DepositAddress,
		DepositMemo:    decoded.Quote.DepositMemo,
		ExpiresAt:      expiresAt,
		AmountIn:       decoded.Quote.AmountIn,
	}, nil
}

// GetStatus fetches the current swap state for a deposit address.
func (c *Client) GetStatus(ctx context.Context, depositAddress, depositMemo string) (StatusSnapshot, error) {
	params := url.Values{}
	params.Set("depositAddress", depositAddress)
	if strings.TrimSpace(depositMemo) != "" {
		params.Set("depositMemo", depositMemo)
	}
	var decoded statusResponseBody
	if err := c.request(ctx, http.MethodGet, "/v0/status?"+params.Encode(), nil, &decoded); err != nil {
		return StatusSnapshot{}, err
	}
	snapshot := StatusSnapshot{
		CorrelationID: decoded.CorrelationID,
		Status:        ParseStatus(decoded.Status),
		UpdatedAt:     parseTimestamp(decoded.UpdatedAt),
		Swap:          decoded.SwapDetails,
	}
	if decoded.QuoteResponse != nil && decoded.QuoteResponse.Quote != nil {
		snapshot.QuoteAmountIn = decoded.QuoteResponse.Quote.AmountIn
	}
	return snapshot, nil
}

func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, statusBodyLimit))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseTimestamp(value string) time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
