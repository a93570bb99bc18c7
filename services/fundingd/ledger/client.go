package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Header names carrying the oracle identity on privileged calls.
const (
	headerOracleAccount   = "X-Oracle-Account"
	headerOracleTimestamp = "X-Oracle-Timestamp"
	headerOracleSignature = "X-Oracle-Signature"
)

// Client is a thin JSON-RPC client for the escrow ledger. Views are plain
// reads; oracle_* methods are signed with the configured oracle identity and
// each maps to exactly one ledger state transition.
type Client struct {
	rpcURL     string
	contractID string
	signer     *Signer
	http       *http.Client
	now        func() time.Time
	nextID     atomic.Int64
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

// WithClock sets the function used to timestamp signed calls.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a ledger client bound to one contract and one oracle
// identity.
func NewClient(rpcURL, contractID string, signer *Signer, opts ...Option) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("ledger rpc url required")
	}
	if strings.TrimSpace(contractID) == "" {
		return nil, fmt.Errorf("ledger contract id required")
	}
	if signer == nil {
		return nil, fmt.Errorf("oracle signer required")
	}
	c := &Client{
		rpcURL:     strings.TrimSpace(rpcURL),
		contractID: strings.TrimSpace(contractID),
		signer:     signer,
		http:       &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AwaitingFundingDepositIDs pages through the ledger until a short page is
// returned and collects every deposit id still awaiting funding.
func (c *Client) AwaitingFundingDepositIDs(ctx context.Context, pageSize int) ([]uint64, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	ids := make([]uint64, 0, pageSize)
	offset := 0
	for {
		var page []uint64
		params := map[string]interface{}{
			"contract_id": c.contractID,
			"status":      string(StatusAwaitingFunding),
			"from_index":  offset,
			"limit":       pageSize,
		}
		if err := c.view(ctx, "get_deposits_by_funding_status", params, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		ids = append(ids, page...)
		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}
	return ids, nil
}

// FundingRecord loads the funding sub-state for a deposit. A ledger null maps
// to a nil record, not an error.
func (c *Client) FundingRecord(ctx context.Context, depositID uint64) (*FundingRecord, error) {
	var record *FundingRecord
	params := map[string]interface{}{"contract_id": c.contractID, "deposit_id": depositID}
	if err := c.view(ctx, "get_deposit_funding", params, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// Deposit loads the core deposit view. A ledger null maps to a nil deposit.
func (c *Client) Deposit(ctx context.Context, depositID uint64) (*Deposit, error) {
	var deposit *Deposit
	params := map[string]interface{}{"contract_id": c.contractID, "deposit_id": depositID}
	if err := c.view(ctx, "get_deposit", params, &deposit); err != nil {
		return nil, err
	}
	return deposit, nil
}

// SetQuote records a freshly issued quote against the deposit. The ledger
// bumps the quote generation and rejects writes for superseded quotes.
func (c *Client) SetQuote(ctx context.Context, depositID uint64, quoteID, depositAddress, depositMemo string, quoteExpiresAt time.Time) error {
	params := map[string]interface{}{
		"contract_id":         c.contractID,
		"deposit_id":          depositID,
		"quote_id":            quoteID,
		"deposit_address":     depositAddress,
		"quote_expires_at_ms": quoteExpiresAt.UnixMilli(),
	}
	if strings.TrimSpace(depositMemo) != "" {
		params["deposit_memo"] = depositMemo
	}
	return c.change(ctx, "oracle_set_quote", params)
}

// MarkQuoteExpired retires a quote the provider will no longer honour.
func (c *Client) MarkQuoteExpired(ctx context.Context, depositID uint64, quoteID string) error {
	return c.change(ctx, "oracle_mark_quote_expired", map[string]interface{}{
		"contract_id": c.contractID,
		"deposit_id":  depositID,
		"quote_id":    quoteID,
	})
}

// ConfirmFunding transitions the deposit to Funded with the settled amount.
func (c *Client) ConfirmFunding(ctx context.Context, depositID uint64, quoteID, fundedAmount, originTxHash, providerStatus string) error {
	return c.change(ctx, "oracle_confirm_funding", map[string]interface{}{
		"contract_id":     c.contractID,
		"deposit_id":      depositID,
		"quote_id":        quoteID,
		"funded_amount":   fundedAmount,
		"origin_tx_hash":  originTxHash,
		"provider_status": providerStatus,
	})
}

// MarkFailed transitions the deposit to Failed with a persisted reason.
func (c *Client) MarkFailed(ctx context.Context, depositID uint64, quoteID, providerStatus, reason string) error {
	return c.change(ctx, "oracle_mark_failed", map[string]interface{}{
		"contract_id":     c.contractID,
		"deposit_id":      depositID,
		"quote_id":        quoteID,
		"provider_status": providerStatus,
		"reason":          reason,
	})
}

// MarkTopupExpired transitions the deposit to TopUpExpired.
func (c *Client) MarkTopupExpired(ctx context.Context, depositID uint64, quoteID, reason string) error {
	return c.change(ctx, "oracle_mark_topup_expired", map[string]interface{}{
		"contract_id": c.contractID,
		"deposit_id":  depositID,
		"quote_id":    quoteID,
		"reason":      reason,
	})
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) view(ctx context.Context, method string, params, out interface{}) error {
	return c.call(ctx, method, params, out, false)
}

func (c *Client) change(ctx context.Context, method string, params interface{}) error {
	return c.call(ctx, method, params, nil, true)
}

func (c *Client) call(ctx context.Context, method string, params, out interface{}, signed bool) error {
	id := c.nextID.Add(1)
	buf, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{params},
		ID:      id,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		timestampMs := c.now().UnixMilli()
		req.Header.Set(headerOracleAccount, c.signer.AccountID())
		req.Header.Set(headerOracleTimestamp, strconv.FormatInt(timestampMs, 10))
		req.Header.Set(headerOracleSignature, c.signer.Sign(method, timestampMs, buf))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("ledger rpc %s failed: status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("ledger rpc %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ledger rpc %s error: %s", method, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("ledger rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
