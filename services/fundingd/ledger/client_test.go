package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewSigner("oracle.ledger", ed25519KeyPrefix+base58.Encode(priv))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

type rpcCall struct {
	Method  string
	Params  map[string]interface{}
	Headers http.Header
	Body    []byte
}

// rpcServer decodes JSON-RPC requests and replays canned results per method.
func rpcServer(t *testing.T, results map[string][]string, calls *[]rpcCall) *httptest.Server {
	t.Helper()
	offsets := make(map[string]int)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string                   `json:"method"`
			Params []map[string]interface{} `json:"params"`
			ID     int64                    `json:"id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		var params map[string]interface{}
		if len(req.Params) > 0 {
			params = req.Params[0]
		}
		*calls = append(*calls, rpcCall{Method: req.Method, Params: params, Headers: r.Header.Clone(), Body: body})

		queue := results[req.Method]
		idx := offsets[req.Method]
		result := "null"
		if idx < len(queue) {
			result = queue[idx]
			offsets[req.Method] = idx + 1
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + strconv.FormatInt(req.ID, 10) + `,"result":` + result + `}`))
	}))
}

func TestAwaitingFundingDepositIDsPaginates(t *testing.T) {
	var calls []rpcCall
	srv := rpcServer(t, map[string][]string{
		"get_deposits_by_funding_status": {"[1,2,3]", "[4]"},
	}, &calls)
	defer srv.Close()

	client, err := NewClient(srv.URL, "escrow.ledger", testSigner(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ids, err := client.AwaitingFundingDepositIDs(context.Background(), 3)
	if err != nil {
		t.Fatalf("list awaiting: %v", err)
	}
	if len(ids) != 4 || ids[0] != 1 || ids[3] != 4 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 pages, got %d calls", len(calls))
	}
	if got := calls[1].Params["from_index"]; got != float64(3) {
		t.Fatalf("second page offset = %v", got)
	}
	if got := calls[0].Params["status"]; got != "AwaitingFunding" {
		t.Fatalf("status param = %v", got)
	}
	// Views are unsigned.
	if calls[0].Headers.Get(headerOracleSignature) != "" {
		t.Fatalf("view call unexpectedly signed")
	}
}

func TestFundingRecordNullMapsToNil(t *testing.T) {
	var calls []rpcCall
	srv := rpcServer(t, map[string][]string{"get_deposit_funding": {"null"}}, &calls)
	defer srv.Close()

	client, err := NewClient(srv.URL, "escrow.ledger", testSigner(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	record, err := client.FundingRecord(context.Background(), 7)
	if err != nil {
		t.Fatalf("funding record: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record for ledger null, got %+v", record)
	}
}

func TestFundingRecordDecodes(t *testing.T) {
	var calls []rpcCall
	srv := rpcServer(t, map[string][]string{
		"get_deposit_funding": {`{"asset_id":"nep141:btc.omft.near","refund_to":"bc1refund","quote_id":"q-1","deposit_address":"dep","status":"AwaitingFunding","quote_expires_at_ms":1700000600000,"topup_deadline_at_ms":1700003600000,"quote_generation":2,"funded_amount":"0"}`},
	}, &calls)
	defer srv.Close()

	client, err := NewClient(srv.URL, "escrow.ledger", testSigner(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	record, err := client.FundingRecord(context.Background(), 7)
	if err != nil {
		t.Fatalf("funding record: %v", err)
	}
	if !record.HasLiveQuote() {
		t.Fatalf("expected live quote: %+v", record)
	}
	if record.Status != StatusAwaitingFunding || record.QuoteGeneration != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestConfirmFundingSignsRequest(t *testing.T) {
	var calls []rpcCall
	srv := rpcServer(t, map[string][]string{"oracle_confirm_funding": {"true"}}, &calls)
	defer srv.Close()

	signer := testSigner(t)
	now := time.UnixMilli(1700000000000)
	client, err := NewClient(srv.URL, "escrow.ledger", signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.ConfirmFunding(context.Background(), 7, "q-1", "150000000", "0xabc", "SUCCESS"); err != nil {
		t.Fatalf("confirm funding: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	call := calls[0]
	if call.Params["funded_amount"] != "150000000" || call.Params["origin_tx_hash"] != "0xabc" {
		t.Fatalf("unexpected params: %v", call.Params)
	}
	if got := call.Headers.Get(headerOracleAccount); got != "oracle.ledger" {
		t.Fatalf("oracle account header = %q", got)
	}
	ts, err := strconv.ParseInt(call.Headers.Get(headerOracleTimestamp), 10, 64)
	if err != nil || ts != now.UnixMilli() {
		t.Fatalf("oracle timestamp header = %q", call.Headers.Get(headerOracleTimestamp))
	}
	if !signer.Verify("oracle_confirm_funding", ts, call.Body, call.Headers.Get(headerOracleSignature)) {
		t.Fatalf("signature did not verify")
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"stale quote id"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "escrow.ledger", testSigner(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.MarkQuoteExpired(context.Background(), 7, "q-0")
	if err == nil {
		t.Fatalf("expected rpc error")
	}
}

