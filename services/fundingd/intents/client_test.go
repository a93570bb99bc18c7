package intents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateFundingQuoteBuildsProviderPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var captured quoteRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v0/quote" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"correlationId": "corr-1",
			"quote": map[string]interface{}{
				"depositAddress":   "dep-addr",
				"depositMemo":      "memo-1",
				"timeWhenInactive": "2026-03-01T12:05:00Z",
				"amountIn":         "150000000",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekrit", WithClock(func() time.Time { return now }))
	quote, err := client.CreateFundingQuote(context.Background(), QuoteRequest{
		AssetID:   "nep141:btc.omft.near",
		Amount:    "150000000",
		Recipient: "alice.near",
		RefundTo:  "bc1refund",
	})
	if err != nil {
		t.Fatalf("create quote: %v", err)
	}
	if quote.ID != "corr-1" || quote.DepositAddress != "dep-addr" || quote.DepositMemo != "memo-1" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
	if !quote.ExpiresAt.Equal(time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry: %v", quote.ExpiresAt)
	}
	if quote.AmountIn != "150000000" {
		t.Fatalf("unexpected amountIn: %q", quote.AmountIn)
	}
	if captured.SwapType != "EXACT_INPUT" || captured.DepositType != "ORIGIN_CHAIN" ||
		captured.RecipientType != "INTENTS" || captured.RefundType != "ORIGIN_CHAIN" {
		t.Fatalf("unexpected routing fields: %+v", captured)
	}
	if captured.OriginAsset != captured.DestinationAsset {
		t.Fatalf("funding quotes must swap an asset onto itself: %+v", captured)
	}
	if captured.SlippageTolerance != 100 || captured.Dry {
		t.Fatalf("unexpected quote knobs: %+v", captured)
	}
	if captured.Deadline != "2026-03-01T12:10:00Z" {
		t.Fatalf("unexpected deadline: %q", captured.Deadline)
	}
}

func TestCreateFundingQuoteDefaultsExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"correlationId": "corr-2",
			"quote":         map[string]interface{}{"depositAddress": "dep-addr"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", WithClock(func() time.Time { return now }))
	quote, err := client.CreateFundingQuote(context.Background(), QuoteRequest{AssetID: "x", Amount: "1"})
	if err != nil {
		t.Fatalf("create quote: %v", err)
	}
	if !quote.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expected default expiry, got %v", quote.ExpiresAt)
	}
}

func TestGetStatusParsesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/status" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("depositAddress"); got != "dep-addr" {
			t.Fatalf("unexpected depositAddress: %q", got)
		}
		if got := r.URL.Query().Get("depositMemo"); got != "memo-1" {
			t.Fatalf("unexpected depositMemo: %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"correlationId": "corr-1",
			"status":        "SUCCESS",
			"updatedAt":     "2026-03-01T12:04:00Z",
			"quoteResponse": map[string]interface{}{
				"quote": map[string]interface{}{"amountIn": "150000000"},
			},
			"swapDetails": map[string]interface{}{
				"depositedAmount":     "150000000",
				"originChainTxHashes": []map[string]string{{"hash": "0xabc"}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	snapshot, err := client.GetStatus(context.Background(), "dep-addr", "memo-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if snapshot.Status != StatusSuccess {
		t.Fatalf("unexpected status: %v", snapshot.Status)
	}
	if snapshot.QuoteAmountIn != "150000000" {
		t.Fatalf("unexpected quote amountIn: %q", snapshot.QuoteAmountIn)
	}
	if snapshot.Swap == nil || len(snapshot.Swap.OriginChainTxHashes) != 1 || snapshot.Swap.OriginChainTxHashes[0].Hash != "0xabc" {
		t.Fatalf("unexpected swap details: %+v", snapshot.Swap)
	}
}

func TestRequestSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "amount below minimum", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.CreateFundingQuote(context.Background(), QuoteRequest{AssetID: "x", Amount: "1"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status code: %d", httpErr.StatusCode)
	}
	if !IsPermanent(err) {
		t.Fatalf("422 must classify as permanent")
	}
}

func TestIsPermanentClassification(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404, 422} {
		if !IsPermanent(&HTTPError{StatusCode: code}) {
			t.Fatalf("status %d should be permanent", code)
		}
	}
	for _, code := range []int{429, 500, 502, 503} {
		if IsPermanent(&HTTPError{StatusCode: code}) {
			t.Fatalf("status %d should be transient", code)
		}
	}
	if IsPermanent(errors.New("dial tcp: connection refused")) {
		t.Fatalf("network errors are transient")
	}
}

func TestParseStatus(t *testing.T) {
	if got := ParseStatus("success"); got != StatusSuccess {
		t.Fatalf("ParseStatus(success) = %v", got)
	}
	if got := ParseStatus("SOMETHING_NEW"); got != StatusUnknown {
		t.Fatalf("unknown codes must parse to StatusUnknown, got %v", got)
	}
	if !StatusRefunded.Terminal() || StatusProcessing.Terminal() {
		t.Fatalf("terminal classification wrong")
	}
}
