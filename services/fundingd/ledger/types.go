package ledger

// FundingStatus enumerates the funding lifecycle states persisted on the
// ledger. AwaitingFunding is the only state the reconciler acts on; the four
// others are terminal.
type FundingStatus string

const (
	StatusAwaitingFunding FundingStatus = "AwaitingFunding"
	StatusFunded          FundingStatus = "Funded"
	StatusTopUpExpired    FundingStatus = "TopUpExpired"
	StatusFailed          FundingStatus = "Failed"
	StatusCancelled       FundingStatus = "Cancelled"
)

// Terminal reports whether the reconciler must never write to a record in
// this state again.
func (s FundingStatus) Terminal() bool {
	switch s {
	case StatusFunded, StatusTopUpExpired, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// FundingRecord mirrors the per-deposit funding sub-state returned by the
// ledger's get_deposit_funding view. Timestamps are epoch milliseconds, the
// ledger's native unit.
type FundingRecord struct {
	AssetID            string        `json:"asset_id"`
	RefundTo           string        `json:"refund_to"`
	QuoteID            string        `json:"quote_id"`
	DepositAddress     string        `json:"deposit_address"`
	DepositMemo        string        `json:"deposit_memo"`
	QuoteExpiresAtMs   int64         `json:"quote_expires_at_ms"`
	QuoteGeneration    uint64        `json:"quote_generation"`
	FundingStartedAtMs int64         `json:"funding_started_at_ms"`
	TopupDeadlineAtMs  int64         `json:"topup_deadline_at_ms"`
	Status             FundingStatus `json:"status"`
	FundedAmount       string        `json:"funded_amount"`
	OriginTxHash       string        `json:"origin_tx_hash"`
	LastProviderStatus string        `json:"last_provider_status"`
	FailureReason      string        `json:"failure_reason"`
	UpdatedAtMs        int64         `json:"updated_at_ms"`
}

// HasLiveQuote reports whether the record carries a quote the provider could
// still honour. Expiry is checked separately by the reconciler.
func (r *FundingRecord) HasLiveQuote() bool {
	return r != nil && r.QuoteID != "" && r.DepositAddress != ""
}

// Deposit mirrors the ledger's core deposit view. The reconciler treats it as
// read-only.
type Deposit struct {
	ID             uint64   `json:"deposit_id"`
	Depositor      string   `json:"depositor"`
	AssetID        string   `json:"token"`
	TotalDeposit   string   `json:"total_deposit"`
	Remaining      string   `json:"remaining_deposits"`
	PaymentMethods []string `json:"payment_methods"`
}
