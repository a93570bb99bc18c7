package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"fundingbridge/services/fundingd/amount"
	"fundingbridge/services/fundingd/intents"
	"fundingbridge/services/fundingd/ledger"
)

// Provider status persisted when quote creation itself is rejected, as
// opposed to a status the provider ever reported.
const statusQuoteCreateFailed = "QUOTE_CREATE_FAILED"

const failureReasonLimit = 180

// processDeposit drives a single deposit one step forward. It re-reads the
// funding record fresh so concurrent external transitions (for example a
// ledger-side cancellation) are always respected. The checks run in a strict
// priority order: the top-up deadline is considered before anything else so a
// slow or erroring provider can never delay expiry.
func (r *Reconciler) processDeposit(ctx context.Context, depositID uint64) (bool, error) {
	var record *ledger.FundingRecord
	err := r.retry.Do(ctx, func() error {
		var readErr error
		record, readErr = r.oracle.FundingRecord(ctx, depositID)
		return readErr
	}, nil)
	if err != nil {
		r.metrics.RecordLedgerError()
		return false, fmt.Errorf("load funding record: %w", err)
	}
	if record == nil || record.Status != ledger.StatusAwaitingFunding {
		return false, nil
	}

	nowMs := r.now().UnixMilli()

	if record.TopupDeadlineAtMs > 0 && nowMs >= record.TopupDeadlineAtMs {
		quoteID := record.QuoteID
		if quoteID == "" {
			quoteID = fmt.Sprintf("expired:%d", depositID)
		}
		if err := r.oracle.MarkTopupExpired(ctx, depositID, quoteID, "top-up deadline reached"); err != nil {
			r.metrics.RecordLedgerError()
			return false, fmt.Errorf("mark topup expired: %w", err)
		}
		r.metrics.RecordTransition("topup_expired")
		r.logger.Info("deposit top-up window expired", slog.Uint64("deposit_id", depositID))
		return true, nil
	}

	if !record.HasLiveQuote() {
		return r.createOrRotateQuote(ctx, depositID, record)
	}

	var snapshot intents.StatusSnapshot
	err = r.retry.Do(ctx, func() error {
		var statusErr error
		snapshot, statusErr = r.quotes.GetStatus(ctx, record.DepositAddress, record.DepositMemo)
		return statusErr
	}, intents.IsPermanent)
	if err != nil {
		r.metrics.RecordProviderError(classifyProviderError(err))
		return false, fmt.Errorf("provider status: %w", err)
	}

	if rotated, err := r.probeScaleMismatch(ctx, depositID, record, snapshot); err != nil {
		return false, err
	} else if rotated {
		return true, nil
	}

	switch snapshot.Status {
	case intents.StatusSuccess:
		return r.confirmFunding(ctx, depositID, record, snapshot)

	case intents.StatusFailed, intents.StatusRefunded:
		reason := ""
		if snapshot.Swap != nil {
			reason = snapshot.Swap.RefundReason
		}
		if reason == "" {
			reason = fmt.Sprintf("provider status: %s", snapshot.Status)
		}
		if err := r.oracle.MarkFailed(ctx, depositID, record.QuoteID, snapshot.Status.String(), reason); err != nil {
			r.metrics.RecordLedgerError()
			return false, fmt.Errorf("mark failed: %w", err)
		}
		r.metrics.RecordTransition("failed")
		r.logger.Info("deposit funding failed",
			slog.Uint64("deposit_id", depositID),
			slog.String("provider_status", snapshot.Status.String()),
			slog.String("reason", reason))
		return true, nil

	case intents.StatusIncompleteDeposit:
		// A passed deadline already returned above, so the only decision left
		// is whether the partially funded quote is worth rotating.
		if r.quoteNearExpiry(record, nowMs) {
			return r.expireAndRotate(ctx, depositID, record)
		}
		return false, nil

	case intents.StatusProcessing:
		// A deposit was detected and is settling; rotating now would orphan
		// the provider's tracking.
		return false, nil

	default:
		if r.quoteNearExpiry(record, nowMs) {
			return r.expireAndRotate(ctx, depositID, record)
		}
		return false, nil
	}
}

// probeScaleMismatch self-heals quotes issued before the unit-scale fix: a
// pending quote whose quoted input amount diverges wildly from the deposit's
// expected amount is expired and replaced before anyone can pay into it.
func (r *Reconciler) probeScaleMismatch(ctx context.Context, depositID uint64, record *ledger.FundingRecord, snapshot intents.StatusSnapshot) (bool, error) {
	if snapshot.Status != intents.StatusPendingDeposit {
		return false, nil
	}
	deposited := "0"
	if snapshot.Swap != nil {
		deposited = amount.Normalize(snapshot.Swap.DepositedAmount)
	}
	if deposited != "0" {
		return false, nil
	}
	quoted := amount.Normalize(snapshot.QuoteAmountIn)
	if quoted == "0" {
		return false, nil
	}
	deposit, err := r.loadDeposit(ctx, depositID)
	if err != nil {
		return false, err
	}
	if deposit == nil {
		return false, nil
	}
	expected, _ := amount.NormalizeForAsset(deposit.TotalDeposit, record.AssetID)
	if expected == "0" || !amount.IsLargeMismatch(expected, quoted) {
		return false, nil
	}
	r.logger.Warn("stale quote amount detected, rotating",
		slog.Uint64("deposit_id", depositID),
		slog.String("quoted", quoted),
		slog.String("expected", expected))
	return r.expireAndRotate(ctx, depositID, record)
}

func (r *Reconciler) confirmFunding(ctx context.Context, depositID uint64, record *ledger.FundingRecord, snapshot intents.StatusSnapshot) (bool, error) {
	deposit, err := r.loadDeposit(ctx, depositID)
	if err != nil {
		return false, err
	}
	fallback := "0"
	if deposit != nil {
		fallback = amount.Normalize(deposit.TotalDeposit)
	}
	var depositedAmount, swapAmountIn string
	if snapshot.Swap != nil {
		depositedAmount = snapshot.Swap.DepositedAmount
		swapAmountIn = snapshot.Swap.AmountIn
	}
	funded := amount.PickPositive(
		amount.Normalize(depositedAmount),
		amount.Normalize(swapAmountIn),
		amount.Normalize(snapshot.QuoteAmountIn),
		fallback,
	)
	if funded == "0" {
		// Nothing trustworthy to write; leave the record alone and let the
		// next pass try again once the provider fills in the amounts.
		r.logger.Warn("success status without a positive amount",
			slog.Uint64("deposit_id", depositID))
		return false, nil
	}
	originTxHash := r.deriveOriginTxHash(snapshot)
	if err := r.oracle.ConfirmFunding(ctx, depositID, record.QuoteID, funded, originTxHash, snapshot.Status.String()); err != nil {
		r.metrics.RecordLedgerError()
		return false, fmt.Errorf("confirm funding: %w", err)
	}
	r.metrics.RecordTransition("funded")
	r.logger.Info("deposit funded",
		slog.Uint64("deposit_id", depositID),
		slog.String("funded_amount", funded),
		slog.String("origin_tx_hash", originTxHash))
	return true, nil
}

// expireAndRotate retires the current quote and immediately requests a
// replacement. The ledger bumps the quote generation; the top-up deadline is
// never touched on rotation.
func (r *Reconciler) expireAndRotate(ctx context.Context, depositID uint64, record *ledger.FundingRecord) (bool, error) {
	if err := r.oracle.MarkQuoteExpired(ctx, depositID, record.QuoteID); err != nil {
		r.metrics.RecordLedgerError()
		return false, fmt.Errorf("mark quote expired: %w", err)
	}
	r.metrics.RecordTransition("quote_expired")
	return r.createOrRotateQuote(ctx, depositID, record)
}

func (r *Reconciler) createOrRotateQuote(ctx context.Context, depositID uint64, record *ledger.FundingRecord) (bool, error) {
	deposit, err := r.loadDeposit(ctx, depositID)
	if err != nil {
		return false, err
	}
	if deposit == nil {
		return false, nil
	}
	expected, adjusted := amount.NormalizeForAsset(deposit.TotalDeposit, record.AssetID)
	if expected == "0" {
		r.logger.Warn("deposit has zero expected amount, skipping quote",
			slog.Uint64("deposit_id", depositID),
			slog.String("asset_id", record.AssetID))
		return false, nil
	}
	if adjusted {
		r.logger.Info("legacy-scaled amount corrected",
			slog.Uint64("deposit_id", depositID),
			slog.String("asset_id", record.AssetID),
			slog.String("amount", expected))
	}

	var quote intents.Quote
	err = r.retry.Do(ctx, func() error {
		var quoteErr error
		quote, quoteErr = r.quotes.CreateFundingQuote(ctx, intents.QuoteRequest{
			AssetID:   record.AssetID,
			Amount:    expected,
			Recipient: deposit.Depositor,
			RefundTo:  record.RefundTo,
		})
		return quoteErr
	}, intents.IsPermanent)
	if err != nil {
		if intents.IsPermanent(err) {
			r.metrics.RecordProviderError("permanent")
			quoteID := record.QuoteID
			if quoteID == "" {
				quoteID = fmt.Sprintf("quote-create:%d", depositID)
			}
			if markErr := r.oracle.MarkFailed(ctx, depositID, quoteID, statusQuoteCreateFailed, summarizeError(err)); markErr != nil {
				r.metrics.RecordLedgerError()
				return false, fmt.Errorf("mark failed after quote rejection: %w", markErr)
			}
			r.metrics.RecordTransition("failed")
			r.logger.Warn("quote creation rejected by provider",
				slog.Uint64("deposit_id", depositID),
				slog.String("error", summarizeError(err)))
			return true, nil
		}
		r.metrics.RecordProviderError("transient")
		return false, fmt.Errorf("create quote: %w", err)
	}

	if err := r.oracle.SetQuote(ctx, depositID, quote.ID, quote.DepositAddress, quote.DepositMemo, quote.ExpiresAt); err != nil {
		r.metrics.RecordLedgerError()
		return false, fmt.Errorf("set quote: %w", err)
	}
	r.metrics.RecordTransition("quote_set")
	r.logger.Info("quote issued",
		slog.Uint64("deposit_id", depositID),
		slog.String("quote_id", quote.ID),
		slog.Time("expires_at", quote.ExpiresAt))
	return true, nil
}

func (r *Reconciler) loadDeposit(ctx context.Context, depositID uint64) (*ledger.Deposit, error) {
	var deposit *ledger.Deposit
	err := r.retry.Do(ctx, func() error {
		var readErr error
		deposit, readErr = r.oracle.Deposit(ctx, depositID)
		return readErr
	}, nil)
	if err != nil {
		r.metrics.RecordLedgerError()
		return nil, fmt.Errorf("load deposit: %w", err)
	}
	return deposit, nil
}

// quoteNearExpiry reports whether the quote falls inside its rotation buffer.
// Rotation happens before hard expiry so there is no window where the
// provider has discarded a quote the ledger still believes is live.
func (r *Reconciler) quoteNearExpiry(record *ledger.FundingRecord, nowMs int64) bool {
	if record.QuoteExpiresAtMs <= 0 {
		return false
	}
	return nowMs+r.cfg.RotationBuffer.Milliseconds() >= record.QuoteExpiresAtMs
}

func (r *Reconciler) deriveOriginTxHash(snapshot intents.StatusSnapshot) string {
	if snapshot.Swap != nil {
		for _, tx := range snapshot.Swap.OriginChainTxHashes {
			if tx.Hash != "" {
				return tx.Hash
			}
		}
	}
	if snapshot.CorrelationID != "" {
		return "correlation:" + snapshot.CorrelationID
	}
	return fmt.Sprintf("unknown:%d", r.now().UnixMilli())
}

func classifyProviderError(err error) string {
	if intents.IsPermanent(err) {
		return "permanent"
	}
	return "transient"
}

func summarizeError(err error) string {
	if err == nil {
		return "unknown error"
	}
	message := err.Error()
	if len(message) <= failureReasonLimit {
		return message
	}
	return message[:failureReasonLimit-3] + "..."
}
