package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"fundingbridge/observability"
	"fundingbridge/services/fundingd/intents"
	"fundingbridge/services/fundingd/ledger"
)

// QuoteService is the slice of the provider client the reconciler depends on.
type QuoteService interface {
	CreateFundingQuote(ctx context.Context, req intents.QuoteRequest) (intents.Quote, error)
	GetStatus(ctx context.Context, depositAddress, depositMemo string) (intents.StatusSnapshot, error)
}

// OracleService is the slice of the ledger client the reconciler depends on.
// Every write carries the quote id the reconciler last observed so the ledger
// can reject writes against superseded quotes.
type OracleService interface {
	AwaitingFundingDepositIDs(ctx context.Context, pageSize int) ([]uint64, error)
	FundingRecord(ctx context.Context, depositID uint64) (*ledger.FundingRecord, error)
	Deposit(ctx context.Context, depositID uint64) (*ledger.Deposit, error)
	SetQuote(ctx context.Context, depositID uint64, quoteID, depositAddress, depositMemo string, quoteExpiresAt time.Time) error
	MarkQuoteExpired(ctx context.Context, depositID uint64, quoteID string) error
	ConfirmFunding(ctx context.Context, depositID uint64, quoteID, fundedAmount, originTxHash, providerStatus string) error
	MarkFailed(ctx context.Context, depositID uint64, quoteID, providerStatus, reason string) error
	MarkTopupExpired(ctx context.Context, depositID uint64, quoteID, reason string) error
}

// Config tunes the reconciliation loop.
type Config struct {
	PollInterval   time.Duration
	TickFloor      time.Duration
	PageSize       int
	RotationBuffer time.Duration
}

// TickReport summarises one reconciliation pass.
type TickReport struct {
	RunID       string    `json:"runId"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"startedAt"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Examined    int       `json:"examined"`
	Transitions int       `json:"transitions"`
	Errors      int       `json:"errors"`
}

// Status is a point-in-time snapshot of the loop for the admin API.
type Status struct {
	Running bool       `json:"running"`
	LastRun TickReport `json:"lastRun"`
}

// Reconciler drives deposits out of AwaitingFunding by coordinating the quote
// provider and the ledger oracle. It holds no persistent state of its own and
// is fully resumable from ledger state.
type Reconciler struct {
	cfg     Config
	quotes  QuoteService
	oracle  OracleService
	logger  *slog.Logger
	metrics *observability.FundingdMetrics
	now     func() time.Time
	retry   RetryPolicy

	ticks singleflight.Group

	mu      sync.Mutex
	running bool
	last    TickReport
}

// Option customises the reconciler instance.
type Option func(*Reconciler)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.FundingdMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock sets the function used to derive timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRetryPolicy overrides the shared retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Reconciler) { r.retry = p }
}

// New constructs a reconciler over the supplied clients.
func New(cfg Config, quotes QuoteService, oracle OracleService, opts ...Option) (*Reconciler, error) {
	if quotes == nil {
		return nil, fmt.Errorf("quote service required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle service required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.TickFloor <= 0 {
		cfg.TickFloor = 250 * time.Millisecond
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.RotationBuffer <= 0 {
		cfg.RotationBuffer = 10 * time.Second
	}
	r := &Reconciler{
		cfg:     cfg,
		quotes:  quotes,
		oracle:  oracle,
		logger:  slog.Default(),
		metrics: observability.Fundingd(),
		now:     time.Now,
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run blocks, reconciling on a fixed cadence until the context is cancelled.
// The next pass starts max(TickFloor, PollInterval - elapsed) after the
// previous pass began, so slow passes do not stack a backlog. A pass in
// flight when the context is cancelled runs to completion.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.logger.Info("reconciler started",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Duration("rotation_buffer", r.cfg.RotationBuffer),
		slog.Int("page_size", r.cfg.PageSize))

	for {
		started := r.now()
		if _, _, err := r.runShared(ctx, "interval"); err != nil && ctx.Err() == nil {
			r.logger.Error("tick failed", slog.String("error", err.Error()))
		}

		elapsed := r.now().Sub(started)
		wait := r.cfg.PollInterval - elapsed
		if wait < r.cfg.TickFloor {
			wait = r.cfg.TickFloor
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// TriggerTick runs one reconciliation pass on demand. Concurrent triggers
// coalesce onto the pass already in flight and share its report; the second
// return reports whether the result was reused.
func (r *Reconciler) TriggerTick(ctx context.Context) (TickReport, bool, error) {
	return r.runShared(ctx, "http")
}

// Status reports the loop state for the admin API.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Running: r.running, LastRun: r.last}
}

func (r *Reconciler) runShared(ctx context.Context, trigger string) (TickReport, bool, error) {
	result, err, shared := r.ticks.Do("tick", func() (interface{}, error) {
		report, tickErr := r.Tick(ctx, trigger)
		if tickErr != nil {
			return report, tickErr
		}
		return report, nil
	})
	report, _ := result.(TickReport)
	return report, shared, err
}

// Tick performs one full pass over every deposit awaiting funding. Deposits
// are processed sequentially; a failure on one is logged and counted without
// aborting the rest.
func (r *Reconciler) Tick(ctx context.Context, trigger string) (TickReport, error) {
	started := r.now()
	report := TickReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: started,
	}

	var ids []uint64
	err := r.retry.Do(ctx, func() error {
		var listErr error
		ids, listErr = r.oracle.AwaitingFundingDepositIDs(ctx, r.cfg.PageSize)
		return listErr
	}, nil)
	if err != nil {
		r.metrics.RecordLedgerError()
		r.finishTick(&report, "error", started)
		return report, fmt.Errorf("list awaiting deposits: %w", err)
	}

	for _, depositID := range ids {
		if ctx.Err() != nil {
			break
		}
		report.Examined++
		r.metrics.RecordDepositExamined()
		transitioned, err := r.processDeposit(ctx, depositID)
		if err != nil {
			report.Errors++
			r.logger.Error("deposit processing failed",
				slog.Uint64("deposit_id", depositID),
				slog.String("error", err.Error()))
			continue
		}
		if transitioned {
			report.Transitions++
		}
	}

	r.finishTick(&report, "ok", started)
	return report, nil
}

func (r *Reconciler) finishTick(report *TickReport, outcome string, started time.Time) {
	elapsed := r.now().Sub(started)
	report.ElapsedMs = elapsed.Milliseconds()
	r.metrics.ObserveTick(report.Trigger, outcome, elapsed)
	r.mu.Lock()
	r.last = *report
	r.mu.Unlock()
}
