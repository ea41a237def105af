// Package reminders sends activation reminder emails to accounts that signed
// up but never confirmed their address.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	jobmetrics "github.com/odyssey-erp/accountkit/internal/jobs"
)

// JobName labels the reminder job in logs and metrics.
const JobName = "activation_reminders"

const (
	defaultMinAge      = 24 * time.Hour
	defaultResendAfter = 7 * 24 * time.Hour
	defaultBatchSize   = 100
	defaultConcurrency = 4
)

// Store selects reminder candidates and records sent reminders.
type Store interface {
	ListPendingActivations(ctx context.Context, filter accounts.PendingFilter) ([]accounts.PendingActivation, error)
	MarkReminderSent(ctx context.Context, associationID int64, at time.Time) error
}

// BatchConfig tunes one reminder batch.
type BatchConfig struct {
	// MinAge skips signups younger than this.
	MinAge time.Duration
	// ResendAfter is the minimum gap between two reminders to one address.
	ResendAfter time.Duration
	BatchSize   int
	// Concurrency bounds parallel dispatches.
	Concurrency int
	// Domain builds the activation link.
	Domain  string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Clock   func() time.Time
}

// Result summarises one batch.
type Result struct {
	Selected int
	Sent     int
	Failed   int
}

// Batch selects pending activations and reminds each owner once.
type Batch struct {
	store    Store
	notifier accounts.ActivationNotifier
	cfg      BatchConfig
}

// NewBatch constructs a Batch, filling unset tunables with defaults.
func NewBatch(store Store, notifier accounts.ActivationNotifier, cfg BatchConfig) *Batch {
	if cfg.MinAge <= 0 {
		cfg.MinAge = defaultMinAge
	}
	if cfg.ResendAfter <= 0 {
		cfg.ResendAfter = defaultResendAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Batch{store: store, notifier: notifier, cfg: cfg}
}

// Execute sends one batch of reminders. Failures for single recipients are
// logged and counted; only a failed selection aborts the batch.
func (b *Batch) Execute(ctx context.Context) (Result, error) {
	now := b.cfg.Clock()
	pending, err := b.store.ListPendingActivations(ctx, accounts.PendingFilter{
		CreatedBefore:  now.Add(-b.cfg.MinAge),
		RemindedBefore: now.Add(-b.cfg.ResendAfter),
		Limit:          b.cfg.BatchSize,
	})
	if err != nil {
		return Result{}, fmt.Errorf("reminders: select pending activations: %w", err)
	}

	result := Result{Selected: len(pending)}
	var mu sync.Mutex
	record := func(ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i := range pending {
		p := pending[i]
		g.Go(func() error {
			record(b.remind(gctx, p, now))
			return nil
		})
	}
	_ = g.Wait()

	b.cfg.Metrics.AddItems(JobName, jobmetrics.OutcomeSent, result.Sent)
	b.cfg.Metrics.AddItems(JobName, jobmetrics.OutcomeFailed, result.Failed)
	return result, ctx.Err()
}

func (b *Batch) remind(ctx context.Context, p accounts.PendingActivation, now time.Time) bool {
	logger := b.cfg.Logger.With(
		slog.Int64("account_id", p.Account.ID),
		slog.Int64("association_id", p.Association.ID),
	)
	if err := ctx.Err(); err != nil {
		return false
	}
	err := b.notifier.SendActivation(ctx, accounts.Activation{
		Account:     &p.Account,
		Association: &p.Association,
		Domain:      b.cfg.Domain,
		Reminder:    true,
	})
	if err != nil {
		logger.Warn("send activation reminder", slog.Any("error", err))
		return false
	}
	if err := b.store.MarkReminderSent(ctx, p.Association.ID, now); err != nil {
		logger.Warn("mark reminder sent", slog.Any("error", err))
		return false
	}
	return true
}

// Run executes a batch and logs its summary. It matches the Job signature.
func (b *Batch) Run(ctx context.Context) error {
	result, err := b.Execute(ctx)
	if err != nil {
		return err
	}
	b.cfg.Logger.Info("activation reminders sent",
		slog.Int("selected", result.Selected),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
	)
	return nil
}
