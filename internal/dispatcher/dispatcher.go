/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher implements C7: the once-daily cursor-paged scan of renewable subscriptions,
// fanning each row out to its operator's delayed job queue.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/domain"
	"github.com/Rifat79/dcb-renewal-service/internal/queue"
)

// SubscriptionFinder is the subset of SubscriptionStore the dispatcher depends on.
type SubscriptionFinder interface {
	FindRenewable(ctx context.Context, limit int, cursor *int64) ([]domain.Subscription, error)
}

// Enqueuer is the subset of queue.Queue the dispatcher depends on, one per operator.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts queue.EnqueueOptions) error
}

// DispatchMetrics receives one observation per renewal job enqueued.
type DispatchMetrics interface {
	ObserveDispatch(operator string)
}

// Dispatcher runs the daily renewal scan.
type Dispatcher struct {
	store     SubscriptionFinder
	queues    map[string]Enqueuer
	logger    *slog.Logger
	pageSize  int
	pageDelay time.Duration
	metrics   DispatchMetrics
}

// New creates a Dispatcher. queues maps a payment_channel.code to the Enqueuer that serves it;
// an operator code absent from the map is a documented skip. metrics may be nil.
func New(store SubscriptionFinder, queues map[string]Enqueuer, metrics DispatchMetrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     store,
		queues:    queues,
		logger:    logger,
		pageSize:  constants.DispatcherPageSize,
		pageDelay: constants.DispatcherPageDelay,
		metrics:   metrics,
	}
}

// Schedule registers the dispatcher to run once daily at DispatcherCronSpec in
// DispatcherTimeZoneName. The entry is wrapped in cron.SkipIfStillRunning, so a trigger that fires
// while the previous run is still in progress is skipped rather than run alongside it.
func (d *Dispatcher) Schedule(c *cron.Cron) (cron.EntryID, error) {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(func() {
		if err := d.Run(context.Background()); err != nil {
			d.logger.Error("dispatcher run failed", "error", err)
		}
	}))
	return c.AddJob(constants.DispatcherCronSpec, job)
}

// Run executes one full cursor-paged scan. Every invocation starts from a fresh cursor. On error,
// the error is returned as is; the cursor reached before the failure is not returned or kept, so
// the next invocation scans from the first page again.
func (d *Dispatcher) Run(ctx context.Context) error {
	var cursor *int64
	var batch int

	for {
		page, err := d.store.FindRenewable(ctx, d.pageSize, cursor)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			d.logger.Info("dispatcher run complete", "batches", batch)
			return nil
		}

		now := time.Now()
		for _, sub := range page {
			d.dispatchOne(ctx, sub, now)
		}

		last := page[len(page)-1].ID
		cursor = &last
		batch++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pageDelay):
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub domain.Subscription, now time.Time) {
	enqueuer, ok := d.queues[sub.PaymentChannel.Code]
	if !ok {
		d.logger.Warn("unknown payment channel, skipping", "subscription_id", sub.SubscriptionID, "code", sub.PaymentChannel.Code)
		return
	}

	delay := sub.NextBillingAt.Sub(now)
	if delay < 0 {
		d.logger.Warn("overdue subscription, clamping delay to zero", "subscription_id", sub.SubscriptionID, "next_billing_at", sub.NextBillingAt)
		delay = 0
	}

	job := domain.RenewalJob{
		SubscriptionID: sub.SubscriptionID,
		Snapshot:       sub,
	}

	err := enqueuer.Enqueue(ctx, job, queue.EnqueueOptions{
		DelayMs:          delay.Milliseconds(),
		JobID:            sub.SubscriptionID,
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	})
	if err != nil {
		d.logger.Error("failed to enqueue renewal job", "subscription_id", sub.SubscriptionID, "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.ObserveDispatch(sub.PaymentChannel.Code)
	}
}
