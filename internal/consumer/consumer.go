/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package consumer implements C9: the periodic bounded drain of the result ledger into the
// relational store and the notification broker.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/domain"
	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// LedgerDrainer is the subset of ledger.Ledger the consumer depends on.
type LedgerDrainer interface {
	PopHead(ctx context.Context) (domain.ChargeOutcome, bool, error)
	PushFront(ctx context.Context, outcomes []domain.ChargeOutcome) error
	SetFallback(ctx context.Context, msg domain.FallbackMessage) (string, error)
}

// SubscriptionUpdater is the subset of store.SubscriptionStore the consumer depends on.
type SubscriptionUpdater interface {
	BulkUpdate(ctx context.Context, updates []domain.SubscriptionBulkUpdate) error
}

// BillingEventWriter is the subset of store.BillingEventStore the consumer depends on.
type BillingEventWriter interface {
	CreateMany(ctx context.Context, rows []domain.BillingEvent) error
}

// NotificationSender is the subset of broker.Broker the consumer depends on.
type NotificationSender interface {
	Publish(ctx context.Context, payload domain.NotificationPayload) error
}

// DrainMetrics receives observations about each drain tick.
type DrainMetrics interface {
	ObserveDrainBatch(size int)
	ObservePublishFailure()
}

// Consumer drains the ledger on a fixed interval.
type Consumer struct {
	ledger        LedgerDrainer
	subscriptions SubscriptionUpdater
	billingEvents BillingEventWriter
	broker        NotificationSender
	logger        *slog.Logger
	metrics       DrainMetrics

	maxBatchSize int
	fanOutWidth  int
	now          func() time.Time
}

// New creates a Consumer. metrics may be nil.
func New(ledger LedgerDrainer, subscriptions SubscriptionUpdater, billingEvents BillingEventWriter, broker NotificationSender, metrics DrainMetrics, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		ledger:        ledger,
		subscriptions: subscriptions,
		billingEvents: billingEvents,
		broker:        broker,
		logger:        logger,
		metrics:       metrics,
		maxBatchSize:  constants.ConsumerMaxBatchSize,
		fanOutWidth:   constants.ConsumerFanOutWidth,
		now:           time.Now,
	}
}

// Run starts the fixed-interval drain loop. It blocks until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.ConsumerTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.logger.Error("result consumer tick failed", "error", err)
			}
		}
	}
}

// Tick drains up to maxBatchSize entries and applies them. It is exported so it can be driven
// directly in tests without waiting for the ticker.
func (c *Consumer) Tick(ctx context.Context) error {
	outcomes, err := c.drain(ctx)
	if err != nil {
		c.logger.Error("drain failed, re-queuing entries popped before the failure", "batch_size", len(outcomes), "error", err)
		c.recover(ctx, outcomes)
		return err
	}
	if len(outcomes) == 0 {
		return nil
	}
	if c.metrics != nil {
		c.metrics.ObserveDrainBatch(len(outcomes))
	}

	updates, events, notifications := c.project(outcomes)

	if err := c.subscriptions.BulkUpdate(ctx, updates); err != nil {
		c.logger.Error("bulk update failed, re-queuing drained batch", "batch_size", len(outcomes), "error", err)
		c.recover(ctx, outcomes)
		return err
	}
	if err := c.billingEvents.CreateMany(ctx, events); err != nil {
		c.logger.Error("billing event insert failed, re-queuing drained batch", "batch_size", len(outcomes), "error", err)
		c.recover(ctx, outcomes)
		return err
	}
	c.sendBatch(ctx, notifications)

	return nil
}

// drain pops up to maxBatchSize entries off the ledger. A malformed entry (one PopHead can't
// decode) has already been irrevocably removed by the time PopHead returns it as a SkipError; it
// is logged and skipped, and draining continues so the rest of the batch isn't lost with it. Any
// other error is a real Redis-level failure and aborts the batch, returning what was already
// popped so far.
func (c *Consumer) drain(ctx context.Context) ([]domain.ChargeOutcome, error) {
	var outcomes []domain.ChargeOutcome
	for i := 0; i < c.maxBatchSize; i++ {
		outcome, ok, err := c.ledger.PopHead(ctx)
		if typederrors.IsSkipError(err) {
			c.logger.Warn("skipping malformed ledger entry", "error", err)
			continue
		}
		if err != nil {
			return outcomes, err
		}
		if !ok {
			break
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// recover restores a drained-but-unprocessed batch to the ledger per recovery-gap option (a): the
// entries are pushed back so a later tick reattempts them, rather than being silently lost.
func (c *Consumer) recover(ctx context.Context, outcomes []domain.ChargeOutcome) {
	if err := c.ledger.PushFront(ctx, outcomes); err != nil {
		c.logger.Error("failed to re-queue drained batch after processing failure", "batch_size", len(outcomes), "error", err)
	}
}

func (c *Consumer) project(outcomes []domain.ChargeOutcome) ([]domain.SubscriptionBulkUpdate, []domain.BillingEvent, []domain.NotificationPayload) {
	updates := make([]domain.SubscriptionBulkUpdate, 0, len(outcomes))
	events := make([]domain.BillingEvent, 0, len(outcomes))
	notifications := make([]domain.NotificationPayload, 0, len(outcomes))

	now := c.now()
	for _, o := range outcomes {
		nextBillingAt := now.Add(time.Duration(o.Snapshot.ProductPlan.BillingCycleDays) * 24 * time.Hour)

		update := domain.SubscriptionBulkUpdate{
			SubscriptionID: o.SubscriptionID,
			Success:        o.Success,
			NextBillingAt:  nextBillingAt,
		}
		if o.Success {
			update.SucceededAt = &now
		} else {
			update.FailedAt = &now
		}
		updates = append(updates, update)

		status := constants.BillingEventStatusFail
		if o.Success {
			status = constants.BillingEventStatusOK
		}
		events = append(events, domain.BillingEvent{
			SubscriptionID:     o.SubscriptionID,
			MerchantID:         o.Snapshot.Merchant.MerchantID,
			ProductID:          o.Snapshot.Product.ProductID,
			PlanID:             o.Snapshot.ProductPlan.ProductPlanID,
			PaymentChannelID:   o.Snapshot.PaymentChannel.PaymentChannelID,
			MSISDN:             o.Snapshot.MSISDN,
			PaymentReferenceID: o.PaymentReferenceID,
			EventType:          constants.BillingEventTypeRenewal,
			Status:             status,
			Amount:             o.Snapshot.PlanPricing.BaseAmount,
			Currency:           o.Snapshot.PlanPricing.Currency,
			RequestPayload:     o.RequestPayload,
			ResponsePayload:    o.ResponsePayload,
			ResponseMessage:    o.Message,
			DurationMs:         o.ResponseDurationMs,
			ResponseCode:       o.HTTPStatus,
			CreatedAt:          now,
		})

		eventType := constants.NotificationEventRenewFail
		if o.Success {
			eventType = constants.NotificationEventRenewSuccess
		}
		notifications = append(notifications, domain.NotificationPayload{
			ID:                    o.PaymentReferenceID,
			Source:                constants.NotificationSource,
			SubscriptionID:        o.SubscriptionID,
			MerchantTransactionID: o.Snapshot.MerchantTransactionID,
			Keyword:               o.Snapshot.Product.Name,
			MSISDN:                o.Snapshot.MSISDN,
			PaymentProvider:       o.Snapshot.PaymentChannel.Code,
			EventType:             eventType,
			Amount:                o.Snapshot.PlanPricing.BaseAmount,
			Currency:              o.Snapshot.PlanPricing.Currency,
			BillingCycleDays:      o.Snapshot.ProductPlan.BillingCycleDays,
			Timestamp:             now,
		})
	}

	return updates, events, notifications
}

// sendBatch publishes every notification with bounded fan-out. A notification that cannot be
// handed to the broker is copied into the fallback KV, where the NotificationRetrier (C10) will
// pick it up, so a publish failure here never fails the batch.
func (c *Consumer) sendBatch(ctx context.Context, notifications []domain.NotificationPayload) {
	sem := make(chan struct{}, c.fanOutWidth)
	var wg sync.WaitGroup

	for _, n := range notifications {
		sem <- struct{}{}
		wg.Add(1)
		go func(n domain.NotificationPayload) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := c.broker.Publish(ctx, n); err != nil {
				c.logger.Warn("notification publish failed, routing to fallback", "payload_id", n.ID, "error", err)
				if c.metrics != nil {
					c.metrics.ObservePublishFailure()
				}
				fallback := domain.FallbackMessage{
					NotificationPayload: n,
					FailedAt:            c.now(),
					RetryCount:          0,
				}
				if _, fbErr := c.ledger.SetFallback(ctx, fallback); fbErr != nil {
					c.logger.Error("failed to persist fallback notification", "payload_id", n.ID, "error", fbErr)
				}
			}
		}(n)
	}
	wg.Wait()
}
