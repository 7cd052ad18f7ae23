/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package worker implements C8: the per-operator job handler that turns a dequeued renewal job
// into a gateway charge attempt, applies the same-day re-queue policy, and appends the outcome to
// the result ledger.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/domain"
	"github.com/Rifat79/dcb-renewal-service/internal/gateway"
	"github.com/Rifat79/dcb-renewal-service/internal/ledger"
	"github.com/Rifat79/dcb-renewal-service/internal/queue"
	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// Requeuer is the subset of queue.Queue a worker uses to schedule a same-day retry. Requeue (not
// Enqueue) is used deliberately: the worker calls it synchronously from inside Handle, while its
// own job_id is still marked running in the queue's dedup state, and Enqueue would no-op against
// that state.
type Requeuer interface {
	Requeue(ctx context.Context, payload any, opts queue.EnqueueOptions) error
}

// OutcomeAppender is the subset of ledger.Ledger a worker uses to record a terminal outcome.
type OutcomeAppender interface {
	PushTail(ctx context.Context, outcome domain.ChargeOutcome) error
}

// ChargeMetrics receives one observation per completed charge attempt.
type ChargeMetrics interface {
	ObserveCharge(operator, outcome string)
}

// OperatorWorker handles renewal jobs for a single operator.
type OperatorWorker struct {
	operator     string
	client       gateway.Client
	requeuer     Requeuer
	ledger       OutcomeAppender
	logger       *slog.Logger
	allowRequeue bool
	now          func() time.Time
	location     *time.Location
	metrics      ChargeMetrics
}

// New creates an OperatorWorker. allowRequeue controls the in-day re-queue policy: true for GP
// and structurally similar operators, false for ROBI. loc is the timezone the re-queue midnight
// boundary is computed in (constants.DispatcherTimeZoneName, the same zone the dispatcher's cron
// schedule runs in); a nil loc falls back to UTC. metrics may be nil.
func New(operator string, client gateway.Client, requeuer Requeuer, ledger OutcomeAppender, allowRequeue bool, loc *time.Location, metrics ChargeMetrics, logger *slog.Logger) *OperatorWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OperatorWorker{
		operator:     operator,
		client:       client,
		requeuer:     requeuer,
		ledger:       ledger,
		logger:       logger,
		allowRequeue: allowRequeue,
		now:          time.Now,
		location:     loc,
		metrics:      metrics,
	}
}

// Handle is the queue.Handler this worker registers with its operator's Queue.
func (w *OperatorWorker) Handle(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("operator worker panic recovered", "operator", w.operator, "panic", r)
			err = typederrors.NewGatewayError(nil, "panic handling renewal job: %v", r)
		}
	}()

	var job domain.RenewalJob
	if unmarshalErr := json.Unmarshal(payload, &job); unmarshalErr != nil {
		return typederrors.NewGatewayError(unmarshalErr, "failed to decode renewal job")
	}

	paymentReferenceID := uuid.NewString()
	sub := job.Snapshot

	req, buildErr := w.buildChargeRequest(sub, paymentReferenceID)
	if typederrors.IsSkipError(buildErr) {
		w.logger.Warn("skipping renewal job, missing required operator config", "subscription_id", sub.SubscriptionID, "operator", w.operator)
		return nil
	}
	if buildErr != nil {
		return buildErr
	}

	result, chargeErr := w.client.Charge(ctx, req)
	if chargeErr != nil {
		return chargeErr
	}

	if w.metrics != nil {
		outcomeLabel := "success"
		if !result.Success {
			outcomeLabel = "failure"
		}
		w.metrics.ObserveCharge(w.operator, outcomeLabel)
	}

	if !result.Success && w.allowRequeue {
		w.maybeRequeue(ctx, job)
	}

	outcome := w.buildOutcome(sub, paymentReferenceID, result)
	if err := w.ledger.PushTail(ctx, outcome); err != nil {
		return err
	}
	return nil
}

func (w *OperatorWorker) buildChargeRequest(sub domain.Subscription, paymentReferenceID string) (gateway.ChargeRequest, error) {
	amount := sub.PlanPricing.BaseAmount
	currency := sub.PlanPricing.Currency
	if currency == "" {
		currency = "BDT"
	}

	req := gateway.ChargeRequest{
		SubscriptionID:        sub.SubscriptionID,
		MSISDN:                sub.MSISDN,
		ProductID:             sub.Product.ProductID,
		ConsentID:             sub.ConsentID,
		MerchantTransactionID: sub.MerchantTransactionID,
		PaymentChannelRef:     sub.PaymentChannelRef,
		Amount:                amount,
		Currency:              currency,
		BillingCycleDays:      sub.ProductPlan.BillingCycleDays,
		PaymentReferenceID:    paymentReferenceID,
	}

	switch sub.ChargingConfig.Kind {
	case domain.ChargingConfigGP:
		if sub.ChargingConfig.GP != nil {
			req.GPKeyword = sub.ChargingConfig.GP.Keyword
		}
	case domain.ChargingConfigRobi:
		if sub.ChargingConfig.Robi == nil {
			return gateway.ChargeRequest{}, typederrors.NewSkipError("missing ROBI charging configuration for subscription %s", sub.SubscriptionID)
		}
		cfg := sub.ChargingConfig.Robi
		req.RobiAPIKey = cfg.APIKey
		req.RobiUsername = cfg.Username
		req.RobiOnBehalfOf = cfg.OnBehalfOf
		req.RobiPurchaseCategory = cfg.PurchaseCategoryCode
		req.RobiChannel = cfg.Channel
		req.RobiSubscriptionID = cfg.SubscriptionID
		req.RobiUnsubscribeURL = cfg.UnsubscribeURL
		req.RobiContactInfo = cfg.ContactInfo
	default:
		if w.operator == constants.OperatorRobi || w.operator == constants.OperatorRobiMife {
			return gateway.ChargeRequest{}, typederrors.NewSkipError("missing charging configuration for subscription %s", sub.SubscriptionID)
		}
	}

	return req, nil
}

// maybeRequeue implements the same-day re-queue policy: a failed charge at local time h produces
// a re-queue only if h + 8h lands before the next local midnight, local meaning w.location
// (Asia/Dhaka in production), not whatever zone w.now() happens to return.
func (w *OperatorWorker) maybeRequeue(ctx context.Context, job domain.RenewalJob) {
	now := w.now().In(w.location)
	retryTime := now.Add(constants.RequeueDelay)
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.location).AddDate(0, 0, 1)

	if !retryTime.Before(nextMidnight) {
		return
	}

	err := w.requeuer.Requeue(ctx, job, queue.EnqueueOptions{
		DelayMs:          constants.RequeueDelay.Milliseconds(),
		JobID:            job.SubscriptionID,
		RemoveOnComplete: true,
		RemoveOnFail:     true,
	})
	if err != nil {
		w.logger.Error("failed to re-queue renewal job", "subscription_id", job.SubscriptionID, "error", err)
	}
}

func (w *OperatorWorker) buildOutcome(sub domain.Subscription, paymentReferenceID string, result gateway.Result) domain.ChargeOutcome {
	outcome := domain.ChargeOutcome{
		SubscriptionID:     sub.SubscriptionID,
		Snapshot:           sub,
		Timestamp:          w.now(),
		Success:            result.Success,
		PaymentReferenceID: paymentReferenceID,
		HTTPStatus:         result.HTTPStatus,
		RequestPayload:     result.RequestPayload,
		ResponsePayload:    result.ResponsePayload,
		ResponseDurationMs: result.DurationMs,
	}
	if result.Error != nil {
		outcome.Error = &domain.ChargeError{Code: result.Error.Code, Message: result.Error.Message}
		outcome.Message = result.Error.Message
	}
	return outcome
}
