/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Rifat79/dcb-renewal-service/internal/domain"
	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// DefaultPageSize is the default limit applied by FindRenewable when the caller does not supply
// one explicitly.
const DefaultPageSize = 10_000

// SubscriptionStore implements C1: cursor-paged reads of renewable subscriptions and the bulk
// status/billing update applied by the ResultConsumer (C9).
type SubscriptionStore struct {
	pool dbConn
}

// NewSubscriptionStore creates a new SubscriptionStore backed by the given pool.
func NewSubscriptionStore(pool dbConn) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// FindRenewable returns subscriptions due for renewal today, strictly ordered ascending by id,
// with id > cursor when cursor is non-nil. limit defaults to DefaultPageSize when <= 0.
func (s *SubscriptionStore) FindRenewable(ctx context.Context, limit int, cursor *int64) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	now := time.Now().UTC()
	windowStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(24*time.Hour - time.Millisecond)

	query := `
SELECT
	s.id, s.subscription_id, s.msisdn, s.status, s.auto_renew, s.next_billing_at,
	s.consent_id, s.merchant_transaction_id, s.payment_channel_reference,
	p.product_id, p.name,
	m.merchant_id, m.name,
	pc.payment_channel_id, pc.code,
	cc.config,
	pp.plan_pricing_id, pp.base_amount, pp.currency,
	ppl.product_plan_id, ppl.billing_cycle_days
FROM subscriptions s
JOIN product p ON p.product_id = s.product_id
JOIN merchant m ON m.merchant_id = s.merchant_id
JOIN payment_channel pc ON pc.payment_channel_id = s.payment_channel_id
LEFT JOIN charging_configurations cc ON cc.subscription_id = s.subscription_id
JOIN plan_pricing pp ON pp.plan_pricing_id = s.plan_pricing_id
JOIN product_plan ppl ON ppl.product_plan_id = s.product_plan_id
WHERE s.auto_renew = true
	AND s.status IN ($1, $2)
	AND s.next_billing_at BETWEEN $3 AND $4
	AND ($5::bigint IS NULL OR s.id > $5)
ORDER BY s.id ASC
LIMIT $6`

	var cursorArg *int64
	if cursor != nil {
		cursorArg = cursor
	}

	rows, err := s.pool.Query(ctx, query,
		"ACTIVE", "SUSPENDED_PAYMENT_FAILED", windowStart, windowEnd, cursorArg, limit)
	if err != nil {
		return nil, typederrors.NewStoreError(err, "failed to query renewable subscriptions")
	}
	defer rows.Close()

	var results []domain.Subscription
	for rows.Next() {
		var (
			sub       domain.Subscription
			rawConfig []byte
		)
		if err := rows.Scan(
			&sub.ID, &sub.SubscriptionID, &sub.MSISDN, &sub.Status, &sub.AutoRenew, &sub.NextBillingAt,
			&sub.ConsentID, &sub.MerchantTransactionID, &sub.PaymentChannelRef,
			&sub.Product.ProductID, &sub.Product.Name,
			&sub.Merchant.MerchantID, &sub.Merchant.Name,
			&sub.PaymentChannel.PaymentChannelID, &sub.PaymentChannel.Code,
			&rawConfig,
			&sub.PlanPricing.PlanPricingID, &sub.PlanPricing.BaseAmount, &sub.PlanPricing.Currency,
			&sub.ProductPlan.ProductPlanID, &sub.ProductPlan.BillingCycleDays,
		); err != nil {
			return nil, typederrors.NewStoreError(err, "failed to scan renewable subscription row")
		}
		sub.ChargingConfig = decodeChargingConfig(rawConfig)
		results = append(results, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, typederrors.NewStoreError(err, "failed while iterating renewable subscriptions")
	}

	return results, nil
}

// BulkUpdate applies status/billing-cycle mutations to every subscription in updates as a single
// atomic statement. An empty slice is a no-op.
func (s *SubscriptionStore) BulkUpdate(ctx context.Context, updates []domain.SubscriptionBulkUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]string, len(updates))
	statuses := make([]string, len(updates))
	succeededAt := make([]*time.Time, len(updates))
	failedAt := make([]*time.Time, len(updates))
	nextBillingAt := make([]time.Time, len(updates))

	for i, u := range updates {
		ids[i] = u.SubscriptionID
		nextBillingAt[i] = u.NextBillingAt
		succeededAt[i] = u.SucceededAt
		failedAt[i] = u.FailedAt
		if u.Success {
			statuses[i] = "ACTIVE"
		} else {
			statuses[i] = "SUSPENDED_PAYMENT_FAILED"
		}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, txErr := tx.Exec(ctx, `
UPDATE subscriptions AS s
SET
	status = v.status,
	last_payment_succeed_at = v.succeeded_at,
	last_payment_failed_at = v.failed_at,
	next_billing_at = v.next_billing_at
FROM (
	SELECT * FROM unnest(
		$1::text[], $2::text[], $3::timestamptz[], $4::timestamptz[], $5::timestamptz[]
	) AS v(subscription_id, status, succeeded_at, failed_at, next_billing_at)
) AS v
WHERE s.subscription_id = v.subscription_id`,
			ids, statuses, succeededAt, failedAt, nextBillingAt)
		return txErr
	})
	if err != nil {
		return typederrors.NewStoreError(err, "failed to bulk update %d subscriptions", len(updates))
	}
	return nil
}

// decodeChargingConfig parses the tagged-variant charging_configurations.config JSON blob. A nil
// or unrecognized blob yields ChargingConfigUnknown, which the worker treats as a documented skip.
func decodeChargingConfig(raw []byte) domain.ChargingConfig {
	if len(raw) == 0 {
		return domain.ChargingConfig{Kind: domain.ChargingConfigUnknown}
	}
	cfg, err := domain.ParseChargingConfig(raw)
	if err != nil {
		return domain.ChargingConfig{Kind: domain.ChargingConfigUnknown}
	}
	return cfg
}
