/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Rifat79/dcb-renewal-service/internal/domain"
	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// copyFromThreshold is the batch size above which CreateMany uses pgx.CopyFrom instead of a
// multi-row INSERT. Below this size the round-trip overhead of COPY outweighs its throughput
// advantage.
const copyFromThreshold = 50

var billingEventColumns = []string{
	"subscription_id", "merchant_id", "product_id", "plan_id", "payment_channel_id",
	"msisdn", "payment_reference_id", "event_type", "status", "amount", "currency",
	"request_payload", "response_payload", "response_message", "duration_ms", "response_code",
	"created_at",
}

// BillingEventStore implements C2: the atomic bulk append of terminal charge outcomes.
type BillingEventStore struct {
	pool dbConn
}

// NewBillingEventStore creates a new BillingEventStore backed by the given pool.
func NewBillingEventStore(pool dbConn) *BillingEventStore {
	return &BillingEventStore{pool: pool}
}

// CreateMany inserts every row in rows as a single atomic batch. A uniqueness violation (rows
// are not expected to collide since payment_reference_id is a fresh UUID per attempt) fails the
// whole batch, matching the "no silent partial application" contract of C1/C2.
func (s *BillingEventStore) CreateMany(ctx context.Context, rows []domain.BillingEvent) error {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) >= copyFromThreshold {
		return s.createManyByCopy(ctx, rows)
	}
	return s.createManyByInsert(ctx, rows)
}

func (s *BillingEventStore) createManyByCopy(ctx context.Context, rows []domain.BillingEvent) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		source := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.SubscriptionID, r.MerchantID, r.ProductID, r.PlanID, r.PaymentChannelID,
				r.MSISDN, r.PaymentReferenceID, r.EventType, r.Status, r.Amount, r.Currency,
				r.RequestPayload, r.ResponsePayload, r.ResponseMessage, r.DurationMs, r.ResponseCode,
				r.CreatedAt,
			}, nil
		})
		_, copyErr := tx.CopyFrom(ctx, pgx.Identifier{"billing_events"}, billingEventColumns, source)
		return copyErr
	})
	if err != nil {
		return typederrors.NewStoreError(err, "failed to copy-insert %d billing events", len(rows))
	}
	return nil
}

func (s *BillingEventStore) createManyByInsert(ctx context.Context, rows []domain.BillingEvent) error {
	query := `
INSERT INTO billing_events (
	subscription_id, merchant_id, product_id, plan_id, payment_channel_id,
	msisdn, payment_reference_id, event_type, status, amount, currency,
	request_payload, response_payload, response_message, duration_ms, response_code,
	created_at
) SELECT * FROM unnest(
	$1::text[], $2::text[], $3::text[], $4::text[], $5::text[],
	$6::text[], $7::text[], $8::text[], $9::text[], $10::numeric[], $11::text[],
	$12::text[], $13::text[], $14::text[], $15::bigint[], $16::int[],
	$17::timestamptz[]
)`

	n := len(rows)
	subscriptionIDs := make([]string, n)
	merchantIDs := make([]string, n)
	productIDs := make([]string, n)
	planIDs := make([]string, n)
	channelIDs := make([]string, n)
	msisdns := make([]string, n)
	refIDs := make([]string, n)
	eventTypes := make([]string, n)
	statuses := make([]string, n)
	amounts := make([]any, n)
	currencies := make([]string, n)
	requestPayloads := make([]string, n)
	responsePayloads := make([]string, n)
	responseMessages := make([]string, n)
	durations := make([]int64, n)
	responseCodes := make([]int, n)
	createdAts := make([]any, n)

	for i, r := range rows {
		subscriptionIDs[i] = r.SubscriptionID
		merchantIDs[i] = r.MerchantID
		productIDs[i] = r.ProductID
		planIDs[i] = r.PlanID
		channelIDs[i] = r.PaymentChannelID
		msisdns[i] = r.MSISDN
		refIDs[i] = r.PaymentReferenceID
		eventTypes[i] = r.EventType
		statuses[i] = r.Status
		amounts[i] = r.Amount
		currencies[i] = r.Currency
		requestPayloads[i] = r.RequestPayload
		responsePayloads[i] = r.ResponsePayload
		responseMessages[i] = r.ResponseMessage
		durations[i] = r.DurationMs
		responseCodes[i] = r.ResponseCode
		createdAts[i] = r.CreatedAt
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, txErr := tx.Exec(ctx, query,
			subscriptionIDs, merchantIDs, productIDs, planIDs, channelIDs,
			msisdns, refIDs, eventTypes, statuses, amounts, currencies,
			requestPayloads, responsePayloads, responseMessages, durations, responseCodes,
			createdAts)
		return txErr
	})
	if err != nil {
		if isDuplicatePaymentReference(err) {
			return typederrors.NewStoreError(err, "payment_reference_id collision inserting %d billing events", len(rows))
		}
		return typederrors.NewStoreError(err, "failed to insert %d billing events", len(rows))
	}
	return nil
}

// isDuplicatePaymentReference reports whether err is a unique-constraint violation on
// payment_reference_id. A genuine collision would mean the same attempt was appended twice by two
// racing ResultConsumer instances; this is kept distinct from a generic store failure so callers
// could in principle treat it as already-applied rather than retry the whole batch.
func isDuplicatePaymentReference(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation
}
