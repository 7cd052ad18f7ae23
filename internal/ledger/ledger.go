/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger implements C5: the renewal status report list (FIFO) that decouples
// OperatorWorkers from the ResultConsumer, and the notification fallback KV used when a
// notification cannot be published immediately.
package ledger

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/domain"
	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// scanCount is the COUNT hint passed to every SCAN call; fallback keys are scanned, never
// enumerated with KEYS, to avoid blocking Redis at the stated scale.
const scanCount = 200

// Ledger wraps the two Redis sub-surfaces described by C5.
type Ledger struct {
	rdb *redis.Client
}

// New creates a Ledger backed by rdb.
func New(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// PushTail appends a ChargeOutcome to the tail of the renewal status report list. No TTL is
// applied; the entry lives until popped.
func (l *Ledger) PushTail(ctx context.Context, outcome domain.ChargeOutcome) error {
	encoded, err := json.Marshal(outcome)
	if err != nil {
		return typederrors.NewStoreError(err, "failed to marshal charge outcome for subscription %s", outcome.SubscriptionID)
	}
	if err := l.rdb.RPush(ctx, constants.LedgerKey, encoded).Err(); err != nil {
		return typederrors.NewStoreError(err, "failed to push charge outcome for subscription %s", outcome.SubscriptionID)
	}
	return nil
}

// PopHead removes and returns the oldest entry, or ok=false if the list is empty. The entry is
// already irrevocably removed from the list by the time this returns, including when err is
// non-nil: a decode failure on a malformed entry is returned as a typederrors.SkipError (it cannot
// be un-popped and retried), distinct from a StoreError for an actual Redis-level failure, so
// callers can tell "this one entry was garbage, keep draining" from "stop, Redis is unreachable".
func (l *Ledger) PopHead(ctx context.Context) (outcome domain.ChargeOutcome, ok bool, err error) {
	raw, popErr := l.rdb.LPop(ctx, constants.LedgerKey).Result()
	if popErr == redis.Nil {
		return domain.ChargeOutcome{}, false, nil
	}
	if popErr != nil {
		return domain.ChargeOutcome{}, false, typederrors.NewStoreError(popErr, "failed to pop charge outcome")
	}
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return domain.ChargeOutcome{}, false, typederrors.NewSkipError("discarding malformed charge outcome entry: %v", err)
	}
	return outcome, true, nil
}

// PushFront re-queues a batch of outcomes at the head of the list, preserving their relative
// order, for the recovery-gap case where downstream processing of a drained batch fails partway
// through: the unprocessed entries are restored ahead of every entry still pending, not at the
// tail, so the next drain picks them up first.
func (l *Ledger) PushFront(ctx context.Context, outcomes []domain.ChargeOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	encoded := make([]any, len(outcomes))
	for i, o := range outcomes {
		raw, err := json.Marshal(o)
		if err != nil {
			return typederrors.NewStoreError(err, "failed to marshal charge outcome for re-queue")
		}
		// LPush reverses order, so push from the end to restore original order at the head.
		encoded[len(outcomes)-1-i] = raw
	}
	if err := l.rdb.LPush(ctx, constants.LedgerKey, encoded...).Err(); err != nil {
		return typederrors.NewStoreError(err, "failed to re-queue %d charge outcomes", len(outcomes))
	}
	return nil
}

func fallbackKey(id string) string {
	return constants.FallbackKeyPrefix + id
}

// SetFallback persists msg under notification:fallback:<id> and returns that id. The id is msg.ID;
// a fresh UUID is generated only when msg.ID is empty.
func (l *Ledger) SetFallback(ctx context.Context, msg domain.FallbackMessage) (string, error) {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
		msg.ID = id
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		return "", typederrors.NewStoreError(err, "failed to marshal fallback message %s", id)
	}
	if err := l.rdb.Set(ctx, fallbackKey(id), encoded, 0).Err(); err != nil {
		return "", typederrors.NewStoreError(err, "failed to persist fallback message %s", id)
	}
	return id, nil
}

// GetFallback reads the fallback message stored under id.
func (l *Ledger) GetFallback(ctx context.Context, id string) (domain.FallbackMessage, bool, error) {
	raw, err := l.rdb.Get(ctx, fallbackKey(id)).Result()
	if err == redis.Nil {
		return domain.FallbackMessage{}, false, nil
	}
	if err != nil {
		return domain.FallbackMessage{}, false, typederrors.NewStoreError(err, "failed to read fallback message %s", id)
	}
	var msg domain.FallbackMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return domain.FallbackMessage{}, false, typederrors.NewStoreError(err, "failed to decode fallback message %s", id)
	}
	return msg, true, nil
}

// DeleteFallback removes the fallback message stored under id.
func (l *Ledger) DeleteFallback(ctx context.Context, id string) error {
	if err := l.rdb.Del(ctx, fallbackKey(id)).Err(); err != nil {
		return typederrors.NewStoreError(err, "failed to delete fallback message %s", id)
	}
	return nil
}

// KeysFallback returns the id of every fallback message currently persisted, discovered via SCAN
// cursor iteration rather than KEYS.
func (l *Ledger) KeysFallback(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64
	pattern := constants.FallbackKeyPrefix + "*"
	for {
		keys, next, err := l.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, typederrors.NewStoreError(err, "failed to scan fallback keys")
		}
		for _, k := range keys {
			ids = append(ids, k[len(constants.FallbackKeyPrefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}
