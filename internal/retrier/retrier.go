/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package retrier implements C10: the periodic sweep of the notification fallback KV, attempting
// redelivery with a capped retry count.
package retrier

import (
	"context"
	"log/slog"
	"time"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/domain"
)

// FallbackStore is the subset of ledger.Ledger the retrier depends on.
type FallbackStore interface {
	KeysFallback(ctx context.Context) ([]string, error)
	GetFallback(ctx context.Context, id string) (domain.FallbackMessage, bool, error)
	SetFallback(ctx context.Context, msg domain.FallbackMessage) (string, error)
	DeleteFallback(ctx context.Context, id string) error
}

// BrokerClient is the subset of broker.Broker the retrier depends on.
type BrokerClient interface {
	IsConnected() bool
	Publish(ctx context.Context, payload domain.NotificationPayload) error
}

// FallbackMetrics reports the current depth of the fallback KV.
type FallbackMetrics interface {
	SetFallbackDepth(n int)
}

// Retrier sweeps the fallback KV on a fixed interval.
type Retrier struct {
	fallback   FallbackStore
	broker     BrokerClient
	logger     *slog.Logger
	maxRetries int
	metrics    FallbackMetrics
}

// New creates a Retrier. metrics may be nil.
func New(fallback FallbackStore, broker BrokerClient, metrics FallbackMetrics, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		fallback:   fallback,
		broker:     broker,
		logger:     logger,
		maxRetries: constants.RetrierMaxRetryCount,
		metrics:    metrics,
	}
}

// Run starts the fixed-interval sweep loop. It blocks until ctx is canceled.
func (r *Retrier) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.RetrierTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("notification retrier tick failed", "error", err)
			}
		}
	}
}

// Tick performs one sweep of every notification:fallback:* key.
func (r *Retrier) Tick(ctx context.Context) error {
	if !r.broker.IsConnected() {
		r.logger.Warn("broker not connected, skipping fallback sweep")
		return nil
	}

	ids, err := r.fallback.KeysFallback(ctx)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.SetFallbackDepth(len(ids))
	}

	for _, id := range ids {
		r.retryOne(ctx, id)
	}
	return nil
}

func (r *Retrier) retryOne(ctx context.Context, id string) {
	msg, ok, err := r.fallback.GetFallback(ctx, id)
	if err != nil {
		r.logger.Error("failed to read fallback message", "id", id, "error", err)
		return
	}
	if !ok {
		return
	}

	if msg.RetryCount >= r.maxRetries {
		r.logger.Error("fallback notification reached retry cap, giving up", "id", id, "payload_id", msg.ID)
		if delErr := r.fallback.DeleteFallback(ctx, id); delErr != nil {
			r.logger.Error("failed to delete permanently failed fallback message", "id", id, "error", delErr)
		}
		return
	}

	if pubErr := r.broker.Publish(ctx, msg.NotificationPayload); pubErr != nil {
		r.logger.Warn("fallback notification retry failed", "id", id, "error", pubErr)
		msg.RetryCount++
		if _, setErr := r.fallback.SetFallback(ctx, msg); setErr != nil {
			r.logger.Error("failed to write back incremented fallback retry count", "id", id, "error", setErr)
		}
		return
	}

	if delErr := r.fallback.DeleteFallback(ctx, id); delErr != nil {
		r.logger.Error("failed to delete redelivered fallback message", "id", id, "error", delErr)
	}
}
