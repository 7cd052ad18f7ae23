/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package queue implements C4: a named, per-operator delayed job queue backed by Redis, with
// deduplication on job_id and a bounded-concurrency worker pool per registered handler.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// pollInterval is how often a registered worker checks its sorted set for due jobs.
const pollInterval = time.Second

// clearDedupIfStateScript deletes a dedup hash field only if it still holds the expected value,
// so a stale post-handler cleanup can't clobber a dedup state a re-queue has since overwritten.
var clearDedupIfStateScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// EnqueueOptions configures a single Enqueue call.
type EnqueueOptions struct {
	DelayMs          int64
	JobID            string
	RemoveOnComplete bool
	RemoveOnFail     bool
}

// Handler processes one delivered job's raw payload. An error marks the job failed; the queue
// itself never retries beyond the explicit re-queue policy implemented by the caller (C8).
type Handler func(ctx context.Context, payload []byte) error

// Queue is a per-operator named delayed queue.
type Queue struct {
	rdb      *redis.Client
	operator string
	logger   *slog.Logger
}

// New creates a Queue scoped to a single operator's delayed sorted set and dedup hash.
func New(rdb *redis.Client, operator string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{rdb: rdb, operator: operator, logger: logger}
}

func (q *Queue) delayedKey() string {
	return constants.DelayedQueueKeyPrefix + q.operator
}

func (q *Queue) dedupKey() string {
	return constants.DedupHashKeyPrefix + q.operator
}

type envelope struct {
	JobID            string          `json:"job_id"`
	Payload          json.RawMessage `json:"payload"`
	RemoveOnComplete bool            `json:"remove_on_complete"`
	RemoveOnFail     bool            `json:"remove_on_fail"`
}

// Enqueue schedules payload for delivery after opts.DelayMs. While a job with the same JobID is
// pending or running, a second Enqueue for it is a no-op.
func (q *Queue) Enqueue(ctx context.Context, payload any, opts EnqueueOptions) error {
	state, err := q.rdb.HGet(ctx, q.dedupKey(), opts.JobID).Result()
	if err != nil && err != redis.Nil {
		return typederrors.NewQueueError(err, "failed to read dedup state for job %s", opts.JobID)
	}
	if state == constants.DedupStatePending || state == constants.DedupStateRunning {
		return nil
	}
	return q.schedule(ctx, payload, opts)
}

// Requeue schedules payload for delivery after opts.DelayMs on behalf of a handler that is
// currently executing the same JobID (the same-day C8 re-queue policy). Unlike Enqueue it does not
// consult the dedup state, because the caller IS the in-flight delivery holding DedupStateRunning
// for that job_id; gating on it would make Requeue a permanent no-op for its own job.
func (q *Queue) Requeue(ctx context.Context, payload any, opts EnqueueOptions) error {
	return q.schedule(ctx, payload, opts)
}

func (q *Queue) schedule(ctx context.Context, payload any, opts EnqueueOptions) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return typederrors.NewQueueError(err, "failed to marshal payload for job %s", opts.JobID)
	}

	env := envelope{
		JobID:            opts.JobID,
		Payload:          raw,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
	}
	encoded, err := json.Marshal(env)
	if err != nil {
		return typederrors.NewQueueError(err, "failed to marshal envelope for job %s", opts.JobID)
	}

	dueAt := time.Now().Add(time.Duration(opts.DelayMs) * time.Millisecond).UnixMilli()

	pipe := q.rdb.TxPipeline()
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(dueAt), Member: encoded})
	pipe.HSet(ctx, q.dedupKey(), opts.JobID, constants.DedupStatePending)
	if _, err := pipe.Exec(ctx); err != nil {
		return typederrors.NewQueueError(err, "failed to enqueue job %s", opts.JobID)
	}
	return nil
}

// RegisterWorker starts a poller that delivers due jobs to handler, running at most concurrency
// of them at a time. It blocks until ctx is canceled, at which point it waits for in-flight
// handler calls to finish.
func (q *Queue) RegisterWorker(ctx context.Context, concurrency int, handler Handler) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			q.dispatchDue(ctx, sem, &wg, handler)
		}
	}
}

func (q *Queue) dispatchDue(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup, handler Handler) {
	now := time.Now().UnixMilli()
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		q.logger.Error("failed to poll delayed queue", "operator", q.operator, "error", err)
		return
	}

	for _, member := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil || removed == 0 {
			// Another poller (or a previous tick) already claimed this member.
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			q.logger.Error("failed to decode queue envelope", "operator", q.operator, "error", err)
			continue
		}

		if err := q.rdb.HSet(ctx, q.dedupKey(), env.JobID, constants.DedupStateRunning).Err(); err != nil {
			q.logger.Error("failed to mark job running", "operator", q.operator, "job_id", env.JobID, "error", err)
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		wg.Add(1)
		go func(env envelope) {
			defer wg.Done()
			defer func() { <-sem }()
			q.runJob(ctx, env, handler)
		}(env)
	}
}

func (q *Queue) runJob(ctx context.Context, env envelope, handler Handler) {
	err := handler(ctx, env.Payload)
	if err != nil {
		q.logger.Error("job handler failed", "operator", q.operator, "job_id", env.JobID, "error", err)
		if env.RemoveOnFail {
			q.clearDedupIfRunning(ctx, env.JobID)
		}
		return
	}
	if env.RemoveOnComplete {
		q.clearDedupIfRunning(ctx, env.JobID)
	}
}

// clearDedupIfRunning deletes the dedup entry for jobID, but only if it still holds
// DedupStateRunning. A handler may call Requeue on its own job_id before returning, which
// overwrites the entry with a fresh DedupStatePending for the newly scheduled delayed entry; an
// unconditional clear here would delete that entry too and let a concurrent external Enqueue race
// the re-queued job.
func (q *Queue) clearDedupIfRunning(ctx context.Context, jobID string) {
	removed, err := clearDedupIfStateScript.Run(ctx, q.rdb, []string{q.dedupKey()}, jobID, constants.DedupStateRunning).Int()
	if err != nil {
		q.logger.Error("failed to clear dedup state", "operator", q.operator, "job_id", jobID, "error", err)
		return
	}
	if removed == 0 {
		q.logger.Debug("dedup state changed since job was claimed, leaving it in place", "operator", q.operator, "job_id", jobID)
	}
}
