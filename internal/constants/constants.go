/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package constants

import "time"

// Server command names
const (
	ServeSubcommand   = "serve"
	MigrateSubcommand = "migrate"
)

// Payment channel / operator codes
const (
	OperatorGP       = "GP"
	OperatorRobi     = "ROBI"
	OperatorRobiMife = "ROBI_MIFE"
)

// Subscription statuses
const (
	SubscriptionStatusActive                 = "ACTIVE"
	SubscriptionStatusSuspendedPaymentFailed = "SUSPENDED_PAYMENT_FAILED"
)

// Billing event fields
const (
	BillingEventTypeRenewal = "RENEWAL"
	BillingEventStatusOK    = "SUCCESS"
	BillingEventStatusFail  = "FAILED"
)

// Notification event types
const (
	NotificationEventRenewSuccess = "renew.success"
	NotificationEventRenewFail    = "renew.fail"
)

// NotificationSource identifies the producer of every notification payload.
const NotificationSource = "dcb-renewal-service"

// Per-operator worker concurrency, observed defaults from the renewal pipeline being replaced.
const (
	ConcurrencyGP   = 18
	ConcurrencyRobi = 10
)

// Dispatcher tuning
const (
	DispatcherPageSize     = 10_000
	DispatcherPageDelay    = 50 * time.Millisecond
	DispatcherCronSpec     = "0 1 * * *"
	DispatcherTimeZoneName = "Asia/Dhaka"
)

// RequeueDelay is the same-day re-queue policy delay.
const RequeueDelay = 8 * time.Hour

// ResultConsumer tuning
const (
	ConsumerTickInterval = 10 * time.Second
	ConsumerMaxBatchSize = 250
	ConsumerFanOutWidth  = 10
)

// NotificationRetrier tuning
const (
	RetrierTickInterval  = 5 * time.Minute
	RetrierMaxRetryCount = 5
)

// Redis key layout
const (
	LedgerKey             = "renewal_status_report"
	FallbackKeyPrefix     = "notification:fallback:"
	IdempotencyKeyPrefix  = "idempotency:"
	IdempotencyTTL        = 24 * time.Hour
	DelayedQueueKeyPrefix = "dcb:delayed:"
	DedupHashKeyPrefix    = "dcb:dedup:"
	DedupStatePending     = "pending"
	DedupStateRunning     = "running"
)

// NotificationBroker topology
const (
	BrokerExchange       = "dcb.renewal.exchange"
	BrokerQueue          = "dcb.renewal.queue"
	BrokerRoutingKey     = "dcb.renewal.notification"
	BrokerDLQExchange    = "dlq_exchange"
	BrokerDLQQueue       = "dcb.renewal.dlq"
	BrokerDLQRoutingKey  = "dlq_key"
	BrokerQueueMaxLength = 1_000_000
	BrokerDLQMaxLength   = 10_000
	BrokerDLQMessageTTL  = 24 * time.Hour
	BrokerBaseDelay      = 5 * time.Second
	BrokerMaxAttempts    = 10
	BrokerRetryAttempts  = 3
	BrokerRetryDelay     = 5 * time.Second
	BrokerSource         = "renewal-service"
)

// DefaultPort mirrors the PORT default declared on config.Config; no code path reads it.
const DefaultPort = 8080
