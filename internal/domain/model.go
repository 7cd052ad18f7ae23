/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package domain contains the data shapes shared by every component of the renewal pipeline:
// the subscription snapshot read from the relational store, the job and outcome envelopes that
// travel through the queue and the ledger, and the payloads handed to the notification broker.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargingConfigKind discriminates the operator-specific charging_configurations.config variant.
type ChargingConfigKind string

const (
	ChargingConfigGP      ChargingConfigKind = "GP"
	ChargingConfigRobi    ChargingConfigKind = "ROBI"
	ChargingConfigUnknown ChargingConfigKind = ""
)

// GPConfig is the GP variant of charging_configurations.config.
type GPConfig struct {
	Keyword string `json:"keyword"`
}

// RobiConfig is the ROBI variant of charging_configurations.config.
type RobiConfig struct {
	APIKey               string `json:"apiKey"`
	Username             string `json:"username"`
	OnBehalfOf           string `json:"onBehalfOf"`
	PurchaseCategoryCode string `json:"purchaseCategoryCode"`
	Channel              string `json:"channel"`
	SubscriptionID       string `json:"subscriptionID"`
	UnsubscribeURL       string `json:"unSubURL"`
	ContactInfo          string `json:"contactInfo"`
}

// ChargingConfig is the tagged-variant record stored on charging_configurations.config.  Exactly
// one of GP/Robi is populated, matching Kind.
type ChargingConfig struct {
	Kind ChargingConfigKind `json:"kind"`
	GP   *GPConfig          `json:"gp,omitempty"`
	Robi *RobiConfig        `json:"robi,omitempty"`
}

// Product is the joined product row referenced by a Subscription.
type Product struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
}

// Merchant is the joined merchant row referenced by a Subscription.
type Merchant struct {
	MerchantID string `json:"merchant_id"`
	Name       string `json:"name"`
}

// PaymentChannel identifies the carrier/operator a subscription bills through.
type PaymentChannel struct {
	PaymentChannelID string `json:"payment_channel_id"`
	Code             string `json:"code"`
}

// PlanPricing is the joined pricing row for a subscription's product plan.
type PlanPricing struct {
	PlanPricingID string          `json:"plan_pricing_id"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	Currency      string          `json:"currency"`
}

// ProductPlan is the joined plan row describing the billing cycle.
type ProductPlan struct {
	ProductPlanID    string `json:"product_plan_id"`
	BillingCycleDays int    `json:"billing_cycle_days"`
}

// Subscription is the full joined row read by SubscriptionStore.FindRenewable. ID is the
// monotone paging cursor; SubscriptionID is the opaque globally-unique business identifier used
// as the job queue's deduplication key.
type Subscription struct {
	ID                    int64          `json:"id"`
	SubscriptionID        string         `json:"subscription_id"`
	MSISDN                string         `json:"msisdn"`
	Status                string         `json:"status"`
	AutoRenew             bool           `json:"auto_renew"`
	NextBillingAt         time.Time      `json:"next_billing_at"`
	ConsentID             string         `json:"consent_id"`
	MerchantTransactionID string         `json:"merchant_transaction_id"`
	PaymentChannelRef     string         `json:"payment_channel_reference"`
	Product               Product        `json:"product"`
	Merchant              Merchant       `json:"merchant"`
	PaymentChannel        PaymentChannel `json:"payment_channel"`
	ChargingConfig        ChargingConfig `json:"charging_configurations"`
	PlanPricing           PlanPricing    `json:"plan_pricing"`
	ProductPlan           ProductPlan    `json:"product_plan"`
}

// RenewalJob is the payload carried by the delayed job queue (C4). Snapshot is the full joined
// subscription row as it existed at dispatch time.
type RenewalJob struct {
	SubscriptionID string       `json:"subscription_id"`
	Snapshot       Subscription `json:"snapshot"`
}

// ChargeError carries the code/message pair attached to a failed ChargeOutcome.
type ChargeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChargeOutcome is tail-appended to the result ledger (C5) by an OperatorWorker (C8) and
// consumed by the ResultConsumer (C9).
type ChargeOutcome struct {
	SubscriptionID     string       `json:"subscription_id"`
	Snapshot           Subscription `json:"snapshot"`
	Timestamp          time.Time    `json:"timestamp"`
	Success            bool         `json:"success"`
	PaymentReferenceID string       `json:"payment_reference_id"`
	HTTPStatus         int          `json:"http_status"`
	RequestPayload     string       `json:"request_payload"`
	ResponsePayload    string       `json:"response_payload"`
	ResponseDurationMs int64        `json:"response_duration_ms"`
	Error              *ChargeError `json:"error,omitempty"`
	Message            string       `json:"message"`
}

// SubscriptionBulkUpdate is one row of the input to SubscriptionStore.BulkUpdate, computed by
// the ResultConsumer from a ChargeOutcome.
type SubscriptionBulkUpdate struct {
	SubscriptionID  string
	Success         bool
	SucceededAt     *time.Time
	FailedAt        *time.Time
	NextBillingAt   time.Time
}

// BillingEvent is one append-only row of the input to BillingEventStore.CreateMany.
type BillingEvent struct {
	SubscriptionID     string    `json:"subscription_id"`
	MerchantID         string    `json:"merchant_id"`
	ProductID          string    `json:"product_id"`
	PlanID             string    `json:"plan_id"`
	PaymentChannelID   string    `json:"payment_channel_id"`
	MSISDN             string    `json:"msisdn"`
	PaymentReferenceID string    `json:"payment_reference_id"`
	EventType          string    `json:"event_type"`
	Status             string    `json:"status"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	RequestPayload     string    `json:"request_payload"`
	ResponsePayload    string    `json:"response_payload"`
	ResponseMessage    string    `json:"response_message"`
	DurationMs         int64     `json:"duration_ms"`
	ResponseCode       int       `json:"response_code"`
	CreatedAt          time.Time `json:"created_at"`
}

// NotificationPayload is handed to the NotificationBroker (C6) by the ResultConsumer (C9) or the
// NotificationRetrier (C10).
type NotificationPayload struct {
	ID                    string    `json:"id"`
	Source                string    `json:"source"`
	SubscriptionID        string    `json:"subscription_id"`
	MerchantTransactionID string    `json:"merchant_transaction_id"`
	Keyword               string    `json:"keyword"`
	MSISDN                string    `json:"msisdn"`
	PaymentProvider       string    `json:"payment_provider"`
	EventType             string    `json:"event_type"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	BillingCycleDays      int       `json:"billing_cycle_days"`
	Metadata              any       `json:"metadata,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

// FallbackMessage is what a NotificationPayload becomes when it cannot be handed to the broker;
// it is persisted under notification:fallback:<id> until redelivered or the retry cap is hit.
type FallbackMessage struct {
	NotificationPayload
	FailedAt   time.Time `json:"failed_at"`
	RetryCount int       `json:"retry_count"`
}
