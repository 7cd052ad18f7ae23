/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package gateway implements C3: the per-operator adapters that translate a canonical charge
// request into a carrier's wire call and normalize the response into a uniform Result.
package gateway

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRequest is the canonical, operator-agnostic charge request built by an OperatorWorker.
type ChargeRequest struct {
	SubscriptionID        string
	MSISDN                string
	ProductID             string
	ConsentID             string
	MerchantTransactionID string
	PaymentChannelRef     string
	Amount                decimal.Decimal
	Currency              string
	BillingCycleDays      int
	PaymentReferenceID    string
	GPKeyword             string
	RobiAPIKey            string
	RobiUsername          string
	RobiOnBehalfOf        string
	RobiPurchaseCategory  string
	RobiChannel           string
	RobiSubscriptionID    string
	RobiUnsubscribeURL    string
	RobiContactInfo       string
}

// ResultError carries the code/message pair attached to a failed Result.
type ResultError struct {
	Code    string
	Message string
}

// Result is the uniform outcome of a Client.Charge call, regardless of operator.
type Result struct {
	Success         bool
	HTTPStatus      int
	Data            map[string]any
	Error           *ResultError
	RequestPayload  string
	ResponsePayload string
	DurationMs      int64
}

// subscriptionPeriod maps billing_cycle_days onto GP's ISO-8601-like period tag. It is a total
// function: any input not in the table falls back to the shortest period, P1D.
func subscriptionPeriod(billingCycleDays int) string {
	switch billingCycleDays {
	case 1:
		return "P1D"
	case 7:
		return "P1W"
	case 30:
		return "P1M"
	case 180:
		return "P6M"
	case 365:
		return "P1Y"
	default:
		return "P1D"
	}
}

// gameProductIDs lists the product IDs that carry GP's Game purchase category.
var gameProductIDs = map[string]bool{
	"XPGames":  true,
	"GameApex": true,
}

// transportFailure builds the Result required when the HTTP call itself could not complete.
func transportFailure(requestPayload string, elapsed time.Duration, err error) Result {
	return Result{
		Success:        false,
		HTTPStatus:     504,
		RequestPayload: requestPayload,
		Error: &ResultError{
			Code:    "TRANSPORT_ERROR",
			Message: err.Error(),
		},
		DurationMs: elapsed.Milliseconds(),
	}
}

// NewMetricsTransport wraps base with the HTTP-metrics round tripper produced by wrap. Returns base
// unwrapped if wrap is nil.
func NewMetricsTransport(wrap func(http.RoundTripper) http.RoundTripper, base http.RoundTripper) http.RoundTripper {
	if wrap == nil {
		return base
	}
	return wrap(base)
}
