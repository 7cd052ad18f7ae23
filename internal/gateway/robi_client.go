/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"

	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

// RobiClient is the GatewayClient adapter for the ROBI carrier.
type RobiClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRobiClient builds a RobiClient whose HTTP calls are guarded by a circuit breaker named after
// the operator. transport is used as given (cmd/serve.go passes one already wrapped for metrics
// via NewMetricsTransport); a nil transport falls back to http.DefaultTransport.
func NewRobiClient(baseURL string, timeout time.Duration, transport http.RoundTripper, logger *slog.Logger) *RobiClient {
	if logger == nil {
		logger = slog.Default()
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "robi",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway circuit breaker state change", "gateway", name, "from", from.String(), "to", to.String())
		},
	})
	return &RobiClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		breaker: breaker,
		logger:  logger,
	}
}

type robiRequestBody struct {
	APIKey               string `json:"apiKey"`
	Username             string `json:"username"`
	SpTransID            string `json:"spTransID"`
	Description          string `json:"description"`
	Currency             string `json:"currency"`
	Amount               string `json:"amount"`
	OnBehalfOf           string `json:"onBehalfOf"`
	PurchaseCategoryCode string `json:"purchaseCategoryCode"`
	ReferenceCode        string `json:"referenceCode"`
	Channel              string `json:"channel"`
	TaxAmount            int    `json:"taxAmount"`
	MSISDN               string `json:"msisdn"`
	Operator             string `json:"operator"`
	SubscriptionID       string `json:"subscriptionID"`
	UnsubscribeURL       string `json:"unSubURL"`
	ContactInfo          string `json:"contactInfo"`
}

type robiResponseBody struct {
	TransactionOperationStatus string `json:"transactionOperationStatus"`
}

// Charge implements the GatewayClient contract for ROBI. Success requires a 2xx response whose
// transactionOperationStatus equals "charged", case-insensitively.
func (c *RobiClient) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	currency := req.Currency
	if currency == "" {
		currency = "BDT"
	}

	body := robiRequestBody{
		APIKey:               req.RobiAPIKey,
		Username:             req.RobiUsername,
		SpTransID:            req.PaymentReferenceID,
		Description:          "subscription renewal",
		Currency:             currency,
		Amount:               req.Amount.String(),
		OnBehalfOf:           req.RobiOnBehalfOf,
		PurchaseCategoryCode: req.RobiPurchaseCategory,
		ReferenceCode:        req.MerchantTransactionID,
		Channel:              req.RobiChannel,
		TaxAmount:            0,
		MSISDN:               req.MSISDN,
		Operator:             "ROBI",
		SubscriptionID:       req.RobiSubscriptionID,
		UnsubscribeURL:       req.RobiUnsubscribeURL,
		ContactInfo:          req.RobiContactInfo,
	}

	payload, err := robiJSON.Marshal(body)
	if err != nil {
		return Result{}, typederrors.NewGatewayError(err, "failed to marshal ROBI request for subscription %s", req.SubscriptionID)
	}

	url := c.baseURL + "/api/renewSubscription"

	start := time.Now()
	raw, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, url, payload)
	})
	elapsed := time.Since(start)

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Result{
				Success:        false,
				HTTPStatus:     504,
				RequestPayload: string(payload),
				Error:          &ResultError{Code: "CIRCUIT_OPEN", Message: err.Error()},
				DurationMs:     elapsed.Milliseconds(),
			}, nil
		}
		return transportFailure(string(payload), elapsed, err), nil
	}

	resp := raw.(robiResponse)
	success := false
	var parsed robiResponseBody
	if jsonErr := robiJSON.Unmarshal([]byte(resp.body), &parsed); jsonErr == nil {
		success = strings.EqualFold(parsed.TransactionOperationStatus, "charged")
	}
	success = success && resp.statusCode >= 200 && resp.statusCode < 300

	result := Result{
		Success:         success,
		HTTPStatus:      resp.statusCode,
		RequestPayload:  string(payload),
		ResponsePayload: resp.body,
		DurationMs:      elapsed.Milliseconds(),
	}
	if !result.Success {
		result.Error = &ResultError{Code: fmt.Sprintf("HTTP_%d", resp.statusCode), Message: resp.body}
	}
	return result, nil
}

var robiJSON = jsoniter.ConfigCompatibleWithStandardLibrary

type robiResponse struct {
	statusCode int
	body       string
}

func (c *RobiClient) doRequest(ctx context.Context, url string, payload []byte) (any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return robiResponse{statusCode: httpResp.StatusCode, body: string(raw)}, nil
}
