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
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"

	typederrors "github.com/Rifat79/dcb-renewal-service/internal/typederrors"
)

var gpJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// GPClient is the GatewayClient adapter for the GP carrier.
type GPClient struct {
	baseURL  string
	user     string
	pass     string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewGPClient builds a GPClient whose HTTP calls are guarded by a circuit breaker named after the
// operator, so a systemically failing carrier stops burning worker-pool concurrency on calls that
// will certainly time out. transport is used as given (cmd/serve.go passes one already wrapped
// for metrics via NewMetricsTransport); a nil transport falls back to http.DefaultTransport.
func NewGPClient(baseURL, user, pass string, timeout time.Duration, transport http.RoundTripper, logger *slog.Logger) *GPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gp",
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
	return &GPClient{
		baseURL: baseURL,
		user:    user,
		pass:    pass,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		breaker: breaker,
		logger:  logger,
	}
}

type gpAmountTransaction struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type gpRequestBody struct {
	AmountTransaction    gpAmountTransaction `json:"amountTransaction"`
	Keyword              string              `json:"keyword"`
	SubscriptionPeriod   string              `json:"subscription_period"`
	Channel              string              `json:"channel"`
	ConsentID            string              `json:"consentId"`
	MerchantTxID         string              `json:"merchantTransactionId"`
	PurchaseCategoryCode string              `json:"purchaseCategoryCode,omitempty"`
}

// Charge implements the GatewayClient contract for GP. HTTP 200 is success; every other outcome,
// including a transport failure, is carried back in the Result rather than returned as an error.
func (c *GPClient) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	body := gpRequestBody{
		AmountTransaction: gpAmountTransaction{
			Amount:   req.Amount.String(),
			Currency: req.Currency,
		},
		Keyword:            req.GPKeyword,
		SubscriptionPeriod: subscriptionPeriod(req.BillingCycleDays),
		Channel:            "SelfWeb",
		ConsentID:          req.ConsentID,
		MerchantTxID:       req.MerchantTransactionID,
	}
	if gameProductIDs[req.ProductID] {
		body.PurchaseCategoryCode = "Game"
	}

	payload, err := gpJSON.Marshal(body)
	if err != nil {
		return Result{}, typederrors.NewGatewayError(err, "failed to marshal GP request for subscription %s", req.SubscriptionID)
	}

	url := fmt.Sprintf("%s/partner/payment/v1/%s/transactions/amount", c.baseURL, req.MSISDN)

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

	resp := raw.(gpResponse)
	result := Result{
		Success:         resp.statusCode == http.StatusOK,
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

type gpResponse struct {
	statusCode int
	body       string
}

func (c *GPClient) doRequest(ctx context.Context, url string, payload []byte) (any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.user, c.pass)

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

	// gobreaker trips on transport-level errors only, not on non-2xx responses: a failed charge
	// is a valid business outcome, not a gateway malfunction.
	return gpResponse{statusCode: httpResp.StatusCode, body: string(raw)}, nil
}
